package models

import (
	"time"

	"github.com/google/uuid"
)

// VerificationLevel is the assurance tier of a World ID proof.
type VerificationLevel string

const (
	VerificationLevelOrb    VerificationLevel = "orb"
	VerificationLevelDevice VerificationLevel = "device"
	VerificationLevelPhone  VerificationLevel = "phone"
)

func (l VerificationLevel) IsValid() bool {
	switch l {
	case VerificationLevelOrb, VerificationLevelDevice, VerificationLevelPhone:
		return true
	}
	return false
}

func (l VerificationLevel) String() string {
	return string(l)
}

// Account is the verification-relevant slice of an externally owned account.
type Account struct {
	ID                  string
	IsVerified          bool
	TrustScore          int
	VerificationBadges  []string
	WorldIDVerification *WorldIDVerification
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// WorldIDVerification is written once, when the account becomes verified.
type WorldIDVerification struct {
	VerifiedAt        time.Time
	NullifierHash     string
	VerificationLevel VerificationLevel
	TrustScoreBoost   int
}

// Session is the pending verification for an account. There is at most one
// per account; a new Init replaces it.
type Session struct {
	AccountID  string
	Signal     string
	Action     string
	CreatedAt  time.Time
	ExpiresAt  time.Time
	Verified   bool
	VerifiedAt *time.Time
}

// IsExpired reports whether the session can no longer be redeemed at now.
func (s *Session) IsExpired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// NullifierRecord marks a nullifier hash as consumed by one account.
type NullifierRecord struct {
	ID                uuid.UUID
	NullifierHash     string
	UserID            string
	VerifiedAt        time.Time
	VerificationLevel VerificationLevel
}

// Verification is everything the atomic commit writes when a proof is accepted.
type Verification struct {
	AccountID         string
	Signal            string
	NullifierHash     string
	VerificationLevel VerificationLevel
	TrustScoreBoost   int
	BadgeName         string
	VerifiedAt        time.Time
	RecordID          uuid.UUID
}

// NullifierRecord derives the ledger row for v.
func (v Verification) NullifierRecord() NullifierRecord {
	return NullifierRecord{
		ID:                v.RecordID,
		NullifierHash:     v.NullifierHash,
		UserID:            v.AccountID,
		VerifiedAt:        v.VerifiedAt,
		VerificationLevel: v.VerificationLevel,
	}
}
