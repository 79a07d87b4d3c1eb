package models

import "time"

// InitRequest starts a verification; Action falls back to the configured default.
type InitRequest struct {
	Action string `json:"action"`
}

// InitResult is returned to the client to build the World ID deep link.
type InitResult struct {
	VerificationURL string
	Signal          string
}

// VerifyProofRequest is the proof payload produced by the World ID app.
type VerifyProofRequest struct {
	NullifierHash     string `json:"nullifier_hash"`
	MerkleRoot        string `json:"merkle_root"`
	Proof             string `json:"proof"`
	VerificationLevel string `json:"verification_level"`
	Signal            string `json:"signal"`
}

// HasAllFields reports whether every field of the payload is present.
func (r VerifyProofRequest) HasAllFields() bool {
	return r.NullifierHash != "" &&
		r.MerkleRoot != "" &&
		r.Proof != "" &&
		r.VerificationLevel != "" &&
		r.Signal != ""
}

// VerifyResult is the outcome of an accepted proof.
type VerifyResult struct {
	Verified          bool
	TrustScoreBoost   int
	VerificationBadge string
}

// Status is the read model of an account's verification state.
type Status struct {
	IsVerified         bool
	VerificationMethod *string
	VerifiedAt         *time.Time
	TrustScore         int
	VerificationBadges []string
}

// StatusOf projects an account into its verification status.
func StatusOf(a *Account) *Status {
	st := &Status{
		IsVerified:         a.IsVerified,
		TrustScore:         a.TrustScore,
		VerificationBadges: append([]string{}, a.VerificationBadges...),
	}
	if v := a.WorldIDVerification; v != nil {
		method := v.VerificationLevel.String()
		verifiedAt := v.VerifiedAt
		st.VerificationMethod = &method
		st.VerifiedAt = &verifiedAt
	}
	return st
}
