// Package service holds the World ID verification state machine: issuing
// sessions, accepting proofs, and recording each nullifier exactly once.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"personhood/internal/audit"
	"personhood/internal/platform/config"
	"personhood/internal/platform/metrics"
	"personhood/internal/worldid/models"
	"personhood/internal/worldid/proof"
	"personhood/internal/worldid/signal"
	"personhood/internal/worldid/verifier"
	"personhood/pkg/attrs"
	dErrors "personhood/pkg/domain-errors"
	request "personhood/pkg/platform/middleware/request"
	"personhood/pkg/platform/sentinel"
	"personhood/pkg/requestcontext"
)

// Store persists accounts, sessions and the nullifier ledger. Implementations
// return sentinel errors: ErrNotFound for missing rows, ErrAlreadyUsed when a
// nullifier is already in the ledger, ErrInvalidState when a conditional
// update matches nothing.
type Store interface {
	GetAccount(ctx context.Context, accountID string) (*models.Account, error)
	EnsureAccount(ctx context.Context, accountID string, now time.Time) (*models.Account, error)
	SaveSession(ctx context.Context, session models.Session) error
	GetSession(ctx context.Context, accountID string) (*models.Session, error)
	FindNullifier(ctx context.Context, nullifierHash string) (*models.NullifierRecord, error)
	MarkAccountVerified(ctx context.Context, v models.Verification) error
	InsertNullifier(ctx context.Context, record models.NullifierRecord) error
	MarkSessionVerified(ctx context.Context, accountID, signal string, verifiedAt time.Time) error
}

// StoreTx runs fn atomically: either every write made through store commits
// or none does.
type StoreTx interface {
	RunInTx(ctx context.Context, fn func(store Store) error) error
}

type Verifier interface {
	VerifyProof(ctx context.Context, req verifier.Request) verifier.Outcome
}

type SignalGenerator interface {
	Generate(accountID, action string) (string, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, base audit.Event) error
}

// Service orchestrates World ID verification for externally owned accounts.
type Service struct {
	store          Store
	tx             StoreTx
	verifier       Verifier
	cfg            *config.WorldID
	signals        SignalGenerator
	clock          func() time.Time
	logger         *slog.Logger
	auditPublisher AuditPublisher
	metrics        *metrics.Metrics
	tracer         trace.Tracer
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithClock overrides the request-scoped clock.
func WithClock(clock func() time.Time) Option {
	return func(s *Service) {
		s.clock = clock
	}
}

func WithSignalGenerator(g SignalGenerator) Option {
	return func(s *Service) {
		s.signals = g
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = tracer
	}
}

// New constructs a Service. A nil cfg is accepted; operations that need it
// then fail with a configuration error.
func New(store Store, tx StoreTx, v Verifier, cfg *config.WorldID, opts ...Option) *Service {
	s := &Service{
		store:    store,
		tx:       tx,
		verifier: v,
		cfg:      cfg,
		signals:  signal.NewGenerator(),
		logger:   slog.Default(),
		tracer:   otel.Tracer("personhood/worldid"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// InitVerification opens (or replaces) the pending session for accountID and
// returns the deep link the World ID app should open.
func (s *Service) InitVerification(ctx context.Context, accountID, action string) (*models.InitResult, error) {
	ctx, span := s.tracer.Start(ctx, "worldid.InitVerification",
		trace.WithAttributes(attribute.String("user_id", accountID)))
	defer span.End()

	result, err := s.initVerification(ctx, accountID, action)
	s.metrics.IncrementInit(outcomeOf(err))
	recordSpanError(span, err)
	return result, err
}

func (s *Service) initVerification(ctx context.Context, accountID, action string) (*models.InitResult, error) {
	account, err := s.store.GetAccount(ctx, accountID)
	switch {
	case err == nil:
		if account.IsVerified {
			return nil, dErrors.New(dErrors.CodeAlreadyVerified, "account is already verified")
		}
	case errors.Is(err, sentinel.ErrNotFound):
		// accounts are owned upstream; a session may precede the row
	default:
		return nil, s.internal(ctx, err, "failed to load account", "user_id", accountID)
	}

	if s.cfg == nil {
		return nil, dErrors.New(dErrors.CodeConfiguration, "World ID is not configured")
	}
	s.logger.DebugContext(ctx, "world id config",
		"app_id", s.cfg.AppIDPrefix(),
		"api_key_set", s.cfg.APIKey != "",
		"verification_level", s.cfg.VerificationLevel,
	)

	if action == "" {
		action = s.cfg.Action
	}
	sig, err := s.signals.Generate(accountID, action)
	if err != nil {
		return nil, s.internal(ctx, err, "failed to generate signal", "user_id", accountID)
	}

	now := s.now(ctx)
	session := models.Session{
		AccountID: accountID,
		Signal:    sig,
		Action:    action,
		CreatedAt: now,
		ExpiresAt: now.Add(s.cfg.SessionTTL),
	}
	if err := s.store.SaveSession(ctx, session); err != nil {
		return nil, s.internal(ctx, err, "failed to save verification session", "user_id", accountID)
	}

	s.logAudit(ctx, audit.ActionWorldIDInit,
		"user_id", accountID,
		"action", action,
	)
	return &models.InitResult{
		VerificationURL: signal.VerificationURL(s.cfg.VerifyURL, s.cfg.AppID, sig, action),
		Signal:          sig,
	}, nil
}

// VerifyProof checks a proof against the pending session and the remote
// verifier, then commits the account, ledger and session updates atomically.
func (s *Service) VerifyProof(ctx context.Context, accountID string, req models.VerifyProofRequest) (*models.VerifyResult, error) {
	ctx, span := s.tracer.Start(ctx, "worldid.VerifyProof",
		trace.WithAttributes(
			attribute.String("user_id", accountID),
			attribute.String("verification_level", req.VerificationLevel),
		))
	defer span.End()

	result, err := s.verifyProof(ctx, accountID, req)
	s.metrics.IncrementVerify(outcomeOf(err))
	recordSpanError(span, err)
	if err != nil && !dErrors.HasCode(err, dErrors.CodeInternal) {
		s.logAudit(ctx, audit.ActionWorldIDVerifyRejected,
			"user_id", accountID,
			"decision", audit.DecisionDenied,
			"reason", string(dErrors.CodeOf(err)),
		)
	}
	return result, err
}

func (s *Service) verifyProof(ctx context.Context, accountID string, req models.VerifyProofRequest) (*models.VerifyResult, error) {
	if !req.HasAllFields() {
		return nil, dErrors.New(dErrors.CodeMissingFields, "missing required proof fields")
	}
	if !proof.ValidateNullifierHash(req.NullifierHash) {
		return nil, dErrors.New(dErrors.CodeInvalidFormat, "invalid nullifier hash format")
	}
	if !proof.ValidateProofFormat(req.Proof) {
		return nil, dErrors.New(dErrors.CodeInvalidFormat, "invalid proof format")
	}
	if !proof.ValidateVerificationLevel(req.VerificationLevel) {
		return nil, dErrors.New(dErrors.CodeInvalidFormat, "invalid verification level")
	}
	if s.cfg == nil {
		return nil, dErrors.New(dErrors.CodeConfiguration, "World ID is not configured")
	}
	nullifier := proof.CanonicalNullifierHash(req.NullifierHash)

	account, err := s.store.GetAccount(ctx, accountID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "account not found")
		}
		return nil, s.internal(ctx, err, "failed to load account", "user_id", accountID)
	}
	if account.IsVerified {
		return nil, dErrors.New(dErrors.CodeAlreadyVerified, "account is already verified")
	}

	now := s.now(ctx)
	session, err := s.store.GetSession(ctx, accountID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeInvalidSession, "no pending verification session")
		}
		return nil, s.internal(ctx, err, "failed to load verification session", "user_id", accountID)
	}
	if session.Signal != req.Signal {
		return nil, dErrors.New(dErrors.CodeInvalidSession, "signal does not match verification session")
	}
	if session.Verified {
		return nil, dErrors.New(dErrors.CodeInvalidSession, "verification session already used")
	}
	if session.IsExpired(now) {
		return nil, dErrors.New(dErrors.CodeInvalidSession, "verification session expired")
	}

	if _, err := s.store.FindNullifier(ctx, nullifier); err == nil {
		return nil, dErrors.New(dErrors.CodeNullifierUsed, "this World ID has already been used to verify an account")
	} else if !errors.Is(err, sentinel.ErrNotFound) {
		return nil, s.internal(ctx, err, "failed to check nullifier", "user_id", accountID)
	}

	outcome := s.verifier.VerifyProof(ctx, verifier.Request{
		NullifierHash:     nullifier,
		MerkleRoot:        req.MerkleRoot,
		Proof:             req.Proof,
		VerificationLevel: req.VerificationLevel,
		Signal:            req.Signal,
	})
	if !outcome.Success {
		s.logger.InfoContext(ctx, "world id proof rejected",
			"user_id", accountID,
			"code", outcome.Code,
			"detail", outcome.Detail,
			"request_id", request.GetRequestID(ctx),
		)
		return nil, dErrors.Wrap(outcome.Err(), dErrors.CodeVerificationFailed, outcome.Detail)
	}

	v := models.Verification{
		AccountID:         accountID,
		Signal:            req.Signal,
		NullifierHash:     nullifier,
		VerificationLevel: models.VerificationLevel(req.VerificationLevel),
		TrustScoreBoost:   s.cfg.TrustScoreBoost,
		BadgeName:         s.cfg.BadgeName,
		VerifiedAt:        s.now(ctx),
		RecordID:          uuid.New(),
	}
	if err := s.commit(ctx, v); err != nil {
		return nil, err
	}

	s.logAudit(ctx, audit.ActionWorldIDVerified,
		"user_id", accountID,
		"decision", audit.DecisionGranted,
		"verification_level", req.VerificationLevel,
	)
	return &models.VerifyResult{
		Verified:          true,
		TrustScoreBoost:   v.TrustScoreBoost,
		VerificationBadge: v.BadgeName,
	}, nil
}

// commit applies the three verification writes in one transaction. The
// ledger insert, not the earlier read, is what makes a nullifier single-use.
func (s *Service) commit(ctx context.Context, v models.Verification) error {
	err := s.tx.RunInTx(ctx, func(store Store) error {
		if err := store.MarkAccountVerified(ctx, v); err != nil {
			return err
		}
		if err := store.InsertNullifier(ctx, v.NullifierRecord()); err != nil {
			return err
		}
		return store.MarkSessionVerified(ctx, v.AccountID, v.Signal, v.VerifiedAt)
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sentinel.ErrAlreadyUsed):
		s.metrics.IncrementNullifierConflict()
		return dErrors.New(dErrors.CodeNullifierUsed, "this World ID has already been used to verify an account")
	case errors.Is(err, sentinel.ErrInvalidState):
		return dErrors.New(dErrors.CodeAlreadyVerified, "account is already verified")
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeInvalidSession, "verification session changed during verification")
	case dErrors.CodeOf(err) == dErrors.CodeTimeout:
		return err
	default:
		return s.internal(ctx, err, "failed to record verification", "user_id", v.AccountID)
	}
}

// GetStatus reports the verification state of accountID.
func (s *Service) GetStatus(ctx context.Context, accountID string) (*models.Status, error) {
	ctx, span := s.tracer.Start(ctx, "worldid.GetStatus",
		trace.WithAttributes(attribute.String("user_id", accountID)))
	defer span.End()

	account, err := s.store.GetAccount(ctx, accountID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			err = dErrors.New(dErrors.CodeNotFound, "account not found")
		} else {
			err = s.internal(ctx, err, "failed to load account", "user_id", accountID)
		}
		recordSpanError(span, err)
		return nil, err
	}
	return models.StatusOf(account), nil
}

// EnsureAccount creates accountID when it does not exist yet and returns its
// current status either way.
func (s *Service) EnsureAccount(ctx context.Context, accountID string) (*models.Status, error) {
	if accountID == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "account id is required")
	}
	account, err := s.store.EnsureAccount(ctx, accountID, s.now(ctx))
	if err != nil {
		return nil, s.internal(ctx, err, "failed to provision account", "user_id", accountID)
	}
	s.logAudit(ctx, audit.ActionAccountProvisioned,
		"user_id", accountID,
		"actor_id", requestcontext.AccountID(ctx),
	)
	return models.StatusOf(account), nil
}

// LookupNullifier returns the ledger row for nullifierHash.
func (s *Service) LookupNullifier(ctx context.Context, nullifierHash string) (*models.NullifierRecord, error) {
	if !proof.ValidateNullifierHash(nullifierHash) {
		return nil, dErrors.New(dErrors.CodeInvalidFormat, "invalid nullifier hash format")
	}
	record, err := s.store.FindNullifier(ctx, proof.CanonicalNullifierHash(nullifierHash))
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "nullifier not found")
		}
		return nil, s.internal(ctx, err, "failed to load nullifier")
	}
	return record, nil
}

func (s *Service) now(ctx context.Context) time.Time {
	if s.clock != nil {
		return s.clock().UTC()
	}
	return requestcontext.Now(ctx).UTC()
}

// internal logs the cause with full context and returns an opaque error.
func (s *Service) internal(ctx context.Context, err error, msg string, attributes ...any) error {
	args := append(attributes, "error", err, "request_id", request.GetRequestID(ctx))
	s.logger.ErrorContext(ctx, msg, args...)
	return dErrors.Wrap(err, dErrors.CodeInternal, msg)
}

func (s *Service) logAudit(ctx context.Context, event string, attributes ...any) {
	if requestID := request.GetRequestID(ctx); requestID != "" {
		attributes = append(attributes, "request_id", requestID)
	}
	args := append(attributes, "event", event, "log_type", "audit")
	s.logger.InfoContext(ctx, event, args...)
	if s.auditPublisher == nil {
		return
	}
	userID := attrs.ExtractString(attributes, "user_id")
	if err := s.auditPublisher.Emit(ctx, audit.Event{
		UserID:    userID,
		Subject:   attrs.ExtractString(attributes, "actor_id"),
		Action:    event,
		Decision:  attrs.ExtractString(attributes, "decision"),
		Reason:    attrs.ExtractString(attributes, "reason"),
		RequestID: attrs.ExtractString(attributes, "request_id"),
	}); err != nil {
		s.logger.WarnContext(ctx, "failed to emit audit event",
			"event", event,
			"user_id", userID,
			"error", err,
		)
	}
}

func outcomeOf(err error) string {
	if err == nil {
		return "ok"
	}
	return string(dErrors.CodeOf(err))
}

func recordSpanError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.SetAttributes(attribute.String("error_code", string(dErrors.CodeOf(err))))
	if dErrors.HasCode(err, dErrors.CodeInternal) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}
