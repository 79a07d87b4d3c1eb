package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"personhood/internal/platform/metrics"
	"personhood/internal/worldid/models"
	"personhood/internal/worldid/verifier"
	dErrors "personhood/pkg/domain-errors"
	"personhood/pkg/platform/httputil"
	request "personhood/pkg/platform/middleware/request"
	"personhood/pkg/requestcontext"
)

const maxBodyBytes = 64 << 10

// Service defines the interface for World ID verification operations.
type Service interface {
	InitVerification(ctx context.Context, accountID, action string) (*models.InitResult, error)
	VerifyProof(ctx context.Context, accountID string, req models.VerifyProofRequest) (*models.VerifyResult, error)
	GetStatus(ctx context.Context, accountID string) (*models.Status, error)
	EnsureAccount(ctx context.Context, accountID string) (*models.Status, error)
	LookupNullifier(ctx context.Context, nullifierHash string) (*models.NullifierRecord, error)
}

// Handler serves the /worldid endpoints and the operator routes.
type Handler struct {
	service Service
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// New creates a new World ID Handler.
func New(service Service, logger *slog.Logger, metrics *metrics.Metrics) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
		metrics: metrics,
	}
}

// Register mounts the account-facing routes behind requireAuth.
func (h *Handler) Register(r chi.Router, requireAuth func(http.Handler) http.Handler) {
	r.Route("/worldid", func(r chi.Router) {
		r.Use(request.ContentTypeJSON)
		r.Use(h.metrics.LatencyMiddleware)
		r.Use(requireAuth)
		r.Post("/init", h.HandleInit)
		r.Post("/verify", h.HandleVerify)
		r.Get("/status", h.HandleStatus)
	})
}

// RegisterAdmin mounts the operator routes behind requireAdmin.
func (h *Handler) RegisterAdmin(r chi.Router, requireAdmin func(http.Handler) http.Handler) {
	r.Route("/admin", func(r chi.Router) {
		r.Use(request.ContentTypeJSON)
		r.Use(h.metrics.LatencyMiddleware)
		r.Use(requireAdmin)
		r.Put("/accounts/{accountID}", h.HandleEnsureAccount)
		r.Get("/nullifiers/{nullifierHash}", h.HandleLookupNullifier)
	})
}

type initResponse struct {
	Success         bool   `json:"success"`
	VerificationURL string `json:"verificationUrl"`
	Signal          string `json:"signal"`
}

type verifyResponse struct {
	Success           bool   `json:"success"`
	Verified          bool   `json:"verified"`
	TrustScoreBoost   int    `json:"trustScoreBoost"`
	VerificationBadge string `json:"verificationBadge"`
}

type verifyFailedResponse struct {
	Success          bool   `json:"success"`
	Verified         bool   `json:"verified"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	Code             string `json:"code,omitempty"`
}

type statusResponse struct {
	Success            bool       `json:"success"`
	IsVerified         bool       `json:"isVerified"`
	VerificationMethod *string    `json:"verificationMethod"`
	VerifiedAt         *time.Time `json:"verifiedAt"`
	TrustScore         int        `json:"trustScore"`
	VerificationBadges []string   `json:"verificationBadges"`
}

type nullifierResponse struct {
	Success           bool      `json:"success"`
	ID                string    `json:"id"`
	NullifierHash     string    `json:"nullifierHash"`
	UserID            string    `json:"userId"`
	VerifiedAt        time.Time `json:"verifiedAt"`
	VerificationLevel string    `json:"verificationLevel"`
}

// HandleInit starts a verification session for the authenticated account.
func (h *Handler) HandleInit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := request.GetRequestID(ctx)
	accountID, ok := h.requireAccount(w, r)
	if !ok {
		return
	}

	var req models.InitRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		h.logger.WarnContext(ctx, "invalid init request",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	res, err := h.service.InitVerification(ctx, accountID, req.Action)
	if err != nil {
		h.logFailure(ctx, "world id init failed", accountID, err)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, initResponse{
		Success:         true,
		VerificationURL: res.VerificationURL,
		Signal:          res.Signal,
	})
}

// HandleVerify checks a World ID proof for the authenticated account.
func (h *Handler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := request.GetRequestID(ctx)
	accountID, ok := h.requireAccount(w, r)
	if !ok {
		return
	}

	var req models.VerifyProofRequest
	if err := decodeJSON(r, &req); err != nil {
		h.logger.WarnContext(ctx, "invalid verify request",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	res, err := h.service.VerifyProof(ctx, accountID, req)
	if err != nil {
		h.logFailure(ctx, "world id verification failed", accountID, err)
		if dErrors.HasCode(err, dErrors.CodeVerificationFailed) {
			resp := verifyFailedResponse{
				Error:            string(dErrors.CodeVerificationFailed),
				ErrorDescription: dErrors.MessageOf(err),
			}
			var remote *verifier.RemoteError
			if errors.As(err, &remote) {
				resp.Code = remote.Code
			}
			httputil.WriteJSON(w, http.StatusBadRequest, resp)
			return
		}
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, verifyResponse{
		Success:           true,
		Verified:          res.Verified,
		TrustScoreBoost:   res.TrustScoreBoost,
		VerificationBadge: res.VerificationBadge,
	})
}

// HandleStatus reports the authenticated account's verification state.
func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	accountID, ok := h.requireAccount(w, r)
	if !ok {
		return
	}

	status, err := h.service.GetStatus(ctx, accountID)
	if err != nil {
		h.logFailure(ctx, "world id status failed", accountID, err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toStatusResponse(status))
}

func (h *Handler) HandleEnsureAccount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	accountID := chi.URLParam(r, "accountID")

	status, err := h.service.EnsureAccount(ctx, accountID)
	if err != nil {
		h.logFailure(ctx, "account provisioning failed", accountID, err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toStatusResponse(status))
}

func (h *Handler) HandleLookupNullifier(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	record, err := h.service.LookupNullifier(ctx, chi.URLParam(r, "nullifierHash"))
	if err != nil {
		h.logFailure(ctx, "nullifier lookup failed", "", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, nullifierResponse{
		Success:           true,
		ID:                record.ID.String(),
		NullifierHash:     record.NullifierHash,
		UserID:            record.UserID,
		VerifiedAt:        record.VerifiedAt,
		VerificationLevel: record.VerificationLevel.String(),
	})
}

// requireAccount reads the account the auth middleware put in context.
func (h *Handler) requireAccount(w http.ResponseWriter, r *http.Request) (string, bool) {
	ctx := r.Context()
	accountID := requestcontext.AccountID(ctx)
	if accountID == "" {
		h.logger.ErrorContext(ctx, "account id missing from context despite auth middleware",
			"request_id", request.GetRequestID(ctx),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return "", false
	}
	return accountID, true
}

// logFailure logs client errors at warn and everything else at error.
func (h *Handler) logFailure(ctx context.Context, msg, accountID string, err error) {
	args := []any{
		"request_id", request.GetRequestID(ctx),
		"user_id", accountID,
		"code", string(dErrors.CodeOf(err)),
		"error", err,
	}
	if httputil.StatusFor(dErrors.CodeOf(err)) >= http.StatusInternalServerError {
		h.logger.ErrorContext(ctx, msg, args...)
		return
	}
	h.logger.WarnContext(ctx, msg, args...)
}

func decodeJSON(r *http.Request, v any) error {
	return json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(v)
}

func toStatusResponse(st *models.Status) statusResponse {
	badges := st.VerificationBadges
	if badges == nil {
		badges = []string{}
	}
	return statusResponse{
		Success:            true,
		IsVerified:         st.IsVerified,
		VerificationMethod: st.VerificationMethod,
		VerifiedAt:         st.VerifiedAt,
		TrustScore:         st.TrustScore,
		VerificationBadges: badges,
	}
}
