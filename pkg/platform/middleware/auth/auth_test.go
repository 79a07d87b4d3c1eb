package auth

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"personhood/pkg/requestcontext"
)

type fakeValidator map[string]*Claims

func (f fakeValidator) ValidateToken(token string) (*Claims, error) {
	if c, ok := f[token]; ok {
		return c, nil
	}
	return nil, errors.New("bad token")
}

type fakeRevocations struct {
	revoked map[string]bool
	err     error
}

func (f fakeRevocations) IsRevoked(_ context.Context, jti string) (bool, error) {
	return f.revoked[jti], f.err
}

func TestRequireAuth(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	validator := fakeValidator{
		"good":    {AccountID: "acct-1", JTI: "jti-1"},
		"revoked": {AccountID: "acct-2", JTI: "jti-2"},
		"anon":    {AccountID: ""},
	}

	var gotAccount, gotJTI string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAccount = requestcontext.AccountID(r.Context())
		gotJTI = requestcontext.TokenID(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})

	tests := []struct {
		name        string
		header      string
		revocations TokenRevocationChecker
		wantStatus  int
		wantAccount string
	}{
		{"valid token", "Bearer good", fakeRevocations{}, http.StatusNoContent, "acct-1"},
		{"no revocation checker", "Bearer good", nil, http.StatusNoContent, "acct-1"},
		{"missing header", "", nil, http.StatusUnauthorized, ""},
		{"wrong scheme", "Basic good", nil, http.StatusUnauthorized, ""},
		{"invalid token", "Bearer nope", nil, http.StatusUnauthorized, ""},
		{"token without account", "Bearer anon", nil, http.StatusUnauthorized, ""},
		{"revoked token", "Bearer revoked", fakeRevocations{revoked: map[string]bool{"jti-2": true}}, http.StatusUnauthorized, ""},
		{"revocation backend down", "Bearer good", fakeRevocations{err: errors.New("redis down")}, http.StatusInternalServerError, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotAccount, gotJTI = "", ""
			req := httptest.NewRequest(http.MethodGet, "/worldid/status", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()

			RequireAuth(validator, tt.revocations, logger)(next).ServeHTTP(rr, req)

			assert.Equal(t, tt.wantStatus, rr.Code)
			assert.Equal(t, tt.wantAccount, gotAccount)
			if tt.wantStatus == http.StatusNoContent {
				assert.Equal(t, "jti-1", gotJTI)
			} else {
				assert.Contains(t, rr.Body.String(), `"success":false`)
			}
		})
	}
}
