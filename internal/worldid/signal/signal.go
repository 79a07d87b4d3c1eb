// Package signal mints the per-attempt challenge bound into a World ID proof.
package signal

import (
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
	"net/url"
	"time"
)

const (
	saltAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
	saltLength   = 13
)

// Generator builds signals of the form "{accountID}:{action}:{epochMillis}:{salt}".
// Uniqueness is best effort; the signal binds one session, it is not a secret.
type Generator struct {
	now  func() time.Time
	rand io.Reader
}

type Option func(*Generator)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) { g.now = now }
}

// WithRandom overrides the salt entropy source.
func WithRandom(r io.Reader) Option {
	return func(g *Generator) { g.rand = r }
}

func NewGenerator(opts ...Option) *Generator {
	g := &Generator{now: time.Now, rand: rand.Reader}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate returns a fresh signal for accountID and action.
func (g *Generator) Generate(accountID, action string) (string, error) {
	salt, err := g.salt()
	if err != nil {
		return "", fmt.Errorf("generate signal salt: %w", err)
	}
	return fmt.Sprintf("%s:%s:%d:%s", accountID, action, g.now().UnixMilli(), salt), nil
}

func (g *Generator) salt() (string, error) {
	out := make([]byte, saltLength)
	limit := big.NewInt(int64(len(saltAlphabet)))
	for i := range out {
		n, err := rand.Int(g.rand, limit)
		if err != nil {
			return "", err
		}
		out[i] = saltAlphabet[n.Int64()]
	}
	return string(out), nil
}

// VerificationURL builds the client deep link carrying app_id, signal and action.
func VerificationURL(base, appID, signal, action string) string {
	params := url.Values{}
	params.Set("app_id", appID)
	params.Set("signal", signal)
	params.Set("action", action)
	return base + "?" + params.Encode()
}
