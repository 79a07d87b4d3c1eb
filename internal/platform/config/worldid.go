package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	dErrors "personhood/pkg/domain-errors"
)

const (
	DefaultVerificationLevel = "orb"
	DefaultAPIBaseURL        = "https://developer.worldcoin.org/api/v1"
	DefaultVerifyURL         = "https://worldcoin.org/verify"
	DefaultTrustScoreBoost   = 50
	DefaultBadgeName         = "World ID Verified"
	DefaultAction            = "verify"
	DefaultSessionTTL        = 15 * time.Minute
	DefaultVerifyTimeout     = 10 * time.Second
)

// WorldID holds the application identity and tuning for World ID verification.
type WorldID struct {
	AppID             string
	APIKey            string
	VerificationLevel string
	BaseURL           string
	VerifyURL         string
	TrustScoreBoost   int
	BadgeName         string
	Action            string
	SessionTTL        time.Duration
	VerifyTimeout     time.Duration
}

// LoadWorldID reads World ID settings from the environment.
func LoadWorldID() (*WorldID, error) {
	return LoadWorldIDFrom(os.Getenv)
}

// LoadWorldIDFrom reads World ID settings through getenv. It fails with
// CodeConfiguration when the app id or API key is missing, or when a tuning
// value cannot be parsed.
func LoadWorldIDFrom(getenv func(string) string) (*WorldID, error) {
	get := func(key string) string { return strings.TrimSpace(getenv(key)) }

	cfg := &WorldID{
		AppID:             get("WORLDID_APP_ID"),
		APIKey:            get("WORLDID_API_KEY"),
		VerificationLevel: DefaultVerificationLevel,
		BaseURL:           DefaultAPIBaseURL,
		VerifyURL:         DefaultVerifyURL,
		TrustScoreBoost:   DefaultTrustScoreBoost,
		BadgeName:         DefaultBadgeName,
		Action:            DefaultAction,
		SessionTTL:        DefaultSessionTTL,
		VerifyTimeout:     DefaultVerifyTimeout,
	}
	if cfg.AppID == "" || cfg.APIKey == "" {
		return nil, dErrors.New(dErrors.CodeConfiguration,
			"World ID configuration missing: set WORLDID_APP_ID and WORLDID_API_KEY")
	}

	if v := get("WORLDID_VERIFICATION_LEVEL"); v != "" {
		switch v {
		case "orb", "device", "phone":
			cfg.VerificationLevel = v
		default:
			return nil, dErrors.New(dErrors.CodeConfiguration,
				fmt.Sprintf("invalid WORLDID_VERIFICATION_LEVEL %q", v))
		}
	}
	if v := get("WORLDID_API_BASE_URL"); v != "" {
		cfg.BaseURL = strings.TrimRight(v, "/")
	}
	if v := get("WORLDID_VERIFY_URL"); v != "" {
		cfg.VerifyURL = v
	}
	if v := get("WORLDID_TRUST_SCORE_BOOST"); v != "" {
		boost, err := strconv.Atoi(v)
		if err != nil || boost < 0 {
			return nil, dErrors.New(dErrors.CodeConfiguration,
				fmt.Sprintf("invalid WORLDID_TRUST_SCORE_BOOST %q", v))
		}
		cfg.TrustScoreBoost = boost
	}
	if v := get("WORLDID_BADGE_NAME"); v != "" {
		cfg.BadgeName = v
	}
	if v := get("WORLDID_ACTION"); v != "" {
		cfg.Action = v
	}
	if v := get("WORLDID_SESSION_TTL"); v != "" {
		ttl, err := time.ParseDuration(v)
		if err != nil || ttl <= 0 {
			return nil, dErrors.New(dErrors.CodeConfiguration,
				fmt.Sprintf("invalid WORLDID_SESSION_TTL %q", v))
		}
		cfg.SessionTTL = ttl
	}
	if v := get("WORLDID_VERIFY_TIMEOUT"); v != "" {
		timeout, err := time.ParseDuration(v)
		if err != nil || timeout <= 0 {
			return nil, dErrors.New(dErrors.CodeConfiguration,
				fmt.Sprintf("invalid WORLDID_VERIFY_TIMEOUT %q", v))
		}
		cfg.VerifyTimeout = timeout
	}
	return cfg, nil
}

// AppIDPrefix returns the first eight characters of the app id for logs.
func (c *WorldID) AppIDPrefix() string {
	if len(c.AppID) <= 8 {
		return c.AppID
	}
	return c.AppID[:8] + "..."
}
