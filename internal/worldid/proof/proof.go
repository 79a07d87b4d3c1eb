// Package proof holds the cheap, side-effect free format checks run on a
// proof payload before any store or network access.
package proof

import (
	"encoding/json"
	"regexp"
	"strings"

	"personhood/internal/worldid/models"
)

var (
	nullifierHashPattern = regexp.MustCompile(`^[0-9a-fA-F]{64}$`)
	hexPattern           = regexp.MustCompile(`^[0-9a-fA-F]+$`)
)

// ValidateNullifierHash reports whether s is exactly 64 hex characters.
func ValidateNullifierHash(s string) bool {
	return nullifierHashPattern.MatchString(s)
}

// CanonicalNullifierHash returns the ledger key for a validated nullifier
// hash. Hex digits compare case-insensitively, so the key is lower case.
func CanonicalNullifierHash(s string) string {
	return strings.ToLower(s)
}

// ValidateProofFormat accepts a brace-delimited JSON object or a non-empty hex
// string. Any parse failure means invalid.
func ValidateProofFormat(s string) bool {
	if strings.HasPrefix(s, "{") && strings.HasSuffix(s, "}") {
		var obj map[string]any
		return json.Unmarshal([]byte(s), &obj) == nil
	}
	return hexPattern.MatchString(s)
}

// ValidateVerificationLevel reports whether s names a known assurance tier.
func ValidateVerificationLevel(s string) bool {
	return models.VerificationLevel(s).IsValid()
}
