// Package token resolves scanned NFC tags and QR payloads against a profile's
// registered physical tokens.
package token

import (
	"encoding/hex"
	"strings"

	"github.com/eliteGoblin/focusd/focuslock/internal/domain"
)

// Default deep-link prefixes recognized in QR payloads.
var DefaultPrefixes = []string{
	"https://foqos.app/profile/",
	"foqos://profile/",
}

// Match is a scan resolved against a profile. It can only be obtained from
// Resolve, so operations that demand a Match can only be driven by a real scan.
type Match struct {
	profileID string
	token     domain.PhysicalToken
}

// ProfileID returns the profile the token belongs to.
func (m Match) ProfileID() string { return m.profileID }

// TokenID returns the matched token id.
func (m Match) TokenID() string { return m.token.TokenID }

// Mode returns the action bound to the token.
func (m Match) Mode() domain.TokenMode { return m.token.Mode }

// Label returns the optional token label.
func (m Match) Label() string { return m.token.Label }

// Valid reports whether m came from a successful Resolve.
func (m Match) Valid() bool { return m.profileID != "" && m.token.TokenID != "" }

// Resolve finds the first token on profile whose id equals scannedID.
func Resolve(profile *domain.Profile, scannedID string) (Match, error) {
	if profile == nil || scannedID == "" {
		return Match{}, domain.ErrTokenUnrecognized
	}
	for _, t := range profile.Tokens {
		if t.TokenID == scannedID {
			return Match{profileID: profile.ID, token: t}, nil
		}
	}
	return Match{}, domain.ErrTokenUnrecognized
}

// NFCTagID renders a tag UID as uppercase hex, the form tokens are registered with.
func NFCTagID(uid []byte) string {
	return strings.ToUpper(hex.EncodeToString(uid))
}

// ParseNFC normalizes a typed tag id ("04:a1:b2" or "04a1b2") to NFCTagID form.
func ParseNFC(v string) (string, bool) {
	clean := strings.NewReplacer(":", "", "-", "", " ", "").Replace(v)
	uid, err := hex.DecodeString(clean)
	if err != nil || len(uid) == 0 {
		return "", false
	}
	return NFCTagID(uid), true
}

// ParseQR returns the segment after a known deep-link prefix, or the raw
// payload when it is not a deep link.
func ParseQR(payload string, prefixes []string) string {
	payload = strings.TrimSpace(payload)
	for _, p := range prefixes {
		if rest, ok := strings.CutPrefix(payload, p); ok {
			rest, _, _ = strings.Cut(rest, "?")
			return strings.Trim(rest, "/")
		}
	}
	return payload
}

// IsDeepLink reports whether payload carries one of the prefixes.
func IsDeepLink(payload string, prefixes []string) bool {
	payload = strings.TrimSpace(payload)
	for _, p := range prefixes {
		if strings.HasPrefix(payload, p) {
			return true
		}
	}
	return false
}

// ProfileLink builds the canonical deep link for a profile.
func ProfileLink(profileID string) string {
	return DefaultPrefixes[0] + profileID
}
