package domain

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
)

// UsernamePolicy decides what happens when two sessions ask for the same name
type UsernamePolicy string

const (
	// UsernamePolicyReject refuses a name already held by another session
	UsernamePolicyReject UsernamePolicy = "reject"
	// UsernamePolicyAllow lets several sessions share a name
	UsernamePolicyAllow UsernamePolicy = "allow"
)

// ParseUsernamePolicy falls back to reject for unknown values
func ParseUsernamePolicy(s string) UsernamePolicy {
	if UsernamePolicy(strings.ToLower(strings.TrimSpace(s))) == UsernamePolicyAllow {
		return UsernamePolicyAllow
	}
	return UsernamePolicyReject
}

// NewSessionID returns a fresh opaque session identifier
func NewSessionID() string {
	return uuid.New().String()
}

// NormalizeUsername trims the requested name and checks it against the login rules
func NormalizeUsername(name string, maxLen int) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrEmptyUsername
	}
	if n := utf8.RuneCountInString(name); maxLen > 0 && n > maxLen {
		return "", fmt.Errorf("%w: %d > %d runes", ErrUsernameTooLong, n, maxLen)
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return "", ErrUsernameInvalid
		}
	}
	return name, nil
}

// SameUsername compares names the way the duplicate check does
func SameUsername(a, b string) bool {
	return strings.EqualFold(a, b)
}
