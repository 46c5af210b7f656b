package authflow

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	maxIdentityLength    = 254
	maxDisplayNameLength = 100
)

var identityPattern = regexp.MustCompile(`^\S+@\S+\.\S+$`)

// NormalizeIdentity trims and lower-cases an email address and reports
// whether the result is well formed.
func NormalizeIdentity(raw string) (string, bool) {
	identity := strings.ToLower(strings.TrimSpace(raw))
	if identity == "" || len(identity) > maxIdentityLength {
		return "", false
	}
	if !identityPattern.MatchString(identity) {
		return "", false
	}
	return identity, true
}

func validateDisplayName(raw string) (string, bool) {
	name := strings.Join(strings.Fields(raw), " ")
	if name == "" || utf8.RuneCountInString(name) > maxDisplayNameLength {
		return "", false
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return "", false
		}
	}
	return name, true
}
