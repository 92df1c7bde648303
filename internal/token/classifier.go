package token

import (
	"regexp"
	"strings"
)

// Family is the push channel family a registration token belongs to.
type Family string

const (
	FamilyAPNS  Family = "apns"
	FamilyFCM   Family = "fcm"
	FamilyRelay Family = "relay"
)

// Classification is the routing decision for one push-registration string.
// Defaulted marks the catch-all FCM branch so callers can log unrecognized
// formats without the classifier itself doing I/O.
type Classification struct {
	Family    Family
	Valid     bool
	Defaulted bool
}

var (
	relayTokenRe = regexp.MustCompile(`^Expo(nent)?PushToken\[[^\]]+\]$`)
	hexTokenRe   = regexp.MustCompile(`^[0-9a-fA-F]{64,}$`)
)

// Classify inspects an opaque push-registration string and determines its
// channel family and validity. Pure and total: rules apply in order, first
// match wins, and unrecognized-but-plausible tokens degrade to FCM so they
// still get a delivery attempt.
func Classify(token string) Classification {
	token = strings.TrimSpace(token)

	if token == "" {
		return Classification{Family: FamilyAPNS, Valid: false}
	}
	if relayTokenRe.MatchString(token) {
		return Classification{Family: FamilyRelay, Valid: true}
	}
	if hexTokenRe.MatchString(token) {
		return Classification{Family: FamilyAPNS, Valid: true}
	}
	// Colon-separated and anything else: assume FCM. Explicit default branch,
	// observable via Defaulted.
	return Classification{Family: FamilyFCM, Valid: true, Defaulted: true}
}
