package challenge

import "regexp"

// credentialExtractor pulls a temporary credential out of a rendered provider
// message. Isolated behind its own interface so the legacy path can be
// removed independently once the encrypted-code path fully replaces it.
type credentialExtractor interface {
	Extract(message string) (string, bool)
}

type legacyExtractor struct {
	patterns []*regexp.Regexp
}

// Candidate phrasings are environment-specific and not exhaustive; an
// unmatched message is expected and handled by the caller's fallback chain.
func newLegacyExtractor() *legacyExtractor {
	return &legacyExtractor{
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)temporary password is[:\s]+([^\s.,]+)`),
			regexp.MustCompile(`(?i)password is[:\s]+([^\s.,]+)`),
			regexp.MustCompile(`(?i)parol[i]?[:\s]+([^\s.,]+)`),
			regexp.MustCompile(`(?i)verification code[:\s]+(\d{4,8})`),
			regexp.MustCompile(`(?i)kod[i]?[:\s]+(\d{4,8})`),
		},
	}
}

func (e *legacyExtractor) Extract(message string) (string, bool) {
	for _, p := range e.patterns {
		if m := p.FindStringSubmatch(message); m != nil {
			return m[1], true
		}
	}
	return "", false
}
