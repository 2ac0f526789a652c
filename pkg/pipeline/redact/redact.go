package redact

import (
	"regexp"
	"strings"
)

var (
	// Matches "Bearer <token>" (JWTs and opaque tokens).
	bearerTokenRe = regexp.MustCompile(`(?i)\bBearer\s+[^\s"']+`)

	// Credential key=value / key: value pairs that leak through upstream error strings.
	credentialKVRe = regexp.MustCompile(`(?i)\b(api[_-]?key|gemini[_-]?api[_-]?key|client[_-]?secret|refresh[_-]?token|access[_-]?token|password)\b("?\s*[:=]\s*"?)[^\s"'&,]+`)

	// Places API keys travel as a "key" URL query parameter.
	queryKeyRe = regexp.MustCompile(`([?&]key=)[^\s&"']+`)

	// Google API keys have a fixed prefix.
	googleAPIKeyRe = regexp.MustCompile(`\bAIza[0-9A-Za-z_\-]{20,}`)
)

// Secrets removes obvious secret-bearing substrings from error/log strings.
func Secrets(s string) string {
	if s == "" {
		return ""
	}
	out := s
	out = bearerTokenRe.ReplaceAllString(out, "Bearer <redacted>")
	out = credentialKVRe.ReplaceAllString(out, "${1}${2}<redacted>")
	out = queryKeyRe.ReplaceAllString(out, "${1}<redacted>")
	out = googleAPIKeyRe.ReplaceAllString(out, "<redacted>")
	return strings.TrimSpace(out)
}
