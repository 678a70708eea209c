package security

import (
	"regexp"
	"strings"
)

var (
	emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)
	jwtPattern   = regexp.MustCompile(`eyJ[a-zA-Z0-9_-]*\.eyJ[a-zA-Z0-9_-]*\.[a-zA-Z0-9_-]*`)
	// base58 secret keys encode 64 bytes, which is 86 to 88 characters
	secretKeyPattern = regexp.MustCompile(`\b[1-9A-HJ-NP-Za-km-z]{86,88}\b`)
	botTokenPattern  = regexp.MustCompile(`\b[0-9]{6,12}:[A-Za-z0-9_-]{30,}\b`)
)

// MaskString redacts secrets and emails found anywhere in s
func MaskString(s string) string {
	s = secretKeyPattern.ReplaceAllString(s, "***REDACTED_KEY***")
	s = botTokenPattern.ReplaceAllString(s, "***REDACTED_TOKEN***")
	s = jwtPattern.ReplaceAllString(s, "eyJ***REDACTED***")
	s = emailPattern.ReplaceAllStringFunc(s, MaskEmail)
	return s
}

// MaskEmail keeps the first letter of the local part and the domain
func MaskEmail(email string) string {
	local, domain, ok := strings.Cut(email, "@")
	if !ok || local == "" {
		return "***@***"
	}
	return local[:1] + "***@" + domain
}

// MaskAddress shortens a wallet address to its first and last four characters
func MaskAddress(addr string) string {
	if len(addr) <= 12 {
		return addr
	}
	return addr[:4] + "..." + addr[len(addr)-4:]
}
