package redact

import "regexp"

// rule pairs a sensitive-data pattern with its fixed placeholder token.
// Rules are applied in order; tokens never re-match any pattern, so
// redaction is idempotent.
type rule struct {
	re    *regexp.Regexp
	token string
}

var rules = []rule{
	{regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`), "[SSN_REDACTED]"},
	{regexp.MustCompile(`\b\d{4}[-\s]?\d{4}[-\s]?\d{4}[-\s]?\d{4}\b`), "[CARD_REDACTED]"},
	{regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`), "[EMAIL_REDACTED]"},
	{regexp.MustCompile(`\b\d{3}[-.]?\d{3}[-.]?\d{4}\b`), "[PHONE_REDACTED]"},
}

// Redact replaces SSNs, card numbers, email addresses and phone numbers
// with placeholder tokens before text leaves the pipeline.
func Redact(text string) string {
	for _, r := range rules {
		text = r.re.ReplaceAllString(text, r.token)
	}
	return text
}
