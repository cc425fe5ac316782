package guard

import (
	"fmt"
	"log"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Reason classifies why an input was rejected.
type Reason string

const (
	ReasonEmpty     Reason = "empty"
	ReasonTooLong   Reason = "too_long"
	ReasonMalicious Reason = "malicious"
	ReasonPolicy    Reason = "policy"
)

// Rejection is a structured validation outcome, not an error: rejected
// input is a normal, reportable result.
type Rejection struct {
	Reason  Reason
	Message string
}

// blocked patterns cover injection and script markers; matched against the
// lowercased input.
var blockedPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?s)<script.*?>.*?</script>`),
	regexp.MustCompile(`javascript:`),
	regexp.MustCompile(`data:text/html`),
	regexp.MustCompile(`vbscript:`),
	regexp.MustCompile(`\bunion\b.*\bselect\b`),
	regexp.MustCompile(`\bdrop\b.*\btable\b`),
	regexp.MustCompile(`eval\s*\(`),
	regexp.MustCompile(`exec\s*\(`),
}

type policyRule struct {
	re       *regexp.Regexp
	category string
}

var policyRules = []policyRule{
	{regexp.MustCompile(`\b(hack|exploit|vulnerability)\b`), "Security-related content"},
	{regexp.MustCompile(`\b(illegal|criminal|fraud)\b`), "Illegal activity content"},
	{regexp.MustCompile(`\b(violence|harmful|dangerous)\b`), "Harmful content"},
}

var (
	htmlTagRE    = regexp.MustCompile(`<[^>]+>`)
	whitespaceRE = regexp.MustCompile(`\s+`)
)

// Guard validates and sanitizes incoming question text.
type Guard struct {
	maxLength int
	logger    *log.Logger
}

func New(maxLength int) *Guard {
	if maxLength <= 0 {
		maxLength = 1000
	}
	return &Guard{
		maxLength: maxLength,
		logger:    log.New(log.Writer(), "[GUARD] ", log.LstdFlags),
	}
}

// Validate checks the raw input against length, blocked-pattern and content
// policy rules. On success it returns the sanitized text; on failure it
// returns a Rejection with a caller-safe message. Malicious and policy
// violations are logged as security events; ordinary failures like length
// are not.
func (g *Guard) Validate(raw string) (string, *Rejection) {
	if strings.TrimSpace(raw) == "" {
		return "", &Rejection{Reason: ReasonEmpty, Message: "empty input not allowed"}
	}
	// the limit is in characters, not bytes
	if utf8.RuneCountInString(raw) > g.maxLength {
		return "", &Rejection{
			Reason:  ReasonTooLong,
			Message: fmt.Sprintf("input too long, maximum %d characters allowed", g.maxLength),
		}
	}

	lowered := strings.ToLower(raw)
	for _, re := range blockedPatterns {
		if re.MatchString(lowered) {
			g.securityEvent("MALICIOUS_INPUT_DETECTED", "pattern matched: "+re.String(), "CRITICAL")
			return "", &Rejection{Reason: ReasonMalicious, Message: "input contains potentially malicious content"}
		}
	}
	for _, rule := range policyRules {
		if rule.re.MatchString(lowered) {
			g.securityEvent("CONTENT_POLICY_VIOLATION", "category: "+rule.category, "WARNING")
			return "", &Rejection{Reason: ReasonPolicy, Message: "content violates policy: " + rule.category}
		}
	}

	return sanitize(raw), nil
}

// sanitize strips HTML tags and collapses whitespace.
func sanitize(s string) string {
	cleaned := htmlTagRE.ReplaceAllString(s, "")
	cleaned = whitespaceRE.ReplaceAllString(cleaned, " ")
	return strings.TrimSpace(cleaned)
}

func (g *Guard) securityEvent(event, details, severity string) {
	g.logger.Printf("Security Event: %s - %s (severity=%s)", event, details, severity)
}
