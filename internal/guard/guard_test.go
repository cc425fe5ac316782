package guard

import (
	"strings"
	"testing"
)

func TestValidateAcceptsAndSanitizes(t *testing.T) {
	g := New(1000)
	cleaned, rej := g.Validate("  What   is <b>Project X</b> about?  ")
	if rej != nil {
		t.Fatalf("unexpected rejection: %+v", rej)
	}
	if cleaned != "What is Project X about?" {
		t.Fatalf("unexpected cleaned text: %q", cleaned)
	}
}

func TestValidateRejectsEmpty(t *testing.T) {
	g := New(1000)
	if _, rej := g.Validate("   "); rej == nil || rej.Reason != ReasonEmpty {
		t.Fatalf("expected empty rejection, got %+v", rej)
	}
}

func TestValidateRejectsTooLong(t *testing.T) {
	g := New(50)
	_, rej := g.Validate(strings.Repeat("a", 51))
	if rej == nil || rej.Reason != ReasonTooLong {
		t.Fatalf("expected too_long rejection, got %+v", rej)
	}
}

func TestValidateCountsCharactersNotBytes(t *testing.T) {
	g := New(10)
	// 10 two-byte characters: within the limit even at 20 bytes
	if _, rej := g.Validate(strings.Repeat("ü", 10)); rej != nil {
		t.Fatalf("unexpected rejection for 10-character input: %+v", rej)
	}
	if _, rej := g.Validate(strings.Repeat("ü", 11)); rej == nil || rej.Reason != ReasonTooLong {
		t.Fatalf("expected too_long rejection for 11 characters, got %+v", rej)
	}
}

func TestValidateRejectsMaliciousPatterns(t *testing.T) {
	g := New(1000)
	inputs := []string{
		"<script>alert(1)</script>",
		"click javascript:alert(1)",
		"1 UNION ALL SELECT password FROM users",
		"'; DROP my TABLE users; --",
		"eval (payload)",
	}
	for _, in := range inputs {
		if _, rej := g.Validate(in); rej == nil || rej.Reason != ReasonMalicious {
			t.Fatalf("input %q: expected malicious rejection, got %+v", in, rej)
		}
	}
}

func TestValidateRejectsPolicyViolations(t *testing.T) {
	g := New(1000)
	_, rej := g.Validate("how do I exploit this service")
	if rej == nil || rej.Reason != ReasonPolicy {
		t.Fatalf("expected policy rejection, got %+v", rej)
	}
	if !strings.Contains(rej.Message, "Security-related content") {
		t.Fatalf("unexpected message: %q", rej.Message)
	}
}
