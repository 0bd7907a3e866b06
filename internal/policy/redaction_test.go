package policy

import (
	"strings"
	"testing"
)

func TestRedactPII(t *testing.T) {
	input := "Mera number +91 98765 43210 hai, aadhaar 2345 6789 0123, mail ram@example.in"
	out, changed := RedactPII(input)
	if !changed {
		t.Fatalf("changed = false, want true")
	}
	for _, marker := range []string{"[REDACTED_EMAIL]", "[REDACTED_PHONE]", "[REDACTED_AADHAAR]"} {
		if !strings.Contains(out, marker) {
			t.Fatalf("output missing marker %q: %q", marker, out)
		}
	}
	if strings.Contains(out, "2345") || strings.Contains(out, "98765") {
		t.Fatalf("digits leaked: %q", out)
	}
}

func TestRedactPIILeavesPlainText(t *testing.T) {
	out, changed := RedactPII("when should I sow wheat")
	if changed || out != "when should I sow wheat" {
		t.Fatalf("RedactPII() = %q, %v", out, changed)
	}
}

func TestRedactURL(t *testing.T) {
	got := RedactURL("postgres://saarthi:s3cret@db:5432/saarthi?sslmode=disable")
	if strings.Contains(got, "s3cret") {
		t.Fatalf("RedactURL() leaked password: %q", got)
	}
	if !strings.Contains(got, "saarthi:xxxxx@db:5432") {
		t.Fatalf("RedactURL() = %q", got)
	}
	if RedactURL("") != "" {
		t.Fatalf("RedactURL(empty) should stay empty")
	}
}
