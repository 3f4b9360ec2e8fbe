package protection

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap/zaptest"
)

func newBuiltinChecker(t *testing.T, extra ...List) *Checker {
	t.Helper()
	builtin, err := BuiltinList()
	if err != nil {
		t.Fatalf("BuiltinList: %v", err)
	}
	c, err := NewChecker(zaptest.NewLogger(t), append([]List{builtin}, extra...)...)
	if err != nil {
		t.Fatalf("NewChecker: %v", err)
	}
	return c
}

func TestCheck(t *testing.T) {
	c := newBuiltinChecker(t)

	tests := []struct {
		domain   string
		want     bool
		category string
	}{
		{"chase.com", true, "banking"},
		{"alerts.chase.com", true, "banking"},
		{"Support@Zerodha.com", true, "investment"},
		{"irs.gov", true, "government"},
		{"cs.stanford.edu", true, "education"},
		{"meine-volksbank-online.de", true, "pattern"},
		{"acme-insurance.example", true, "pattern"},
		{"shop.example.com", false, ""},
		{"newsletter.retailer.de", false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.domain, func(t *testing.T) {
			m, err := c.Check(tt.domain)
			if err != nil {
				t.Fatalf("Check: %v", err)
			}
			if m.Protected != tt.want {
				t.Fatalf("Protected = %v, want %v (%s)", m.Protected, tt.want, m.Reason)
			}
			if tt.want && m.Category != tt.category {
				t.Errorf("Category = %q, want %q", m.Category, tt.category)
			}
		})
	}
}

func TestIsProtectedInvalidDomain(t *testing.T) {
	c := newBuiltinChecker(t)

	for _, d := range []string{"", "   ", "foo bar.com", ".com"} {
		if _, err := c.IsProtected(context.Background(), d); err == nil {
			t.Errorf("IsProtected(%q): expected error", d)
		}
	}
}

func TestListFileMerged(t *testing.T) {
	path := filepath.Join(t.TempDir(), "extra.yaml")
	content := "categories:\n  employer:\n    - acme-corp.example\npatterns:\n  - '^hr\\.'\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	extra, err := LoadListFile(path)
	if err != nil {
		t.Fatalf("LoadListFile: %v", err)
	}

	c := newBuiltinChecker(t, extra)

	for _, d := range []string{"acme-corp.example", "mail.acme-corp.example", "hr.somewhere.example"} {
		ok, err := c.IsProtected(context.Background(), d)
		if err != nil || !ok {
			t.Errorf("IsProtected(%q) = %v, %v; want true", d, ok, err)
		}
	}
}

func TestNewCheckerRejectsBadPattern(t *testing.T) {
	_, err := NewChecker(zaptest.NewLogger(t), List{Patterns: []string{"("}})
	if err == nil {
		t.Error("expected error for invalid pattern")
	}
}
