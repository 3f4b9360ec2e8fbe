package classify

import (
	"errors"
	"testing"

	"github.com/mikey/inbox-sweeper/internal/core"
	"github.com/mikey/inbox-sweeper/internal/utils"
	"go.uber.org/zap/zaptest"
)

func TestParseClassificationsRejectsContractViolations(t *testing.T) {
	tests := []struct {
		name  string
		reply string
	}{
		{"no array", `the model refused`},
		{"missing index", `[{"idx":0,"cat":"promotional","c":90}]`},
		{"duplicate index", `[{"idx":0,"cat":"promotional","c":90},{"idx":0,"cat":"promotional","c":91}]`},
		{"out of range", `[{"idx":0,"cat":"promotional","c":90},{"idx":2,"cat":"promotional","c":91}]`},
		{"negative index", `[{"idx":-1,"cat":"promotional","c":90},{"idx":1,"cat":"promotional","c":91}]`},
		{"unknown category", `[{"idx":0,"cat":"spam","c":90},{"idx":1,"cat":"promotional","c":91}]`},
		{"confidence above 100", `[{"idx":0,"cat":"promotional","c":150},{"idx":1,"cat":"promotional","c":91}]`},
		{"fractional confidence", `[{"idx":0,"cat":"promotional","c":85.5},{"idx":1,"cat":"promotional","c":91}]`},
		{"missing confidence", `[{"idx":0,"cat":"promotional"},{"idx":1,"cat":"promotional","c":91}]`},
		{"missing index field", `[{"cat":"promotional","c":90},{"idx":1,"cat":"promotional","c":91}]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseClassifications(tt.reply, 2)
			if !errors.Is(err, core.ErrMalformedResponse) {
				t.Errorf("err = %v, want ErrMalformedResponse", err)
			}
		})
	}
}

func TestParseClassificationsAcceptsWholeFloat(t *testing.T) {
	got, err := parseClassifications(`Sure! [{"idx":1,"cat":"SOCIAL_PLATFORM","c":85.0},{"idx":0,"cat":"Personal_Human","c":"70"}]`, 2)
	if err != nil {
		t.Fatalf("parseClassifications: %v", err)
	}
	if got[0].verdict != (core.Verdict{Category: core.CategoryPersonalHuman, Confidence: 70}) {
		t.Errorf("item 0 = %+v", got[0].verdict)
	}
	if got[1].verdict != (core.Verdict{Category: core.CategorySocialPlatform, Confidence: 85}) {
		t.Errorf("item 1 = %+v", got[1].verdict)
	}
}

func TestParseCorrections(t *testing.T) {
	got, err := parseCorrections(`[]`, 3)
	if err != nil || len(got) != 0 {
		t.Fatalf("empty corrections = %v, %v", got, err)
	}

	got, err = parseCorrections(`[{"idx":2,"cat":"transactional","c":96}]`, 3)
	if err != nil {
		t.Fatal(err)
	}
	if c, ok := got[2]; !ok || c.verdict.Category != core.CategoryTransactional {
		t.Errorf("corrections = %+v", got)
	}

	for _, bad := range []string{
		`[{"idx":3,"cat":"transactional","c":96}]`,
		`[{"idx":0,"cat":"transactional","c":96},{"idx":0,"cat":"personal_human","c":90}]`,
	} {
		if _, err := parseCorrections(bad, 3); !errors.Is(err, core.ErrMalformedResponse) {
			t.Errorf("parseCorrections(%s) err = %v, want ErrMalformedResponse", bad, err)
		}
	}
}

func TestKeywordMatcher(t *testing.T) {
	m := NewKeywordMatcher(utils.NewTextProcessor(zaptest.NewLogger(t)))

	s := m.Match(core.EmailSummary{
		Sender:  "newsletter@shop.example",
		Subject: "FLASH SALE: 50% off, shop now",
		Preview: "Use code SAVE50. Unsubscribe here.",
	})
	if !s.SenderPattern {
		t.Error("expected bulk-mail sender pattern")
	}
	if len(s.Keywords) < 3 || !s.Strong(DefaultKeywordThreshold) {
		t.Errorf("keywords = %v", s.Keywords)
	}

	s = m.Match(core.EmailSummary{Sender: "anna@example.org", Subject: "Lunch tomorrow?", Preview: "See you at noon"})
	if s.Strong(DefaultKeywordThreshold) || s.SenderPattern {
		t.Errorf("personal mail matched as promotional: %+v", s)
	}
}
