package decision

import (
	"fmt"
	"testing"

	"github.com/mikey/inbox-sweeper/internal/core"
)

func classified(id string, cat core.Category, conf int, verified bool) core.Classification {
	return core.Classification{
		EmailID:  id,
		Verdict:  core.Verdict{Category: cat, Confidence: conf},
		Verified: verified,
		Origin:   core.OriginClassifier,
	}
}

func gates(gs []core.Gate) string {
	return fmt.Sprint(gs)
}

func TestEvaluateScenarios(t *testing.T) {
	engine := NewEngine(90)

	tests := []struct {
		name         string
		in           Input
		wantApproved bool
		wantBlocking []core.Gate
		wantTier     core.Tier
		wantReview   bool
	}{
		{
			name:         "verified promotional above threshold",
			in:           Input{Classification: classified("a", core.CategoryPromotional, 96, true), Protected: No, ManualFlag: No},
			wantApproved: true,
			wantTier:     core.TierHigh,
		},
		{
			name:         "threshold is inclusive",
			in:           Input{Classification: classified("b", core.CategoryPromotional, 90, true), Protected: No, ManualFlag: No},
			wantApproved: true,
			wantTier:     core.TierHigh,
		},
		{
			name:         "just below threshold routes to review",
			in:           Input{Classification: classified("c", core.CategoryPromotional, 89, true), Protected: No, ManualFlag: No},
			wantBlocking: []core.Gate{core.GateConfidence},
			wantTier:     core.TierMedium,
			wantReview:   true,
		},
		{
			name:         "protected bank domain with corrected category",
			in:           Input{Classification: classified("d", core.CategoryTransactional, 97, true), Protected: Yes, ManualFlag: No},
			wantBlocking: []core.Gate{core.GateCategory, core.GateProtection},
			wantTier:     core.TierHigh,
		},
		{
			name:         "transactional never deleted",
			in:           Input{Classification: classified("e", core.CategoryTransactional, 99, true), Protected: No, ManualFlag: No},
			wantBlocking: []core.Gate{core.GateCategory},
			wantTier:     core.TierHigh,
		},
		{
			name:         "starred promotional",
			in:           Input{Classification: classified("f", core.CategoryPromotional, 95, true), Protected: No, ManualFlag: Yes},
			wantBlocking: []core.Gate{core.GateManualFlag},
			wantTier:     core.TierHigh,
		},
		{
			name:         "unverified promotional",
			in:           Input{Classification: classified("g", core.CategoryPromotional, 99, false), Protected: No, ManualFlag: No},
			wantBlocking: []core.Gate{core.GateVerification},
			wantTier:     core.TierHigh,
		},
		{
			name:         "unknown facts fail closed",
			in:           Input{Classification: classified("h", core.CategoryPromotional, 99, true)},
			wantBlocking: []core.Gate{core.GateProtection, core.GateManualFlag},
			wantTier:     core.TierHigh,
		},
		{
			name:         "medium tier denied for protection is not reviewed",
			in:           Input{Classification: classified("i", core.CategoryPromotional, 80, true), Protected: Yes, ManualFlag: No},
			wantBlocking: []core.Gate{core.GateConfidence, core.GateProtection},
			wantTier:     core.TierMedium,
		},
		{
			name:         "low tier",
			in:           Input{Classification: classified("j", core.CategoryPromotional, 40, true), Protected: No, ManualFlag: No},
			wantBlocking: []core.Gate{core.GateConfidence},
			wantTier:     core.TierLow,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := engine.Evaluate(tt.in)

			if d.Approved != tt.wantApproved {
				t.Errorf("Approved = %v, want %v", d.Approved, tt.wantApproved)
			}
			if gates(d.Blocking) != gates(tt.wantBlocking) {
				t.Errorf("Blocking = %v, want %v", d.Blocking, tt.wantBlocking)
			}
			if d.Tier != tt.wantTier {
				t.Errorf("Tier = %s, want %s", d.Tier, tt.wantTier)
			}
			if d.NeedsReview != tt.wantReview {
				t.Errorf("NeedsReview = %v, want %v", d.NeedsReview, tt.wantReview)
			}
			if len(d.Satisfied)+len(d.Blocking) != 5 {
				t.Errorf("gates recorded = %d, want 5", len(d.Satisfied)+len(d.Blocking))
			}
			if len(d.Reasons) != 5 {
				t.Errorf("reasons = %d, want 5", len(d.Reasons))
			}
		})
	}
}

func TestEvaluateGateOrder(t *testing.T) {
	d := NewEngine(90).Evaluate(Input{
		Classification: classified("x", core.CategoryPromotional, 95, true),
		Protected:      No,
		ManualFlag:     No,
	})
	if gates(d.Satisfied) != gates(core.Gates()) {
		t.Errorf("Satisfied = %v, want %v", d.Satisfied, core.Gates())
	}
}

func TestEvaluateDeterministic(t *testing.T) {
	engine := NewEngine(90)
	in := Input{Classification: classified("y", core.CategoryPromotional, 91, true), Protected: No, ManualFlag: Yes}

	first := engine.Evaluate(in)
	for i := 0; i < 10; i++ {
		again := engine.Evaluate(in)
		if again.Approved != first.Approved || gates(again.Blocking) != gates(first.Blocking) {
			t.Fatalf("non-deterministic result %+v vs %+v", again, first)
		}
	}
}

func TestPolicyClassificationIsDenied(t *testing.T) {
	d := NewEngine(90).Evaluate(Input{
		Classification: PolicyClassification("p"),
		Protected:      Yes,
		ManualFlag:     No,
	})
	if d.Approved {
		t.Fatal("protected short-circuit item must not be approved")
	}
	if !d.Verified || d.Category != core.CategoryPersonalHuman {
		t.Errorf("unexpected policy decision %+v", d)
	}
}

func TestFactOf(t *testing.T) {
	if FactOf(true, nil) != Yes || FactOf(false, nil) != No {
		t.Error("FactOf mapped plain answers wrongly")
	}
	if FactOf(false, fmt.Errorf("lookup failed")) != Unknown {
		t.Error("FactOf must map errors to Unknown")
	}
}

func TestStatsCountsEveryFailingGate(t *testing.T) {
	engine := NewEngine(90)
	stats := NewStats()

	stats.Record(engine.Evaluate(Input{Classification: classified("1", core.CategoryPromotional, 95, true), Protected: No, ManualFlag: No}))
	stats.Record(engine.Evaluate(Input{Classification: classified("2", core.CategoryTransactional, 60, false), Protected: Yes, ManualFlag: Yes}))
	stats.Record(engine.Evaluate(Input{Classification: classified("3", core.CategoryPromotional, 85, true), Protected: No, ManualFlag: No}))

	s := stats.Snapshot()
	if s.Total != 3 || s.Approved != 1 || s.Denied != 2 || s.Flagged != 1 {
		t.Errorf("snapshot = %+v", s)
	}

	want := map[core.Gate]int{
		core.GateCategory:     1,
		core.GateVerification: 1,
		core.GateConfidence:   2,
		core.GateProtection:   1,
		core.GateManualFlag:   1,
	}
	for g, n := range want {
		if s.GateFailures[g] != n {
			t.Errorf("GateFailures[%s] = %d, want %d", g, s.GateFailures[g], n)
		}
	}
}
