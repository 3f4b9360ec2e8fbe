// Package decision evaluates the deletion safety gates for classified items.
package decision

import (
	"fmt"
	"strings"

	"github.com/mikey/inbox-sweeper/internal/core"
)

// Fact is a tri-state answer from an external collaborator. The zero value
// is Unknown, which every gate treats as a failure.
type Fact int

const (
	Unknown Fact = iota
	Yes
	No
)

// FactOf converts a collaborator answer; any error yields Unknown
func FactOf(v bool, err error) Fact {
	if err != nil {
		return Unknown
	}
	if v {
		return Yes
	}
	return No
}

func (f Fact) String() string {
	switch f {
	case Yes:
		return "yes"
	case No:
		return "no"
	default:
		return "unknown"
	}
}

// Input is everything the engine needs to decide one item
type Input struct {
	Classification core.Classification
	Protected      Fact
	ManualFlag     Fact
}

// Engine applies the five gates. It holds no mutable state.
type Engine struct {
	deletionThreshold int
}

// NewEngine creates an engine approving at or above the given confidence
func NewEngine(deletionThreshold int) *Engine {
	return &Engine{deletionThreshold: deletionThreshold}
}

// Threshold returns the deletion confidence threshold
func (e *Engine) Threshold() int {
	return e.deletionThreshold
}

// Evaluate runs every gate in order and returns the decision.
// All gates are evaluated even after one fails.
func (e *Engine) Evaluate(in Input) core.Decision {
	cls := in.Classification
	v := cls.Verdict

	d := core.Decision{
		EmailID:    cls.EmailID,
		Category:   v.Category,
		Confidence: v.Confidence,
		Tier:       core.TierFor(v.Confidence),
		Verified:   cls.Verified,
		Corrected:  cls.CorrectionApplied,
		Reasons:    make(map[core.Gate]string, 5),
	}

	record := func(g core.Gate, passed bool, reason string) {
		d.Reasons[g] = reason
		if passed {
			d.Satisfied = append(d.Satisfied, g)
		} else {
			d.Blocking = append(d.Blocking, g)
		}
	}

	if v.Category == core.CategoryPromotional {
		record(core.GateCategory, true, "category is PROMOTIONAL")
	} else {
		record(core.GateCategory, false, fmt.Sprintf("category is %s, only PROMOTIONAL may be deleted", v.Category))
	}

	if cls.Verified {
		record(core.GateVerification, true, "verified by second pass")
	} else {
		record(core.GateVerification, false, "not verified")
	}

	if v.Confidence >= e.deletionThreshold {
		record(core.GateConfidence, true, fmt.Sprintf("confidence %d >= %d", v.Confidence, e.deletionThreshold))
	} else {
		record(core.GateConfidence, false, fmt.Sprintf("confidence %d below %d", v.Confidence, e.deletionThreshold))
	}

	switch in.Protected {
	case No:
		record(core.GateProtection, true, "sender domain not protected")
	case Yes:
		record(core.GateProtection, false, "sender domain is protected")
	default:
		record(core.GateProtection, false, "domain protection unknown, treated as protected")
	}

	switch in.ManualFlag {
	case No:
		record(core.GateManualFlag, true, "no manual flag")
	case Yes:
		record(core.GateManualFlag, false, "user flagged this item")
	default:
		record(core.GateManualFlag, false, "manual flag state unknown, treated as flagged")
	}

	d.Approved = len(d.Blocking) == 0
	d.NeedsReview = !d.Approved &&
		d.Tier == core.TierMedium &&
		len(d.Blocking) == 1 && d.Blocking[0] == core.GateConfidence

	return d
}

// PolicyClassification is assigned to items from protected domains that skip
// model classification entirely.
func PolicyClassification(emailID string) core.Classification {
	return core.Classification{
		EmailID:  emailID,
		Verdict:  core.Verdict{Category: core.CategoryPersonalHuman, Confidence: 100},
		Verified: true,
		Reason:   "protected sender domain",
		Origin:   core.OriginPolicy,
	}
}

// Explain renders a decision as one line for logs and review output
func Explain(d core.Decision) string {
	outcome := "DENIED"
	if d.Approved {
		outcome = "APPROVED"
	}
	blocking := make([]string, len(d.Blocking))
	for i, g := range d.Blocking {
		blocking[i] = string(g)
	}
	if len(blocking) == 0 {
		return fmt.Sprintf("%s %s (%s %d, %s)", outcome, d.EmailID, d.Category, d.Confidence, d.Tier)
	}
	return fmt.Sprintf("%s %s (%s %d, %s) blocked by %s",
		outcome, d.EmailID, d.Category, d.Confidence, d.Tier, strings.Join(blocking, ", "))
}
