package core

import (
	"fmt"
	"strings"
	"time"
)

// EmailSummary is the read-only view of one message handed to the pipeline
type EmailSummary struct {
	ID           string   `json:"id"`
	Sender       string   `json:"sender"`
	SenderDomain string   `json:"sender_domain"`
	Subject      string   `json:"subject"`
	Preview      string   `json:"preview"`
	Labels       []string `json:"labels,omitempty"`
}

// HasLabel reports whether the summary carries the label, ignoring case
func (e EmailSummary) HasLabel(label string) bool {
	for _, l := range e.Labels {
		if strings.EqualFold(l, label) {
			return true
		}
	}
	return false
}

// Category is the closed set of classification outcomes
type Category int

const (
	CategoryUnknown Category = iota
	CategoryPromotional
	CategoryTransactional
	CategorySystemSecurity
	CategorySocialPlatform
	CategoryPersonalHuman
)

var categoryNames = map[Category]string{
	CategoryPromotional:    "PROMOTIONAL",
	CategoryTransactional:  "TRANSACTIONAL",
	CategorySystemSecurity: "SYSTEM_SECURITY",
	CategorySocialPlatform: "SOCIAL_PLATFORM",
	CategoryPersonalHuman:  "PERSONAL_HUMAN",
}

// Categories lists every valid category in declaration order
func Categories() []Category {
	return []Category{
		CategoryPromotional,
		CategoryTransactional,
		CategorySystemSecurity,
		CategorySocialPlatform,
		CategoryPersonalHuman,
	}
}

// String returns the wire name of the category
func (c Category) String() string {
	if name, ok := categoryNames[c]; ok {
		return name
	}
	return "UNKNOWN"
}

// Valid reports whether c is one of the five defined categories
func (c Category) Valid() bool {
	_, ok := categoryNames[c]
	return ok
}

// ParseCategory maps a wire name to a Category. Matching is case-insensitive;
// anything outside the closed set is a malformed response.
func ParseCategory(s string) (Category, error) {
	normalized := strings.ToUpper(strings.TrimSpace(s))
	for c, name := range categoryNames {
		if name == normalized {
			return c, nil
		}
	}
	return CategoryUnknown, fmt.Errorf("%w: unknown category %q", ErrMalformedResponse, s)
}

// MarshalText implements encoding.TextMarshaler
func (c Category) MarshalText() ([]byte, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("cannot marshal invalid category %d", int(c))
	}
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (c *Category) UnmarshalText(text []byte) error {
	parsed, err := ParseCategory(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Verdict binds a category to the confidence it was assigned with.
// The two are only ever replaced together.
type Verdict struct {
	Category   Category `json:"category"`
	Confidence int      `json:"confidence"`
}

// NewVerdict validates and builds a verdict
func NewVerdict(category Category, confidence int) (Verdict, error) {
	if !category.Valid() {
		return Verdict{}, fmt.Errorf("%w: invalid category", ErrMalformedResponse)
	}
	if confidence < 0 || confidence > 100 {
		return Verdict{}, fmt.Errorf("%w: confidence %d outside 0..100", ErrMalformedResponse, confidence)
	}
	return Verdict{Category: category, Confidence: confidence}, nil
}

// Origin records which stage produced the final verdict
type Origin string

const (
	OriginClassifier Origin = "classifier"
	OriginVerifier   Origin = "verifier"
	OriginPolicy     Origin = "policy"
)

// Classification is the per-item result of the two-pass protocol
type Classification struct {
	EmailID           string  `json:"email_id"`
	Verdict           Verdict `json:"verdict"`
	Verified          bool    `json:"verified"`
	CorrectionApplied bool    `json:"correction_applied"`
	Reason            string  `json:"reason,omitempty"`
	Language          string  `json:"language,omitempty"`
	Origin            Origin  `json:"origin"`
}

// Tier buckets confidence for reporting and review routing
type Tier string

const (
	TierHigh   Tier = "HIGH"
	TierMedium Tier = "MEDIUM"
	TierLow    Tier = "LOW"
)

// TierFor returns HIGH for >= 90, MEDIUM for 70..89 and LOW below 70
func TierFor(confidence int) Tier {
	switch {
	case confidence >= 90:
		return TierHigh
	case confidence >= 70:
		return TierMedium
	default:
		return TierLow
	}
}

// Gate names one safety check of the decision engine
type Gate string

const (
	GateCategory     Gate = "category"
	GateVerification Gate = "verification"
	GateConfidence   Gate = "confidence"
	GateProtection   Gate = "protection"
	GateManualFlag   Gate = "manual_flag"
)

// Gates lists the gates in evaluation order
func Gates() []Gate {
	return []Gate{GateCategory, GateVerification, GateConfidence, GateProtection, GateManualFlag}
}

// Decision is the immutable outcome of gate evaluation for one item
type Decision struct {
	EmailID     string
	Approved    bool
	Satisfied   []Gate
	Blocking    []Gate
	Reasons     map[Gate]string
	Tier        Tier
	Category    Category
	Confidence  int
	Verified    bool
	Corrected   bool
	NeedsReview bool
}

// Page is one slice of the input stream. An empty NextCursor ends the stream.
type Page struct {
	Items      []EmailSummary
	NextCursor string
}

// SenderHint is a previously verified verdict for a sender, used only as a prompt hint
type SenderHint struct {
	Sender    string
	Verdict   Verdict
	LastSeen  time.Time
	ExpiresAt time.Time
}

// RunSummary is reported once a session completes
type RunSummary struct {
	SessionID    string
	StartedAt    time.Time
	CompletedAt  time.Time
	Total        int
	Approved     int
	Denied       int
	Flagged      int
	BatchFailed  int
	GateFailures map[Gate]int
}
