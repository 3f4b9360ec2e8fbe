package classify

import (
	"regexp"
	"strings"

	"github.com/mikey/inbox-sweeper/internal/core"
	"github.com/mikey/inbox-sweeper/internal/utils"
)

// DefaultKeywordThreshold is the keyword count at which an item is reported
// to the model as keyword-heavy.
const DefaultKeywordThreshold = 3

var promotionalKeywords = []string{
	// English
	"unsubscribe", "opt-out", "manage preferences", "email preferences",
	"limited time", "act now", "don't miss", "last chance", "today only", "ending soon",
	"sale", "discount", "% off", "save up to", "special offer", "promo code",
	"free shipping", "free trial", "free gift",
	"shop now", "buy now", "order now", "add to cart",
	"exclusive", "members only", "early access",
	"newsletter", "weekly digest", "daily deals",
	"coupon", "voucher", "discount code", "use code",
	"flash sale", "clearance", "black friday", "cyber monday",
	"new arrivals", "back in stock", "new collection",
	"earn points", "bonus points", "recommended for you", "picked for you",
	"view in browser", "view online",
	// German
	"abmelden", "abbestellen", "newsletter abbestellen",
	"nur für kurze zeit", "nur heute", "letzte chance", "nicht verpassen",
	"angebot", "sonderangebot", "rabatt", "reduziert", "schnäppchen", "aktion",
	"kostenloser versand", "gratis", "versandkostenfrei",
	"jetzt kaufen", "jetzt bestellen", "jetzt shoppen", "jetzt sichern", "in den warenkorb",
	"exklusiv", "gutschein", "gutscheincode", "rabattcode",
	"schlussverkauf", "ausverkauf", "neuheiten", "neue kollektion", "wieder verfügbar",
	"treuepunkte", "bonuspunkte", "punkte sammeln",
	"das könnte ihnen gefallen", "empfohlen für sie", "im browser ansehen", "webversion",
}

var promotionalSenderPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^marketing@`),
	regexp.MustCompile(`^newsletters?@`),
	regexp.MustCompile(`^news@`),
	regexp.MustCompile(`^deals@`),
	regexp.MustCompile(`^promo(tions)?@`),
	regexp.MustCompile(`^offers@`),
	regexp.MustCompile(`^sales@`),
	regexp.MustCompile(`^info@.*shop`),
	regexp.MustCompile(`^no-?reply@.*marketing`),
}

// Signals are heuristic hints for the classifier prompt. They never decide a category.
type Signals struct {
	Keywords      []string
	SenderPattern bool
}

// Strong reports whether the signals reach the keyword threshold
func (s Signals) Strong(threshold int) bool {
	return s.SenderPattern || len(s.Keywords) >= threshold
}

// KeywordMatcher finds promotional wording in English and German
type KeywordMatcher struct {
	tp       *utils.TextProcessor
	keywords []string
}

// NewKeywordMatcher creates a matcher over the built-in keyword lists
func NewKeywordMatcher(tp *utils.TextProcessor) *KeywordMatcher {
	folded := make([]string, len(promotionalKeywords))
	for i, k := range promotionalKeywords {
		folded[i] = tp.Fold(k)
	}
	return &KeywordMatcher{tp: tp, keywords: folded}
}

// Match scans subject and preview for keywords and the sender for bulk-mail prefixes
func (m *KeywordMatcher) Match(item core.EmailSummary) Signals {
	text := m.tp.Fold(item.Subject + " " + item.Preview)

	var s Signals
	for _, k := range m.keywords {
		if strings.Contains(text, k) {
			s.Keywords = append(s.Keywords, k)
		}
	}

	sender := strings.ToLower(strings.TrimSpace(item.Sender))
	for _, re := range promotionalSenderPatterns {
		if re.MatchString(sender) {
			s.SenderPattern = true
			break
		}
	}
	return s
}
