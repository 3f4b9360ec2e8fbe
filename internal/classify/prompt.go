package classify

import (
	"fmt"
	"strings"

	"github.com/mikey/inbox-sweeper/internal/core"
)

const classifierSystemPrompt = `You classify e-mails written in English or German into exactly one of five categories.
Reply with a JSON array only. No markdown, no prose.`

const verifierSystemPrompt = `You review e-mail classifications for safety errors before anything is deleted.
Reply with a JSON array only. No markdown, no prose.`

const protectedGuidance = `PROTECTED SENDERS (always PERSONAL_HUMAN, never PROMOTIONAL):
- Banking and payments: bank, sparkasse, volksbank, account balance, transaction, IBAN, TAN, Kontoauszug, Ueberweisung, credit card, fraud alert.
- Investment and insurance: securities, broker, fund, portfolio, demat, NAV, dividend, policy, premium, Depot, Wertpapiere, Versicherung, BaFin, SEBI.
- Government and tax: .gov domains, Finanzamt, Steuerbescheid, Arbeitsagentur, Behoerde, IRS, benefits, licences.
- Healthcare: hospital, clinic, pharmacy, prescription, lab results, Krankenkasse, Arzttermin, Rezept, TK, AOK, Barmer.
- Utilities: energy, electricity, telecom bills, Stadtwerke, Stromrechnung, Zaehlerstand.
- Education and employment: .edu, universities, Hochschule, exams, enrollment, direct job communication.
When in doubt about any of these, choose PERSONAL_HUMAN.`

const categoryGuidance = `CATEGORIES:
- PROMOTIONAL: pure marketing, retail deals, newsletters, discounts, Rabattaktionen.
- TRANSACTIONAL: order confirmations, shipping updates, receipts, Bestellbestaetigung.
- SYSTEM_SECURITY: login alerts, password resets, verification codes, Sicherheitswarnung.
- SOCIAL_PLATFORM: social network notifications and invitations.
- PERSONAL_HUMAN: direct personal or professional correspondence and every protected sender.`

// itemContext carries the non-authoritative hints attached to one item
type itemContext struct {
	item    core.EmailSummary
	signals Signals
	hint    *core.SenderHint
}

func buildClassifyPrompt(items []itemContext, keywordThreshold int) core.Prompt {
	var b strings.Builder
	b.WriteString(protectedGuidance)
	b.WriteString("\n\n")
	b.WriteString(categoryGuidance)
	b.WriteString("\n\nClassify these e-mails:\n")

	for i, ic := range items {
		fmt.Fprintf(&b, "\nEmail %d:\nFrom: %s\nSubject: %s\nBody: %s\n", i, ic.item.Sender, ic.item.Subject, ic.item.Preview)
		if len(ic.signals.Keywords) > 0 || ic.signals.SenderPattern {
			fmt.Fprintf(&b, "Keyword signals: %d promotional phrases", len(ic.signals.Keywords))
			if ic.signals.SenderPattern {
				b.WriteString(", bulk-mail sender address")
			}
			if ic.signals.Strong(keywordThreshold) {
				b.WriteString(" (strong)")
			}
			b.WriteString("\n")
		}
		if ic.hint != nil {
			fmt.Fprintf(&b, "Sender history (hint only): previously %s at %d%%\n",
				ic.hint.Verdict.Category, ic.hint.Verdict.Confidence)
		}
	}

	fmt.Fprintf(&b, `
OUTPUT: a JSON array with exactly one object per e-mail, indices 0 to %d, each index once:
[{"idx":0,"cat":"promotional","c":85,"reason":"retail discount, no protected indicators","lang":"en"}]
Fields: idx = e-mail index, cat = one of promotional, transactional, system_security, social_platform, personal_human,
c = integer confidence 0-100, reason = short explanation without line breaks, lang = en or de.`, len(items)-1)

	return core.Prompt{System: classifierSystemPrompt, User: b.String()}
}

type verifyEntry struct {
	item core.EmailSummary
	cls  core.Classification
}

func buildVerifyPrompt(entries []verifyEntry) core.Prompt {
	var b strings.Builder
	b.WriteString("Review these first-pass classifications. Every PROMOTIONAL item and every low-confidence item must be checked.\n\n")
	b.WriteString(protectedGuidance)
	b.WriteString("\n\n")
	b.WriteString(categoryGuidance)
	b.WriteString("\n\nItems:\n")

	for i, e := range entries {
		fmt.Fprintf(&b, "\nEmail %d:\nFrom: %s\nSubject: %s\nBody: %s\nClassified as: %s (confidence %d%%)\nReason: %s\n",
			i, e.item.Sender, e.item.Subject, e.item.Preview,
			e.cls.Verdict.Category, e.cls.Verdict.Confidence, e.cls.Reason)
	}

	b.WriteString(`
OUTPUT: a JSON array listing ONLY the items whose classification is wrong, with the corrected category and confidence:
[{"idx":2,"cat":"personal_human","c":95,"reason":"bank statement notice"}]
Use the e-mail index shown above. Each index at most once. Return [] if every classification is correct.`)

	return core.Prompt{System: verifierSystemPrompt, User: b.String()}
}
