package console

import (
	"fmt"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/mikey/inbox-sweeper/internal/records"
)

// ReviewQuit ends a review early. It is never saved.
const ReviewQuit records.ReviewAction = "quit"

// ReviewAsker asks for the reviewer's action on the pos-th of total records
type ReviewAsker func(pos, total int, rec records.Record) (records.ReviewAction, error)

// AskReview shows one queued record and a keep/delete select
func AskReview(pos, total int, rec records.Record) (records.ReviewAction, error) {
	action := records.ReviewSkip
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewNote().
				Title(fmt.Sprintf("Email %d of %d", pos, total)).
				Description(RenderReviewItem(rec)),
			huh.NewSelect[records.ReviewAction]().
				Title("What should happen to this email?").
				Options(
					huh.NewOption("Approve deletion", records.ReviewApprove),
					huh.NewOption("Keep it", records.ReviewReject),
					huh.NewOption("Skip (decide later)", records.ReviewSkip),
					huh.NewOption("Quit review", ReviewQuit),
				).
				Value(&action),
		),
	)
	if err := form.Run(); err != nil {
		return "", err
	}
	return action, nil
}

// RunReview asks about every queued record not already approved or rejected
// in prior. It returns the decisions made before the reviewer quit or ask
// failed, so they can be saved either way.
func RunReview(queue []records.Record, prior []records.ReviewDecision, ask ReviewAsker, now func() time.Time) ([]records.ReviewDecision, error) {
	settled := records.Settled(prior)
	var open []records.Record
	for _, r := range queue {
		if _, done := settled[r.EmailID]; !done {
			open = append(open, r)
		}
	}

	var decs []records.ReviewDecision
	for i, r := range open {
		action, err := ask(i+1, len(open), r)
		if err != nil {
			return decs, err
		}
		switch action {
		case ReviewQuit:
			return decs, nil
		case records.ReviewApprove, records.ReviewReject, records.ReviewSkip:
			decs = append(decs, records.ReviewDecision{
				EmailID:    r.EmailID,
				Action:     action,
				Sender:     r.Sender,
				Subject:    r.Subject,
				ReviewedAt: now().UTC(),
			})
		default:
			return decs, fmt.Errorf("unknown review action %q", action)
		}
	}
	return decs, nil
}
