// Package console holds the interactive parts of the command line
package console

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/mikey/inbox-sweeper/internal/session"
)

// Choice is what to do with a saved session when a run starts
type Choice string

const (
	ChoiceAsk     Choice = "ask"
	ChoiceResume  Choice = "resume"
	ChoiceRestart Choice = "restart"
	ChoiceInspect Choice = "inspect"
)

// ErrInspectOnly is returned when the user only wanted to look at the saved session
var ErrInspectOnly = errors.New("session inspected, nothing run")

// ParseChoice accepts the --resume flag values
func ParseChoice(s string) (Choice, error) {
	switch c := Choice(strings.ToLower(strings.TrimSpace(s))); c {
	case "":
		return ChoiceAsk, nil
	case ChoiceAsk, ChoiceResume, ChoiceRestart, ChoiceInspect:
		return c, nil
	default:
		return "", fmt.Errorf("unknown resume mode %q (want ask, resume, restart or inspect)", s)
	}
}

// Asker picks a Choice for a saved session
type Asker func(st session.State) (Choice, error)

// AskResume shows a select prompt for the saved session
func AskResume(st session.State) (Choice, error) {
	choice := ChoiceResume
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[Choice]().
				Title("An unfinished session was found").
				Description(fmt.Sprintf("%s started %s, %d emails decided",
					st.SessionID, st.StartedAt.Local().Format("2006-01-02 15:04"), len(st.DecidedIDs))).
				Options(
					huh.NewOption("Resume where it stopped", ChoiceResume),
					huh.NewOption("Restart (discard the saved session)", ChoiceRestart),
					huh.NewOption("Inspect and exit", ChoiceInspect),
				).
				Value(&choice),
		),
	)
	if err := form.Run(); err != nil {
		return "", err
	}
	return choice, nil
}

// OpenSession loads or creates the session a run works in. With an active
// session on disk the choice decides; ChoiceAsk defers to ask. Inspecting
// writes the session to w and returns ErrInspectOnly.
func OpenSession(m *session.Manager, choice Choice, ask Asker, w io.Writer) (session.State, error) {
	status, err := m.Status()
	if err != nil {
		return session.State{}, fmt.Errorf("%w (use 'session discard' to set it aside)", err)
	}
	if status != session.StatusActive {
		return m.Start()
	}

	saved, err := m.Inspect()
	if err != nil {
		return session.State{}, err
	}
	if choice == ChoiceAsk {
		if ask == nil {
			return session.State{}, fmt.Errorf("session %s is unfinished; pass --resume=resume|restart|inspect", saved.SessionID)
		}
		if choice, err = ask(saved); err != nil {
			return session.State{}, err
		}
	}

	switch choice {
	case ChoiceResume:
		return m.Resume(saved.SessionID)
	case ChoiceRestart:
		if _, err := m.Discard(); err != nil {
			return session.State{}, err
		}
		return m.Start()
	case ChoiceInspect:
		fmt.Fprintln(w, RenderSession(saved))
		return session.State{}, ErrInspectOnly
	default:
		return session.State{}, fmt.Errorf("unknown resume mode %q", choice)
	}
}
