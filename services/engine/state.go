package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"kioskd/pkg/channel"
)

// Steps a machine moves through. Every session starts at
// channel.StepInitial and every reset returns there.
const (
	StepLogin  = "login"
	StepBorrow = "borrow"
	StepReturn = "return"
	StepStatus = "status"
)

// Action names the kiosk may send.
const (
	ActionEnterLogin  = "enter-login"
	ActionLogin       = "login"
	ActionEnterBorrow = "borrow"
	ActionEnterReturn = "return"
	ActionEnterStatus = "status"
	ActionCheckout    = "checkout-item"
	ActionCheckin     = "checkin-item"
	ActionFinish      = "finish"
)

var errLoginRequired = errors.New("action requires a logged-in patron")

// session is the engine's view of one machine: the latest state
// snapshot pushed to the kiosk plus the patron bound to it. The mutex
// serializes handlers for the same machine so each runs to completion
// before the next observes its effects.
type session struct {
	mu        sync.Mutex
	machineID string
	patronID  string
	state     channel.MachineState
}

func newSession(machineID string) *session {
	return &session{
		machineID: machineID,
		state:     channel.MachineState{Step: channel.StepInitial},
	}
}

func (s *session) reset() {
	s.patronID = ""
	s.state = channel.MachineState{Step: channel.StepInitial}
}

// applyAction computes the machine's next state. The returned snapshot
// replaces the previous one wholesale; on error the session is left
// unchanged and nothing should be pushed.
func (e *Engine) applyAction(ctx context.Context, sess *session, name string, data map[string]any) error {
	switch name {
	case ActionEnterLogin:
		sess.state = channel.MachineState{Step: StepLogin}
		return nil

	case ActionLogin:
		patronID, err := e.fbs.Authenticate(ctx, stringField(data, "username"), stringField(data, "pin"))
		if err != nil {
			return fmt.Errorf("authenticate patron: %w", err)
		}
		sess.patronID = patronID
		return e.refreshStatus(ctx, sess)

	case ActionEnterBorrow:
		if sess.patronID == "" {
			return errLoginRequired
		}
		sess.state = channel.MachineState{Step: StepBorrow}
		return nil

	case ActionEnterReturn:
		// Returning items never requires a login.
		sess.state = channel.MachineState{Step: StepReturn}
		return nil

	case ActionEnterStatus:
		if sess.patronID == "" {
			return errLoginRequired
		}
		return e.refreshStatus(ctx, sess)

	case ActionCheckout:
		if sess.state.Step != StepBorrow {
			return fmt.Errorf("checkout outside borrow step %q", sess.state.Step)
		}
		if sess.patronID == "" {
			return errLoginRequired
		}
		item, err := e.fbs.Checkout(ctx, sess.patronID, stringField(data, "item_id"))
		if err != nil {
			return fmt.Errorf("checkout: %w", err)
		}
		next := sess.state
		next.LoanItems = append(append([]channel.Item{}, sess.state.LoanItems...), item)
		sess.state = next
		return nil

	case ActionCheckin:
		if sess.state.Step != StepReturn {
			return fmt.Errorf("checkin outside return step %q", sess.state.Step)
		}
		item, err := e.fbs.Checkin(ctx, stringField(data, "item_id"))
		if err != nil {
			return fmt.Errorf("checkin: %w", err)
		}
		next := sess.state
		next.LoanItems = append(append([]channel.Item{}, sess.state.LoanItems...), item)
		sess.state = next
		return nil

	case ActionFinish:
		e.printReceipt(ctx, sess)
		sess.reset()
		return nil

	default:
		return fmt.Errorf("unknown action %q", name)
	}
}

// refreshStatus pulls the patron's lists and moves to the status step.
func (e *Engine) refreshStatus(ctx context.Context, sess *session) error {
	loans, err := e.fbs.Loans(ctx, sess.patronID)
	if err != nil {
		return fmt.Errorf("fetch loans: %w", err)
	}
	holds, err := e.fbs.Holds(ctx, sess.patronID)
	if err != nil {
		return fmt.Errorf("fetch holds: %w", err)
	}
	fines, err := e.fbs.Fines(ctx, sess.patronID)
	if err != nil {
		return fmt.Errorf("fetch fines: %w", err)
	}

	sess.state = channel.MachineState{
		Step:      StepStatus,
		LoanItems: loans,
		HoldItems: holds,
		FineItems: fines,
	}
	return nil
}

func stringField(data map[string]any, key string) string {
	if data == nil {
		return ""
	}
	value, _ := data[key].(string)
	return value
}
