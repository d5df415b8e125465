package session

import (
	"errors"
	"fmt"
	"log/slog"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// Property-based check of the preemption rules: for any sequence of session
// operations, (1) a user never has more than one non-paused session, (2) every
// session below the stack top is paused, and (3) Create succeeds exactly when
// the preemption rules allow it.

type opKind int

const (
	opCreate opKind = iota
	opAwait
	opResume
	opComplete
)

type op struct {
	kind          opKind
	priority      int
	interruptible bool
}

// decodeOp maps an arbitrary non-negative int onto an operation.
func decodeOp(n int) op {
	return op{
		kind:          opKind(n % 4),
		priority:      (n / 4) % 101,
		interruptible: (n/404)%2 == 0,
	}
}

func checkInvariants(m *Manager, user string) error {
	stack := m.Stack(user)
	nonPaused := 0
	for i, s := range stack {
		if s.State != StatePaused {
			nonPaused++
			if i != len(stack)-1 {
				return fmt.Errorf("non-paused session %s below stack top", s.ID)
			}
		}
		if s.State.Terminal() {
			return fmt.Errorf("terminal session %s still on stack", s.ID)
		}
	}
	if nonPaused > 1 {
		return fmt.Errorf("%d non-paused sessions on one stack", nonPaused)
	}
	return nil
}

func TestPreemptionRulesProperty(t *testing.T) {
	t.Parallel()

	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 200
	properties := gopter.NewProperties(params)

	properties.Property("session stack invariants hold under any op sequence", prop.ForAll(
		func(seeds []int) string {
			m := NewManager(ManagerConfig{Logger: slog.Default()})
			const user = "prop-user"

			for _, seed := range seeds {
				o := decodeOp(seed)
				active, hasActive := m.Active(user)

				switch o.kind {
				case opCreate:
					allowed := !hasActive ||
						active.State == StateWaitingInput ||
						(o.priority > active.Priority && active.Interruptible)

					_, err := m.Create("prop_agent", user, o.priority, o.interruptible)
					if allowed && err != nil {
						return fmt.Sprintf("create refused but rules allow it: %v", err)
					}
					if !allowed && !errors.Is(err, ErrConflict) {
						return fmt.Sprintf("create allowed but rules forbid it (err=%v)", err)
					}

				case opAwait:
					if hasActive && active.State == StateRunning {
						if err := m.AwaitInput(active.ID, "prompt"); err != nil {
							return fmt.Sprintf("await input on running top failed: %v", err)
						}
					}

				case opResume:
					if hasActive && active.State == StateWaitingInput {
						if err := m.Resume(active.ID); err != nil {
							return fmt.Sprintf("resume on waiting top failed: %v", err)
						}
					}

				case opComplete:
					if hasActive {
						if _, err := m.Complete(active.ID); err != nil {
							return fmt.Sprintf("complete on top failed: %v", err)
						}
					}
				}

				if err := checkInvariants(m, user); err != nil {
					return err.Error()
				}
			}
			return ""
		},
		gen.SliceOf(gen.IntRange(0, 1_000_000)),
	))

	properties.TestingRun(t)
}
