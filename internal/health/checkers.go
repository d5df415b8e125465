package health

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/kiwivoice/kiwi/internal/controller"
	"github.com/kiwivoice/kiwi/internal/resilience"
	"github.com/kiwivoice/kiwi/pkg/vectordb"
)

// Pipeline reports ready once the controller has started every module.
func Pipeline(ctrl *controller.Controller) Checker {
	return Checker{
		Name: "pipeline",
		Check: func(context.Context) error {
			if !ctrl.Running() {
				return fmt.Errorf("modules not running")
			}
			return nil
		},
	}
}

// VectorStore reports the guard's persistence state. Degraded mode still
// serves recalls from the in-memory mirror, but readiness surfaces it so an
// operator sees the backend is gone before the mirror is.
func VectorStore(g *vectordb.Guard) Checker {
	return Checker{
		Name: "vector_store",
		Check: func(context.Context) error {
			if g.Degraded() {
				return fmt.Errorf("degraded, serving from memory mirror")
			}
			return nil
		},
	}
}

// Breakers reports a provider chain's circuit breakers. The check fails only
// when every breaker in the chain is open, because a single healthy fallback
// keeps the chain serving.
func Breakers(name string, states func() map[string]resilience.State) Checker {
	return Checker{
		Name: name,
		Check: func(context.Context) error {
			all := states()
			if len(all) == 0 {
				return fmt.Errorf("no providers configured")
			}
			var open []string
			for provider, st := range all {
				if st == resilience.StateOpen {
					open = append(open, provider)
				}
			}
			if len(open) == len(all) {
				sort.Strings(open)
				return fmt.Errorf("all providers open: %s", strings.Join(open, ", "))
			}
			return nil
		},
	}
}
