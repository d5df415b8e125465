// Package controller owns the module lifecycle: it registers the pipeline
// adapters in dependency order, drives them through initialize and start, and
// tears them down in reverse on shutdown. A failure during bring-up rolls
// back everything already brought up, so the process either runs the full
// pipeline or nothing.
package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/kiwivoice/kiwi/internal/adapter"
	"github.com/kiwivoice/kiwi/internal/bus"
	"github.com/kiwivoice/kiwi/internal/event"
)

// Controller coordinates the registered modules. Registration order is the
// initialize/start order; stop and cleanup run in reverse.
type Controller struct {
	bus *bus.Bus
	log *slog.Logger

	mu      sync.Mutex
	modules []adapter.Module
	byName  map[string]adapter.Module
	started int // modules successfully started, for rollback
	inited  int // modules successfully initialized
}

// New creates a controller publishing on b.
func New(b *bus.Bus, log *slog.Logger) *Controller {
	if log == nil {
		log = slog.Default()
	}
	return &Controller{
		bus:    b,
		log:    log.With("component", "controller"),
		byName: make(map[string]adapter.Module),
	}
}

// Register adds a module to the lifecycle order. Modules must be registered
// before Start and names must be unique.
func (c *Controller) Register(m adapter.Module) error {
	if m == nil {
		return fmt.Errorf("controller: register nil module")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	name := m.Name()
	if _, ok := c.byName[name]; ok {
		return fmt.Errorf("controller: module %q already registered", name)
	}
	c.modules = append(c.modules, m)
	c.byName[name] = m
	return nil
}

// Module returns the registered module with the given name.
func (c *Controller) Module(name string) (adapter.Module, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.byName[name]
	return m, ok
}

// Publish forwards an event onto the bus. External surfaces (evaluator,
// debug endpoints) inject events through the controller instead of holding
// the bus.
func (c *Controller) Publish(ev event.Event) {
	c.bus.Publish(ev)
}

// Start initializes then starts every module in registration order. On any
// failure it stops and cleans up what already came up, in reverse order, and
// returns the original error.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, m := range c.modules {
		c.log.Info("initializing module", "module", m.Name())
		if err := m.Initialize(ctx); err != nil {
			err = fmt.Errorf("controller: initialize %s: %w", m.Name(), err)
			c.rollbackLocked(ctx)
			return err
		}
		c.inited = i + 1
	}

	for i, m := range c.modules {
		c.log.Info("starting module", "module", m.Name())
		if err := m.Start(ctx); err != nil {
			err = fmt.Errorf("controller: start %s: %w", m.Name(), err)
			c.rollbackLocked(ctx)
			return err
		}
		c.started = i + 1
	}

	c.bus.Publish(event.New(event.KindSystemStartup, "controller"))
	c.log.Info("pipeline running", "modules", len(c.modules))
	return nil
}

// Stop shuts the pipeline down: modules stop in reverse start order, then
// clean up in reverse initialize order. All errors are joined so one failing
// module cannot block the teardown of the rest.
func (c *Controller) Stop(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.started == len(c.modules) && len(c.modules) > 0 {
		c.bus.Publish(event.New(event.KindSystemShutdown, "controller"))
	}
	return c.rollbackLocked(ctx)
}

// rollbackLocked stops started modules and cleans up initialized ones, in
// reverse. Caller holds c.mu.
func (c *Controller) rollbackLocked(ctx context.Context) error {
	var errs []error

	for i := c.started - 1; i >= 0; i-- {
		m := c.modules[i]
		c.log.Info("stopping module", "module", m.Name())
		if err := m.Stop(ctx); err != nil {
			c.log.Error("module stop failed", "module", m.Name(), "error", err)
			errs = append(errs, fmt.Errorf("controller: stop %s: %w", m.Name(), err))
		}
	}
	c.started = 0

	for i := c.inited - 1; i >= 0; i-- {
		m := c.modules[i]
		if err := m.Cleanup(); err != nil {
			c.log.Error("module cleanup failed", "module", m.Name(), "error", err)
			errs = append(errs, fmt.Errorf("controller: cleanup %s: %w", m.Name(), err))
		}
	}
	c.inited = 0

	return errors.Join(errs...)
}

// Running reports whether every registered module has been started and none
// have been rolled back.
func (c *Controller) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.modules) > 0 && c.started == len(c.modules)
}

// Statistics gathers every module's counters, keyed by module name.
func (c *Controller) Statistics() map[string]map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]map[string]any, len(c.modules))
	for _, m := range c.modules {
		out[m.Name()] = m.Statistics()
	}
	return out
}
