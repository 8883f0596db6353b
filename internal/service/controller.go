package service

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/saltlab/pgdev/internal/config"
)

// State is the observed availability of the database service. It is derived
// live from the OS service manager on every query and never cached.
type State string

const (
	StateRunning State = "RUNNING"
	StateStopped State = "STOPPED"
)

// Summary carries best-effort server details, meaningful only when running.
type Summary struct {
	Version     string
	TenantCount int
}

// ControlError indicates a start/stop command reported failure. The
// resulting service state is unknown; callers should re-query State.
type ControlError struct {
	Action string
	Unit   string
	Output string
	Err    error
}

func (e *ControlError) Error() string {
	msg := fmt.Sprintf("service %s failed for unit %q: %v", e.Action, e.Unit, e.Err)
	if e.Output != "" {
		msg += ": " + e.Output
	}
	return msg
}

func (e *ControlError) Unwrap() error { return e.Err }

// NotRunningError indicates an operation required the service to be running
// and it was not (and auto-start was not attempted or itself failed).
type NotRunningError struct {
	Op string
}

func (e *NotRunningError) Error() string {
	return fmt.Sprintf("%s requires the database service to be running: start the service first", e.Op)
}

// Runner executes one service-control command and returns its combined
// output. Swapped out in tests.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// Prober answers whether the server behind the service accepts connections
// and supplies best-effort detail for summaries. Satisfied by
// catalog.Inspector.
type Prober interface {
	Ping(ctx context.Context) error
	ServerVersion(ctx context.Context) (string, error)
}

// TenantCounter counts tenant databases for the summary, best-effort.
type TenantCounter interface {
	TenantCount(ctx context.Context) (int, error)
}

// Controller queries and toggles the service that runs the database server.
// It owns neither the service nor its state: an external actor may change
// either between any two calls, so every dependent action re-validates.
type Controller struct {
	unit    string
	control string // control binary, normally systemctl
	runner  Runner
	prober  Prober
	counter TenantCounter
}

func NewController(unit string, prober Prober, counter TenantCounter) *Controller {
	return &Controller{
		unit:    unit,
		control: "systemctl",
		runner:  execRunner{},
		prober:  prober,
		counter: counter,
	}
}

// State reports the current service state. Inability to query the service
// manager is treated as stopped with a surfaced warning, never a fatal
// error.
func (c *Controller) State(ctx context.Context) State {
	ctx, cancel := context.WithTimeout(ctx, config.GetTimeouts().ServiceControl)
	defer cancel()

	out, err := c.runner.Run(ctx, c.control, "is-active", "--quiet", c.unit)
	if err == nil {
		return StateRunning
	}

	// A non-zero exit from is-active means inactive; anything else means
	// the service manager itself could not be queried.
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		log.Warn().Err(err).Str("unit", c.unit).
			Msg("Cannot query service manager; assuming service is stopped")
	}
	if len(out) > 0 {
		log.Debug().Str("unit", c.unit).Str("output", strings.TrimSpace(string(out))).
			Msg("Service state query output")
	}
	return StateStopped
}

// Toggle flips the service state: stop when running, start when stopped.
// After a start it waits for the server to accept connections and fills the
// summary best-effort. On control failure the resulting state is unknown:
// the returned state is empty and the caller must re-query State.
func (c *Controller) Toggle(ctx context.Context) (State, Summary, error) {
	if c.State(ctx) == StateRunning {
		if err := c.runControl(ctx, "stop"); err != nil {
			return "", Summary{}, err
		}
		log.Info().Str("unit", c.unit).Msg("Service stopped")
		return StateStopped, Summary{}, nil
	}

	if err := c.start(ctx); err != nil {
		return "", Summary{}, err
	}
	return StateRunning, c.summarize(ctx), nil
}

// EnsureRunning starts the service if it is stopped and waits for
// readiness. A no-op when already running.
func (c *Controller) EnsureRunning(ctx context.Context) error {
	if c.State(ctx) == StateRunning {
		return nil
	}
	log.Info().Str("unit", c.unit).Msg("Service is stopped; starting it")
	return c.start(ctx)
}

// Summarize returns best-effort server details for status output.
func (c *Controller) Summarize(ctx context.Context) Summary {
	return c.summarize(ctx)
}

func (c *Controller) start(ctx context.Context) error {
	if err := c.runControl(ctx, "start"); err != nil {
		return err
	}
	if err := c.waitForReady(ctx); err != nil {
		return &ControlError{Action: "start", Unit: c.unit, Err: err}
	}
	log.Info().Str("unit", c.unit).Msg("Service started")
	return nil
}

func (c *Controller) runControl(ctx context.Context, action string) error {
	ctx, cancel := context.WithTimeout(ctx, config.GetTimeouts().ServiceControl)
	defer cancel()

	out, err := c.runner.Run(ctx, c.control, action, c.unit)
	if err != nil {
		return &ControlError{
			Action: action,
			Unit:   c.unit,
			Output: strings.TrimSpace(string(out)),
			Err:    err,
		}
	}
	return nil
}

// waitForReady polls the server until it answers a trivial query or the
// control timeout expires. Service managers report "started" before the
// server actually accepts connections.
func (c *Controller) waitForReady(ctx context.Context) error {
	if c.prober == nil {
		return nil
	}

	deadline := time.Now().Add(config.GetTimeouts().ServiceControl)
	var lastErr error
	for time.Now().Before(deadline) {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		lastErr = c.prober.Ping(pingCtx)
		cancel()
		if lastErr == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(500 * time.Millisecond):
		}
	}
	return fmt.Errorf("server did not become ready: %w", lastErr)
}

func (c *Controller) summarize(ctx context.Context) Summary {
	var s Summary
	if c.prober != nil {
		version, err := c.prober.ServerVersion(ctx)
		if err != nil {
			log.Debug().Err(err).Msg("Could not determine server version")
		}
		s.Version = version
	}
	if c.counter != nil {
		n, err := c.counter.TenantCount(ctx)
		if err != nil {
			log.Debug().Err(err).Msg("Could not count tenant databases")
		} else {
			s.TenantCount = n
		}
	}
	return s
}
