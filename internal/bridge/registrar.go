// ABOUTME: Registrar announces the node and its capabilities to the hive
// ABOUTME: A failed registration is logged and recorded; it never aborts startup

package bridge

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/2389/hivenode/internal/hive"
)

// Hive is the subset of the dispatch service the bridge uses.
// *hive.Client satisfies it.
type Hive interface {
	Register(ctx context.Context, reg hive.Registration) error
	Pending(ctx context.Context) ([]hive.Job, error)
	Report(ctx context.Context, jobID string, result any) error
}

// RegistrationError reports a failed node registration.
type RegistrationError struct {
	NodeID string
	Err    error
}

func (e *RegistrationError) Error() string {
	return fmt.Sprintf("registering node %s: %v", e.NodeID, e.Err)
}

func (e *RegistrationError) Unwrap() error { return e.Err }

// Registrar performs the one-shot registration.
type Registrar struct {
	hive   Hive
	state  *State
	reg    hive.Registration
	logger *slog.Logger
}

// NewRegistrar creates a Registrar for the given identity.
func NewRegistrar(h Hive, state *State, reg hive.Registration, logger *slog.Logger) *Registrar {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registrar{
		hive:   h,
		state:  state,
		reg:    reg,
		logger: logger.With("component", "registrar"),
	}
}

// Register announces the node and reports whether the hive accepted it.
// There is no automatic retry; call again to retry.
func (r *Registrar) Register(ctx context.Context) bool {
	if err := r.hive.Register(ctx, r.reg); err != nil {
		regErr := &RegistrationError{NodeID: r.reg.NodeID, Err: err}
		r.state.markRegistrationFailed(regErr)
		r.logger.Error("registration failed", "node_id", r.reg.NodeID, "error", regErr)
		return false
	}

	r.state.markRegistered()
	r.logger.Info("registered with hive",
		"node_id", r.reg.NodeID,
		"capabilities", r.reg.Capabilities,
	)
	return true
}
