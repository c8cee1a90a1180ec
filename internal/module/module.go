// Package module defines the enrichment module contract and the registry of
// module factories consulted by the execution engine.
package module

import (
	"context"
	"errors"
	"fmt"

	"github.com/kingrea/intel-lattice/internal/profile"
)

// ErrUnavailable marks a module whose implementation cannot be provided in
// this environment. Factories wrap it; the engine records such modules as
// unavailable instead of failed.
var ErrUnavailable = errors.New("module: implementation unavailable")

// ErrNotRegistered is returned when no factory exists for an id.
var ErrNotRegistered = errors.New("module: not registered")

// Info describes a module's identity and intent.
type Info struct {
	ID          string
	Name        string
	Description string
	Version     string
}

// Validate ensures the info block is well-formed.
func (i Info) Validate() error {
	if i.ID == "" {
		return fmt.Errorf("module: id is required")
	}
	if i.Name == "" {
		return fmt.Errorf("module: name is required for %s", i.ID)
	}
	if i.Version == "" {
		return fmt.Errorf("module: version is required for %s", i.ID)
	}
	return nil
}

// Module is implemented by every enrichment unit. Execute receives a private
// snapshot of the profile and returns the sections it wants merged back.
// Implementations must not retain the snapshot.
type Module interface {
	Info() Info
	Execute(ctx context.Context, snapshot profile.Profile) (profile.Update, error)
}

// SkipError signals that a module's precondition was not met.
type SkipError struct {
	Reason string
}

func (e *SkipError) Error() string {
	return e.Reason
}

// Skip builds a SkipError with the given reason.
func Skip(reason string) error {
	return &SkipError{Reason: reason}
}

// SkipReason extracts the reason from a SkipError anywhere in err's chain.
func SkipReason(err error) (string, bool) {
	var skip *SkipError
	if errors.As(err, &skip) {
		return skip.Reason, true
	}
	return "", false
}
