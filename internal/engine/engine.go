// Package engine presents one stable interface for conjoint estimation and
// simulation regardless of whether the computation happens on the remote
// engine service or locally. The remote path is tried first; connectivity
// failures and server errors route to the local fallback, while remote 4xx
// responses are authoritative and surface verbatim.
package engine

import (
	"context"
	"fmt"

	"github.com/sells-group/conjoint-cli/internal/conjoint"
)

// Computer is the port both the remote engine client and the local fallback
// implement.
type Computer interface {
	// Estimate fits partworth utilities from a wide-format survey export
	// and the grouped attribute encoding.
	Estimate(ctx context.Context, surveyPath string, attrs []conjoint.Attribute) (*conjoint.Estimation, error)

	// Simulate computes market shares for a scenario set.
	Simulate(ctx context.Context, req conjoint.SimulationRequest) (*conjoint.SimulationResult, error)
}

// RemoteError is a 4xx response from the remote engine. The remote service
// is authoritative about request validity, so these are never recovered via
// fallback.
type RemoteError struct {
	StatusCode int
	Detail     string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("engine: remote service returned %d: %s", e.StatusCode, e.Detail)
}

// UnavailableError reports that the remote engine failed and the fallback
// path could not recover (disabled, or itself failed).
type UnavailableError struct {
	Endpoint    string
	RemoteErr   error
	FallbackErr error
}

func (e *UnavailableError) Error() string {
	msg := fmt.Sprintf("engine: service unavailable at %s: %v", e.Endpoint, e.RemoteErr)
	if e.FallbackErr != nil {
		msg += fmt.Sprintf("; local fallback failed: %v", e.FallbackErr)
	}
	return msg
}

func (e *UnavailableError) Unwrap() error {
	return e.RemoteErr
}
