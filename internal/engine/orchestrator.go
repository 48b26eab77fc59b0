package engine

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/sells-group/conjoint-cli/internal/conjoint"
)

// Orchestrator tries the remote engine first and transparently substitutes
// the local computation when the remote side is unreachable or failing.
// There is no speculative parallelism: the local path only starts after the
// remote attempt has resolved.
type Orchestrator struct {
	remote           Computer
	local            Computer
	endpoint         string
	fallbackDisabled bool
}

// NewOrchestrator wires the two computation paths. endpoint is the remote
// base URL, used in error messages. When disableFallback is set, all remote
// failures surface directly to the caller.
func NewOrchestrator(remote, local Computer, endpoint string, disableFallback bool) *Orchestrator {
	return &Orchestrator{
		remote:           remote,
		local:            local,
		endpoint:         endpoint,
		fallbackDisabled: disableFallback,
	}
}

// CanFallback reports whether a remote failure is eligible for local
// recovery. Remote 4xx responses carry an authoritative verdict on the
// request itself and are never recovered; everything else (connectivity
// failure, timeout, 5xx, malformed response) is.
func CanFallback(err error) bool {
	var re *RemoteError
	return !errors.As(err, &re)
}

// Estimate runs estimation remotely, falling back to the local estimator
// subprocess when the remote engine is unavailable. Results from the
// fallback carry a warning noting the substitution.
func (o *Orchestrator) Estimate(ctx context.Context, surveyPath string, attrs []conjoint.Attribute) (*conjoint.Estimation, error) {
	result, remoteErr := o.remote.Estimate(ctx, surveyPath, attrs)
	if remoteErr == nil {
		return result, nil
	}
	if !CanFallback(remoteErr) {
		return nil, remoteErr
	}
	if o.fallbackDisabled {
		return nil, &UnavailableError{Endpoint: o.endpoint + EstimatePath, RemoteErr: remoteErr}
	}

	zap.L().Warn("engine: remote estimation failed, running local estimator",
		zap.String("endpoint", o.endpoint),
		zap.Error(remoteErr),
	)

	local, localErr := o.local.Estimate(ctx, surveyPath, attrs)
	if localErr != nil {
		return nil, &UnavailableError{
			Endpoint:    o.endpoint + EstimatePath,
			RemoteErr:   remoteErr,
			FallbackErr: localErr,
		}
	}

	local.Warnings = append(local.Warnings, fallbackWarning("estimation", remoteErr))
	return local, nil
}

// Simulate runs simulation remotely, falling back to the in-process choice
// simulation engine when the remote engine is unavailable.
func (o *Orchestrator) Simulate(ctx context.Context, req conjoint.SimulationRequest) (*conjoint.SimulationResult, error) {
	result, remoteErr := o.remote.Simulate(ctx, req)
	if remoteErr == nil {
		return result, nil
	}
	if !CanFallback(remoteErr) {
		return nil, remoteErr
	}
	if o.fallbackDisabled {
		return nil, &UnavailableError{Endpoint: o.endpoint + SimulatePath, RemoteErr: remoteErr}
	}

	zap.L().Warn("engine: remote simulation failed, computing shares locally",
		zap.String("endpoint", o.endpoint),
		zap.Error(remoteErr),
	)

	local, localErr := o.local.Simulate(ctx, req)
	if localErr != nil {
		return nil, &UnavailableError{
			Endpoint:    o.endpoint + SimulatePath,
			RemoteErr:   remoteErr,
			FallbackErr: localErr,
		}
	}

	local.Warnings = append(local.Warnings, fallbackWarning("simulation", remoteErr))
	return local, nil
}

func fallbackWarning(operation string, remoteErr error) string {
	return fmt.Sprintf("remote %s service unavailable (%v); result computed locally", operation, remoteErr)
}
