package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/conjoint-cli/internal/conjoint"
)

const defaultEstimatorTimeout = 2 * time.Minute

// LocalComputer is the fallback implementation of Computer: simulation runs
// in-process through the choice simulation engine, estimation shells out to
// the numeric estimator binary.
type LocalComputer struct {
	estimatorBin string
	timeout      time.Duration
}

// NewLocalComputer creates the local fallback. estimatorBin is the numeric
// estimator executable; timeout bounds each estimator run (the process is
// killed when it expires).
func NewLocalComputer(estimatorBin string, timeout time.Duration) *LocalComputer {
	if timeout <= 0 {
		timeout = defaultEstimatorTimeout
	}
	return &LocalComputer{estimatorBin: estimatorBin, timeout: timeout}
}

// Simulate runs the in-process choice simulation engine.
func (l *LocalComputer) Simulate(_ context.Context, req conjoint.SimulationRequest) (*conjoint.SimulationResult, error) {
	return conjoint.Simulate(req)
}

// Estimate writes the attribute encoding to a fresh temporary directory,
// runs the estimator subprocess against the survey workbook, and parses its
// stdout as the estimation payload. The temporary directory is removed
// whether or not the run succeeds. Non-zero exit or malformed output is a
// hard failure.
func (l *LocalComputer) Estimate(ctx context.Context, surveyPath string, attrs []conjoint.Attribute) (*conjoint.Estimation, error) {
	if l.estimatorBin == "" {
		return nil, eris.New("engine: local estimator binary is not configured")
	}

	dir, err := os.MkdirTemp("", "conjoint-attrs-")
	if err != nil {
		return nil, eris.Wrap(err, "engine: create temp dir")
	}
	defer os.RemoveAll(dir) //nolint:errcheck

	attrPath := filepath.Join(dir, "attributes.json")
	attrJSON, err := json.Marshal(attrs)
	if err != nil {
		return nil, eris.Wrap(err, "engine: marshal attributes")
	}
	if err := os.WriteFile(attrPath, attrJSON, 0o600); err != nil {
		return nil, eris.Wrapf(err, "engine: write %s", attrPath)
	}

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, l.estimatorBin,
		"--excel", surveyPath,
		"--attributes", attrPath,
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	// The estimator forks numeric workers; run it in its own process group
	// and kill the whole group at the deadline, otherwise a surviving child
	// holds the stdout pipe open and Wait blocks past the timeout. WaitDelay
	// unblocks Wait even if something outside the group inherited the pipes.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	cmd.WaitDelay = time.Second

	started := time.Now()
	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, eris.Wrapf(ctx.Err(), "engine: local estimator timed out after %s", l.timeout)
		}
		return nil, eris.Wrapf(err, "engine: local estimator failed: %s", stderr.String())
	}

	var result conjoint.Estimation
	if err := json.Unmarshal(stdout.Bytes(), &result); err != nil {
		return nil, eris.Wrap(err, "engine: parse local estimator output")
	}

	zap.L().Info("engine: local estimation complete",
		zap.String("survey", surveyPath),
		zap.Duration("elapsed", time.Since(started)),
		zap.Int("attributes", len(attrs)),
	)
	return &result, nil
}
