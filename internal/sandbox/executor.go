// Package sandbox is the boundary to the code-execution capability used for
// chart generation. The orchestration core only depends on the Executor
// interface; the subprocess implementation below is the external collaborator
// that actually runs generated plotting code.
package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"

	errx "github.com/OmarSamirz/NextBI/internal/core/error"
	logx "github.com/OmarSamirz/NextBI/pkg/logger"
)

// ExecRequest carries one snippet plus its execution context.
type ExecRequest struct {
	// Code is the snippet to execute.
	Code string
	// ArtifactPath is where the snippet is expected to write its chart.
	// Exposed to the process as NEXTBI_CHART_PATH.
	ArtifactPath string
	// Data is the textual data result the snippet may need. It is written
	// to a temp file whose path is exposed as NEXTBI_DATA_FILE; large query
	// results would overflow the kernel's env/arg size limit otherwise.
	Data string
}

// Result is the outcome of one execution. A non-zero exit is an ordinary
// failure, not an error; errors are reserved for an unavailable executor.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Success reports whether the snippet ran to completion.
func (r *Result) Success() bool {
	return r.ExitCode == 0
}

// Executor runs a snippet and reports its outcome.
type Executor interface {
	Execute(ctx context.Context, req *ExecRequest) (*Result, error)
}

// PythonExecutor runs snippets with a local Python interpreter in a
// subprocess, bounded by its own timeout.
type PythonExecutor struct {
	interpreter string
	timeout     time.Duration
}

func NewPythonExecutor(interpreter string, timeout time.Duration) *PythonExecutor {
	if interpreter == "" {
		interpreter = "python3"
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &PythonExecutor{interpreter: interpreter, timeout: timeout}
}

func (e *PythonExecutor) Execute(ctx context.Context, req *ExecRequest) (*Result, error) {
	if req == nil || req.Code == "" {
		return &Result{Stderr: "empty snippet", ExitCode: 1}, nil
	}

	f, err := os.CreateTemp("", "nextbi_chart_*.py")
	if err != nil {
		return nil, errx.WrapSandbox(err)
	}
	path := f.Name()
	defer os.Remove(path)

	if _, err := f.WriteString(req.Code); err != nil {
		f.Close()
		return nil, errx.WrapSandbox(err)
	}
	if err := f.Close(); err != nil {
		return nil, errx.WrapSandbox(err)
	}

	env := append(os.Environ(), "NEXTBI_CHART_PATH="+req.ArtifactPath)
	if req.Data != "" {
		dataPath, err := writeDataFile(req.Data)
		if err != nil {
			return nil, errx.WrapSandbox(err)
		}
		defer os.Remove(dataPath)
		env = append(env, "NEXTBI_DATA_FILE="+dataPath)
	}

	cctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	cmd := exec.CommandContext(cctx, e.interpreter, path)
	cmd.Env = env

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	res := &Result{Stdout: stdout.String(), Stderr: stderr.String()}

	if runErr != nil {
		if cctx.Err() != nil && ctx.Err() == nil {
			// our own deadline, not the caller's
			res.ExitCode = -1
			res.Stderr = fmt.Sprintf("execution timed out after %s", e.timeout)
			return res, nil
		}
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			return res, nil
		}
		// interpreter missing, fork failure, caller cancellation
		logx.Error().Err(runErr).Str("interpreter", e.interpreter).Msg("sandbox execution failed to start")
		return nil, errx.WrapSandbox(runErr)
	}

	return res, nil
}

func writeDataFile(data string) (string, error) {
	f, err := os.CreateTemp("", "nextbi_data_*.txt")
	if err != nil {
		return "", err
	}
	if _, err := f.WriteString(data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}
