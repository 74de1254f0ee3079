package ocr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"
	"unicode/utf8"
)

// ErrToolMissing means the tesseract or pdftoppm binary is not installed.
var ErrToolMissing = errors.New("ocr tool not found")

// Runner executes an external command. Tests substitute a fake.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)
}

type execRunner struct {
	env    []string
	logger *slog.Logger
}

// newExecRunner pins tesseract to one thread so parallel workers don't
// oversubscribe the CPU.
func newExecRunner(logger *slog.Logger) execRunner {
	return execRunner{env: append(os.Environ(), "OMP_THREAD_LIMIT=1"), logger: logger}
}

func (r execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	start := time.Now()

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Env = r.env
	var out, errb bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errb

	err := cmd.Run()
	elapsed := time.Since(start).Milliseconds()

	switch {
	case err == nil:
		r.logger.Debug("ocr.exec.ok", "cmd", name, "elapsed_ms", elapsed, "stdout_bytes", out.Len())
	case errors.Is(err, exec.ErrNotFound):
		r.logger.Error("ocr.exec.missing", "cmd", name, "error", err)
		err = fmt.Errorf("%w: %s", ErrToolMissing, name)
	case ctx.Err() != nil:
		r.logger.Warn("ocr.exec.canceled", "cmd", name, "elapsed_ms", elapsed)
		err = ctx.Err()
	default:
		var exitErr *exec.ExitError
		code := -1
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		}
		r.logger.Error("ocr.exec.failed",
			"cmd", name,
			"args", strings.Join(args, " "),
			"exit_code", code,
			"elapsed_ms", elapsed,
			"stderr", truncate(errb.String(), 8<<10),
		)
		err = fmt.Errorf("%s exited with code %d: %w", name, code, err)
	}
	return out.Bytes(), errb.Bytes(), err
}

// truncate caps s at max bytes without splitting a UTF-8 sequence.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "...(truncated)"
}
