package ingest

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/antonkoetzler/arbihawk/internal/logger"
	"github.com/antonkoetzler/arbihawk/internal/metrics"
)

const (
	pollInterval  = 200 * time.Millisecond
	lineQueueSize = 1000
	errorTailLen  = 10
)

// RunResult is the outcome of one scraper subprocess run.
type RunResult struct {
	Success  bool
	Stopped  bool
	TimedOut bool
	ExitCode int
	Payload  []byte
	// ErrorTail holds the last output lines when the child failed.
	ErrorTail []string
	Duration  time.Duration
}

// Runner executes a scraper subprocess and extracts its JSON payload from
// mixed stdout.
type Runner struct {
	timeout time.Duration
}

// NewRunner creates a runner with the given absolute subprocess timeout.
// Zero means no timeout.
func NewRunner(timeout time.Duration) *Runner {
	return &Runner{timeout: timeout}
}

// Run spawns the command, streams its merged output, and returns the
// captured payload. Cancelling ctx kills the child and yields a stopped
// result; logFn receives every non-JSON line with its parsed level.
func (r *Runner) Run(ctx context.Context, command []string, source Source, logFn logger.LogFunc) (*RunResult, error) {
	if len(command) == 0 {
		return nil, fmt.Errorf("failed to run scraper: empty command")
	}
	start := time.Now()
	result := &RunResult{}

	cmd := exec.Command(command[0], command[1:]...)
	cmd.Env = append(os.Environ(), "PYTHONUNBUFFERED=1")
	if runtime.GOOS == "windows" {
		cmd.Env = append(cmd.Env, "PYTHONIOENCODING=utf-8")
	}

	pr, pw := io.Pipe()
	cmd.Stdout = pw
	cmd.Stderr = pw

	if err := cmd.Start(); err != nil {
		pw.Close()
		pr.Close()
		return nil, fmt.Errorf("failed to start scraper %s: %w", command[0], err)
	}

	lines := make(chan string, lineQueueSize)
	drain := lines
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(pr)
		scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
		for scanner.Scan() {
			lines <- strings.ToValidUTF8(scanner.Text(), "�")
		}
	}()

	waitCh := make(chan error, 1)
	go func() {
		err := cmd.Wait()
		pw.Close()
		waitCh <- err
	}()

	var (
		allLines   []string
		candidates []int
		exited     bool
		exitErr    error
		drained    bool
		deadline   time.Time
	)

	// killAndReap tears the child down without deadlocking: Wait cannot
	// return until the child's remaining output is flushed through the
	// pipe, and the scanner may be parked on a full line queue. Failing
	// the pipe and draining the queue unblocks both before reaping. The
	// loop may already have reaped the exit via its non-blocking check.
	killAndReap := func() {
		cmd.Process.Kill()
		pr.Close()
		go func() {
			for range drain {
			}
		}()
		if !exited {
			<-waitCh
		}
	}
	if r.timeout > 0 {
		deadline = start.Add(r.timeout)
	}

	for {
		select {
		case line, ok := <-lines:
			if !ok {
				drained = true
				lines = nil
				break
			}
			allLines = append(allLines, line)
			if IsJSONCandidate(line) {
				if raw, ok := TryParseLine(line, source); ok {
					result.Payload = raw
				} else {
					candidates = append(candidates, len(allLines)-1)
				}
			} else {
				clean := StripANSI(line)
				if logFn != nil && strings.TrimSpace(clean) != "" {
					logFn(ParseLevel(clean), clean)
				}
			}
		case <-time.After(pollInterval):
		}

		select {
		case err := <-waitCh:
			exited = true
			exitErr = err
		default:
		}

		if exited && drained {
			break
		}
		if ctx.Err() != nil {
			killAndReap()
			result.Stopped = true
			result.Duration = time.Since(start)
			return result, nil
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			killAndReap()
			result.TimedOut = true
			result.ErrorTail = tail(allLines, errorTailLen)
			result.Duration = time.Since(start)
			return result, nil
		}
	}

	result.Duration = time.Since(start)
	metrics.RecordScraperDuration(string(source), result.Duration.Seconds())

	if exitErr != nil {
		if ee, ok := exitErr.(*exec.ExitError); ok {
			result.ExitCode = ee.ExitCode()
		} else {
			result.ExitCode = -1
		}
		result.ErrorTail = tail(allLines, errorTailLen)
		return result, nil
	}

	// Pretty-printed payloads fail the single-line parse; reassemble from
	// the recorded candidate positions, latest first, then fall back to the
	// brace-depth walk over the full output.
	if result.Payload == nil {
		for c := len(candidates) - 1; c >= 0; c-- {
			if raw, ok := TryReassemble(allLines, candidates[c], source); ok {
				result.Payload = raw
				break
			}
		}
	}
	if result.Payload == nil {
		if raw, ok := ExtractLast(strings.Join(allLines, "\n"), source); ok {
			result.Payload = raw
		}
	}

	if result.Payload == nil {
		result.ErrorTail = tail(allLines, errorTailLen)
		return result, nil
	}
	result.Success = true
	return result, nil
}

func tail(lines []string, n int) []string {
	if len(lines) <= n {
		out := make([]string, len(lines))
		copy(out, lines)
		return out
	}
	out := make([]string, n)
	copy(out, lines[len(lines)-n:])
	return out
}
