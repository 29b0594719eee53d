package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"

	"github.com/ericbosch/kettle-logbuffer/internal/logbuffer"
	"github.com/ericbosch/kettle-logbuffer/internal/policy"
)

var (
	ErrNotFound        = errors.New("capture not found")
	ErrCommandNotFound = errors.New("command not found")
	ErrInvalidWorkdir  = errors.New("invalid workdir")
)

const (
	StateRunning = "running"
	StateExited  = "exited"
)

// Spec describes a process to capture.
type Spec struct {
	Command string   `json:"command"`
	Args    []string `json:"args,omitempty"`
	Name    string   `json:"name,omitempty"`
	Channel string   `json:"channel,omitempty"`
	Workdir string   `json:"workdir,omitempty"`
}

// Capture runs one command under a PTY and adds each output line to the
// buffer as an event on its own channel.
type Capture struct {
	ID      string
	Name    string
	Channel string
	Command string
	Args    []string
	Created time.Time

	buf    *logbuffer.Buffer
	logger *slog.Logger

	mu         sync.RWMutex
	state      string
	exitCode   int
	ptmx       *os.File
	cmd        *exec.Cmd
	logFile    *os.File
	cancel     context.CancelFunc
	outputDone chan struct{}
	done       chan struct{}
}

// Start launches spec.Command. The caller must call Run to reap it.
func Start(ctx context.Context, id string, spec Spec, buf *logbuffer.Buffer, logDir string, logger *slog.Logger) (*Capture, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if spec.Workdir != "" {
		st, err := os.Stat(spec.Workdir)
		if err != nil || !st.IsDir() {
			return nil, fmt.Errorf("%w: %s", ErrInvalidWorkdir, spec.Workdir)
		}
	}
	path, err := exec.LookPath(spec.Command)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrCommandNotFound, spec.Command)
	}

	ctx, cancel := context.WithCancel(ctx)
	c := &Capture{
		ID:         id,
		Name:       spec.Name,
		Channel:    spec.Channel,
		Command:    spec.Command,
		Args:       spec.Args,
		Created:    time.Now(),
		buf:        buf,
		logger:     logger.With("capture_id", id, "channel", spec.Channel),
		state:      StateRunning,
		cancel:     cancel,
		outputDone: make(chan struct{}),
		done:       make(chan struct{}),
	}

	if logDir != "" {
		if err := os.MkdirAll(logDir, 0o750); err != nil {
			cancel()
			return nil, err
		}
		lf, err := os.OpenFile(filepath.Join(logDir, id+".log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			cancel()
			return nil, err
		}
		c.logFile = lf
	}

	env, removed := policy.CaptureEnv(os.Environ())
	if len(removed) > 0 {
		c.logger.Debug("stripped secrets from capture env", "keys", strings.Join(removed, ","))
	}
	cmd := exec.CommandContext(ctx, path, spec.Args...)
	cmd.Dir = spec.Workdir
	cmd.Env = append(env, "TERM=dumb")

	ptmx, err := pty.Start(cmd)
	if err != nil {
		if c.logFile != nil {
			c.logFile.Close()
		}
		cancel()
		return nil, fmt.Errorf("start %s: %w", spec.Command, err)
	}
	c.ptmx = ptmx
	c.cmd = cmd

	c.emit(logbuffer.LevelBasic, "Started: "+strings.Join(append([]string{spec.Command}, spec.Args...), " "))
	go c.copyOutput()
	return c, nil
}

func (c *Capture) emit(level logbuffer.Level, msg string) {
	c.buf.AddEvent(logbuffer.NewEvent(level, c.Channel, c.Name, msg))
}

func (c *Capture) copyOutput() {
	defer close(c.outputDone)

	lw := &lineWriter{emit: func(line string) {
		c.emit(logbuffer.LevelBasic, line)
	}}
	var w io.Writer = lw
	if c.logFile != nil {
		w = io.MultiWriter(c.logFile, lw)
	}

	_, err := io.Copy(w, c.ptmx)
	lw.Flush()
	// Linux reports EIO on the PTY master once the child side is gone.
	if err != nil && !errors.Is(err, os.ErrClosed) && !isPTYClosed(err) {
		c.logger.Warn("capture read error", "error", err)
	}
}

func isPTYClosed(err error) bool {
	var pe *os.PathError
	return errors.As(err, &pe) && strings.Contains(pe.Err.Error(), "input/output error")
}

// Run waits for the process to exit, drains its output and records the
// exit code.
func (c *Capture) Run() {
	defer close(c.done)
	err := c.cmd.Wait()

	exitCode := 0
	if err != nil {
		var exit *exec.ExitError
		if errors.As(err, &exit) {
			exitCode = exit.ExitCode()
		} else {
			exitCode = -1
		}
	}

	select {
	case <-c.outputDone:
	case <-time.After(2 * time.Second):
	}

	c.mu.Lock()
	c.state = StateExited
	c.exitCode = exitCode
	if c.ptmx != nil {
		c.ptmx.Close()
	}
	if c.logFile != nil {
		c.logFile.Close()
	}
	c.mu.Unlock()
	<-c.outputDone

	level := logbuffer.LevelBasic
	if exitCode != 0 {
		level = logbuffer.LevelError
	}
	c.emit(level, fmt.Sprintf("Finished with exit code %d", exitCode))
	c.logger.Info("capture finished", "exit_code", exitCode)
	c.cancel()
}

// Done is closed once Run has returned.
func (c *Capture) Done() <-chan struct{} { return c.done }

// State returns current state and exit code (if exited).
func (c *Capture) State() (state string, exitCode int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state, c.exitCode
}

// Terminate kills the process and waits briefly for Run to finish.
func (c *Capture) Terminate() error {
	c.mu.RLock()
	var proc *os.Process
	if c.cmd != nil {
		proc = c.cmd.Process
	}
	c.mu.RUnlock()
	if proc != nil {
		// pty.Start puts the child in its own session; kill the whole group
		// so grandchildren release the terminal too.
		if err := syscall.Kill(-proc.Pid, syscall.SIGKILL); err != nil {
			_ = proc.Kill()
		}
	}
	select {
	case <-c.done:
	case <-time.After(5 * time.Second):
	}
	return nil
}

// Info returns serializable capture info.
func (c *Capture) Info() map[string]any {
	state, code := c.State()
	return map[string]any{
		"id":        c.ID,
		"name":      c.Name,
		"channel":   c.Channel,
		"command":   c.Command,
		"args":      c.Args,
		"state":     state,
		"exit_code": code,
		"created":   c.Created.Format(time.RFC3339),
	}
}
