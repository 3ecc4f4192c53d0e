package session

import (
	"fmt"
	"io"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

// Process is one live CLI subprocess bound to a session key.
type Process struct {
	mu                 sync.Mutex
	key                string
	capturedID         string
	sessionCreatedSent bool
	state              State

	inputSessionID string
	command        string
	project        string
	cwd            string
	startedAt      time.Time

	cmd *exec.Cmd
	pid int
	// abortRequested is set by an abort that arrives before the process has
	// a pid. Start checks it before and after launching the binary.
	abortRequested bool

	stdinMu sync.Mutex
	stdin   io.WriteCloser

	done     chan struct{}
	doneOnce sync.Once
	err      error
}

func newProcess(command string, opts SpawnOptions, project string) *Process {
	return &Process{
		state:          StateStarting,
		inputSessionID: opts.SessionID,
		command:        command,
		project:        project,
		cwd:            opts.Cwd,
		startedAt:      time.Now().UTC(),
		done:           make(chan struct{}),
	}
}

// Key returns the registry key the process is currently stored under.
func (p *Process) Key() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.key
}

// SessionID returns the session id captured from the CLI output, if any.
func (p *Process) SessionID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.capturedID
}

// ProjectName returns the transcript directory name of the conversation.
func (p *Process) ProjectName() string { return p.project }

// IsNewSession reports whether this invocation started a new conversation
// with a one-shot command.
func (p *Process) IsNewSession() bool {
	return p.inputSessionID == "" && p.command != ""
}

// PID returns the OS process id, or 0 before start.
func (p *Process) PID() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pid
}

// Done is closed once exit handling has finished.
func (p *Process) Done() <-chan struct{} { return p.done }

// Err returns the terminal error after Done is closed.
func (p *Process) Err() error {
	select {
	case <-p.done:
		return p.err
	default:
		return nil
	}
}

// Wait blocks until exit handling has finished. It returns nil on a clean
// exit, an *ExitError on a non-zero exit, or the failure that ended the run.
func (p *Process) Wait() error {
	<-p.done
	return p.err
}

// Info returns a snapshot for listing.
func (p *Process) Info() Info {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stdinMu.Lock()
	interactive := p.stdin != nil
	p.stdinMu.Unlock()

	return Info{
		Key:         p.key,
		SessionID:   p.capturedID,
		ProjectName: p.project,
		Cwd:         p.cwd,
		PID:         p.pid,
		State:       p.state,
		Interactive: interactive,
		StartedAt:   p.startedAt,
	}
}

// markSessionCreated returns true the first time it is called.
func (p *Process) markSessionCreated() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sessionCreatedSent {
		return false
	}
	p.sessionCreatedSent = true
	return true
}

func (p *Process) setState(s State) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}

// started records the running process. It returns true when an abort
// arrived while the process was being launched.
func (p *Process) started(stdin io.WriteCloser) bool {
	p.stdinMu.Lock()
	p.stdin = stdin
	p.stdinMu.Unlock()

	p.mu.Lock()
	defer p.mu.Unlock()
	p.pid = p.cmd.Process.Pid
	p.state = StateRunning
	return p.abortRequested
}

func (p *Process) abortPending() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.abortRequested
}

func (p *Process) writeStdin(data string) error {
	p.stdinMu.Lock()
	defer p.stdinMu.Unlock()
	if p.stdin == nil {
		return ErrStdinClosed
	}
	if _, err := io.WriteString(p.stdin, data); err != nil {
		return fmt.Errorf("write stdin: %w", err)
	}
	return nil
}

func (p *Process) closeStdin() {
	p.stdinMu.Lock()
	defer p.stdinMu.Unlock()
	if p.stdin != nil {
		p.stdin.Close()
		p.stdin = nil
	}
}

// terminate sends SIGTERM. There is no grace period or follow-up kill.
// terminate sends SIGTERM. Before the process has a pid the abort is
// recorded instead and delivered by Start.
func (p *Process) terminate() error {
	p.mu.Lock()
	if p.pid == 0 {
		p.abortRequested = true
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()
	return p.signal()
}

func (p *Process) signal() error {
	if err := p.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("signal pid %d: %w", p.PID(), err)
	}
	return nil
}

func (p *Process) finish(err error) {
	p.doneOnce.Do(func() {
		p.setState(StateExited)
		p.err = err
		close(p.done)
	})
}
