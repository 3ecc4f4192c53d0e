package session

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"

	"claude-relay/internal/protocol"
	"claude-relay/internal/stream"
	"claude-relay/internal/transcript"
)

const (
	defaultBinary         = "claude"
	defaultScannerBufSize = 1024 * 1024 // 1 MB
	readChunkSize         = 32 * 1024
)

// Emitter receives every event produced for a session key.
type Emitter interface {
	Emit(key string, ev protocol.Event) error
}

// SummaryHooks lets the supervisor drive background summary regeneration.
type SummaryHooks interface {
	OnUserMessage(projectName, sessionID string)
	Initial(projectName, sessionID string)
	Forget(sessionID string)
}

type noopHooks struct{}

func (noopHooks) OnUserMessage(string, string) {}
func (noopHooks) Initial(string, string)       {}
func (noopHooks) Forget(string)                {}

// Options configures a Supervisor.
type Options struct {
	Binary       string
	DefaultModel string

	// Env is appended after the inherited environment and terminal overrides.
	Env []string

	Logger *slog.Logger
}

// Supervisor spawns Claude CLI processes and turns their output into events.
type Supervisor struct {
	opts     Options
	registry *Registry
	emitter  Emitter
	hooks    SummaryHooks
	logger   *slog.Logger
}

// NewSupervisor creates a supervisor. hooks may be nil.
func NewSupervisor(opts Options, emitter Emitter, hooks SummaryHooks) *Supervisor {
	if opts.Binary == "" {
		opts.Binary = defaultBinary
	}
	if hooks == nil {
		hooks = noopHooks{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Supervisor{
		opts:     opts,
		registry: NewRegistry(),
		emitter:  emitter,
		hooks:    hooks,
		logger:   logger.With("component", "supervisor"),
	}
}

// Registry exposes the session registry.
func (s *Supervisor) Registry() *Registry { return s.registry }

// Spawn starts the CLI and blocks until it exits. Cancelling ctx aborts the
// process; the returned error is then ctx.Err().
func (s *Supervisor) Spawn(ctx context.Context, command string, opts SpawnOptions) error {
	p, err := s.Start(ctx, command, opts)
	if err != nil {
		return err
	}
	select {
	case <-p.Done():
		return p.Err()
	case <-ctx.Done():
		s.abortProcess(p)
		<-p.Done()
		return ctx.Err()
	}
}

// Start spawns the CLI and returns once the process is running. Output is
// streamed to the emitter from background goroutines.
func (s *Supervisor) Start(ctx context.Context, command string, opts SpawnOptions) (*Process, error) {
	project := opts.ProjectName
	if project == "" {
		project = transcript.ProjectName(opts.Cwd)
	}

	key := opts.SessionID
	if key == "" {
		key = NewPlaceholderKey()
	}

	cmd := exec.Command(s.opts.Binary, BuildArgs(command, opts, s.opts.DefaultModel)...)
	cmd.Dir = opts.Cwd
	cmd.Env = s.buildEnv()

	p := newProcess(command, opts, project)
	p.cmd = cmd
	s.registry.Register(key, p)

	if err := ctx.Err(); err != nil {
		return nil, s.startFailed(p, key, err)
	}
	if p.abortPending() {
		return nil, s.startFailed(p, key, ErrAborted)
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, s.startFailed(p, key, fmt.Errorf("create stdin pipe: %w", err))
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		closePipes(stdin)
		return nil, s.startFailed(p, key, fmt.Errorf("create stdout pipe: %w", err))
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		closePipes(stdin, stdout)
		return nil, s.startFailed(p, key, fmt.Errorf("create stderr pipe: %w", err))
	}

	if err := cmd.Start(); err != nil {
		return nil, s.startFailed(p, key, fmt.Errorf("start claude: %w", err))
	}

	if p.started(stdin) {
		if err := p.signal(); err != nil {
			s.logger.Warn("abort failed", "session", key, "error", err)
		}
	}

	// Print mode reads the prompt from argv; an open stdin would make the CLI
	// wait for more input.
	if command != "" {
		p.closeStdin()
	}

	s.logger.Info("claude started",
		"session", key,
		"pid", cmd.Process.Pid,
		"project", project,
		"resume", opts.Resume,
	)

	if p.inputSessionID != "" && command != "" {
		s.hooks.OnUserMessage(project, p.inputSessionID)
	}

	var readers sync.WaitGroup
	readers.Add(2)
	go func() {
		defer readers.Done()
		s.readStdout(p, stdout)
	}()
	go func() {
		defer readers.Done()
		s.readStderr(p, stderr)
	}()
	go s.wait(p, &readers)

	return p, nil
}

// Write sends input to an interactive process and counts it as a user message.
func (s *Supervisor) Write(key, input string) error {
	p := s.registry.Resolve(key)
	if p == nil {
		return fmt.Errorf("write %s: %w", key, ErrNotFound)
	}
	if err := p.writeStdin(input); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	if id := p.SessionID(); id != "" {
		s.hooks.OnUserMessage(p.project, id)
	} else if p.inputSessionID != "" {
		s.hooks.OnUserMessage(p.project, p.inputSessionID)
	}
	return nil
}

// Abort sends SIGTERM to the process under key and removes it from the
// registry. A process that is still launching is stopped as soon as it has
// a pid. It reports false when no process was found or the signal failed.
func (s *Supervisor) Abort(key string) bool {
	p := s.registry.Unregister(key)
	if p == nil {
		return false
	}
	if err := p.terminate(); err != nil {
		s.logger.Warn("abort failed", "session", key, "error", err)
		return false
	}
	s.logger.Info("claude aborted", "session", key)
	return true
}

// Shutdown aborts every live process.
func (s *Supervisor) Shutdown() {
	for _, p := range s.registry.Snapshot() {
		s.abortProcess(p)
	}
}

// Active returns a snapshot of the live processes.
func (s *Supervisor) Active() []Info {
	procs := s.registry.Snapshot()
	result := make([]Info, 0, len(procs))
	for _, p := range procs {
		result = append(result, p.Info())
	}
	return result
}

func (s *Supervisor) abortProcess(p *Process) {
	s.registry.Remove(p)
	if err := p.terminate(); err != nil {
		s.logger.Warn("terminate failed", "session", p.Key(), "error", err)
	}
}

func (s *Supervisor) buildEnv() []string {
	env := append(os.Environ(),
		"FORCE_COLOR=1",
		"TERM=xterm-256color",
		"COLORTERM=truecolor",
	)
	return append(env, s.opts.Env...)
}

func (s *Supervisor) startFailed(p *Process, key string, err error) error {
	s.logger.Error("claude failed to start", "session", key, "error", err)
	s.emit(key, protocol.ErrorOutput{Text: err.Error()})
	s.registry.Remove(p)
	for _, id := range uniqueNonEmpty(key, p.inputSessionID) {
		s.hooks.Forget(id)
	}
	p.finish(err)
	return err
}

// closePipes releases parent pipe ends when the binary never started.
func closePipes(pipes ...io.Closer) {
	for _, c := range pipes {
		c.Close()
	}
}

func (s *Supervisor) readStdout(p *Process, r io.Reader) {
	var lb stream.LineBuffer
	buf := make([]byte, readChunkSize)

	for {
		n, err := r.Read(buf)
		if n > 0 {
			for _, line := range lb.Feed(string(buf[:n])) {
				s.handleLine(p, line)
			}
			if ev := stream.ClassifyPartial(lb.Pending()); ev != nil {
				s.emit(p.Key(), ev)
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrClosed) {
				s.logger.Warn("stdout read error", "session", p.Key(), "error", err)
			}
			break
		}
	}

	if rest := lb.Flush(); rest != "" {
		s.handleLine(p, rest)
	}
}

func (s *Supervisor) handleLine(p *Process, line string) {
	if isBlank(line) {
		return
	}

	c := stream.Classify(line)
	if c.Payload == nil {
		s.logger.Debug("non-json stdout line", "session", p.Key(), "line", line)
	}
	if c.SessionID != "" {
		s.captureSession(p, c.SessionID)
	}
	s.emit(p.Key(), c.Event)
}

// captureSession records the first session id the CLI reports, moves the
// registry entry to it and announces it once.
func (s *Supervisor) captureSession(p *Process, sessionID string) {
	oldKey := p.Key()
	first, rekeyed := s.registry.Capture(p, sessionID)
	if !first {
		if id := p.SessionID(); id != sessionID {
			s.logger.Debug("ignoring differing session id", "session", id, "reported", sessionID)
		}
		return
	}
	if rekeyed {
		s.logger.Info("session id captured", "from", oldKey, "session", sessionID)
	}

	if p.markSessionCreated() {
		s.emit(sessionID, protocol.SessionCreated{SessionID: sessionID})
	}
	if p.IsNewSession() {
		s.hooks.OnUserMessage(p.project, sessionID)
	}
}

func (s *Supervisor) readStderr(p *Process, r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), defaultScannerBufSize)

	for scanner.Scan() {
		line := scanner.Text()
		if isBlank(line) {
			continue
		}
		if text := stream.StripANSI(line); stream.IsStatusLine(text) {
			s.emit(p.Key(), stream.ParseStatus(text))
			continue
		}
		s.emit(p.Key(), protocol.ErrorOutput{Text: line})
	}
	if err := scanner.Err(); err != nil {
		s.logger.Warn("stderr read error", "session", p.Key(), "error", err)
	}
}

func (s *Supervisor) wait(p *Process, readers *sync.WaitGroup) {
	readers.Wait()
	waitErr := p.cmd.Wait()
	p.closeStdin()

	code := 0
	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			code = exitErr.ExitCode()
		} else {
			code = -1
		}
	}

	key := p.Key()
	s.emit(key, protocol.Completed{ExitCode: code, IsNewSession: p.IsNewSession()})
	s.registry.Remove(p)

	captured := p.SessionID()
	for _, id := range uniqueNonEmpty(key, captured, p.inputSessionID) {
		s.hooks.Forget(id)
	}

	if p.IsNewSession() && captured != "" && code == 0 {
		s.hooks.Initial(p.project, captured)
	}

	s.logger.Info("claude exited", "session", key, "code", code)

	var err error
	if code != 0 {
		err = &ExitError{Code: code}
	}
	p.finish(err)
}

func (s *Supervisor) emit(key string, ev protocol.Event) {
	if s.emitter == nil || ev == nil {
		return
	}
	if err := s.emitter.Emit(key, ev); err != nil {
		s.logger.Warn("emit failed", "session", key, "type", ev.Type(), "error", err)
	}
}

func isBlank(line string) bool {
	for _, r := range line {
		if r != ' ' && r != '\t' && r != '\r' {
			return false
		}
	}
	return true
}

func uniqueNonEmpty(values ...string) []string {
	seen := make(map[string]bool, len(values))
	var out []string
	for _, v := range values {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
