// Package realtime exposes the relay over HTTP: a WebSocket for CLI
// commands and streamed output, plus a small REST API for history.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"claude-relay/internal/protocol"
	"claude-relay/internal/session"
	"claude-relay/internal/transcript"
)

// Supervisor runs CLI processes.
type Supervisor interface {
	Start(ctx context.Context, command string, opts session.SpawnOptions) (*session.Process, error)
	Write(key, input string) error
	Abort(key string) bool
	Active() []session.Info
}

// SummaryLocks toggles the manual-edit flag of a session summary.
type SummaryLocks interface {
	MarkManuallyEdited(sessionID string)
	ClearManualEditFlag(sessionID string)
}

// Sessions serves transcript history and persists hand-written summaries.
type Sessions interface {
	ListSessions(ctx context.Context, project string, limit, offset int) (transcript.SessionPage, error)
	Messages(ctx context.Context, project, sessionID string) ([]transcript.Message, error)
	SaveManualSummary(ctx context.Context, project, sessionID, summary string) error
	ResetSummary(ctx context.Context, project, sessionID string) error
}

// Options configures a Server.
type Options struct {
	Hub        *Hub
	Supervisor Supervisor
	Summaries  SummaryLocks
	Sessions   Sessions
	Health     func() error
	StaticDir  string
	Logger     *slog.Logger

	// AllowedOrigins lists browser origins accepted in addition to
	// same-host and loopback pages.
	AllowedOrigins []string
}

// Server routes client messages to the supervisor and streams events back
// through the hub.
type Server struct {
	hub        *Hub
	supervisor Supervisor
	summaries  SummaryLocks
	sessions   Sessions
	health     func() error
	staticDir  string
	logger     *slog.Logger
	upgrader   websocket.Upgrader

	allowedOrigins []string

	// ctx outlives individual requests; CLI processes are bound to it.
	ctx context.Context
}

// New creates a new realtime server.
func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Hub == nil {
		opts.Hub = NewHub(0, opts.Logger)
	}
	s := &Server{
		hub:            opts.Hub,
		supervisor:     opts.Supervisor,
		summaries:      opts.Summaries,
		sessions:       opts.Sessions,
		health:         opts.Health,
		staticDir:      opts.StaticDir,
		logger:         opts.Logger.With("component", "realtime"),
		allowedOrigins: opts.AllowedOrigins,
		ctx:            context.Background(),
	}
	s.upgrader = websocket.Upgrader{CheckOrigin: s.originAllowed}
	return s
}

// Hub returns the broadcast hub.
func (s *Server) Hub() *Hub { return s.hub }

// Handler returns an http.Handler with all routes configured.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Recoverer)
	r.Use(s.cors)

	r.Get("/ws", s.handleWebSocket)
	s.registerAPI(r)

	if s.staticDir != "" {
		r.Handle("/*", http.FileServer(http.Dir(s.staticDir)))
	}
	return r
}

// handleWebSocket upgrades an HTTP connection to WebSocket.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := newClient(conn, s.hub, s.handleMessage)
	s.hub.register(c)

	go c.writePump()
	go c.readPump()
}

// handleMessage processes a validated client message.
func (s *Server) handleMessage(c *client, raw []byte) {
	msg, err := protocol.ValidateClientMessage(raw)
	if err != nil {
		s.sendError(c, protocol.ErrInvalidMessage, err.Error())
		return
	}

	switch msg.Type {
	case protocol.TypeClaudeCommand:
		s.handleCommand(c, msg)
	case protocol.TypeClaudeInput:
		s.handleInput(c, msg)
	case protocol.TypeAbortSession:
		s.handleAbort(c, msg)
	case protocol.TypeSummaryEdit:
		s.handleSummaryEdit(c, msg)
	case protocol.TypeSummaryUnlock:
		s.handleSummaryUnlock(msg)
	}
}

func (s *Server) handleCommand(c *client, msg *protocol.Message) {
	var payload protocol.CommandPayload
	json.Unmarshal(msg.Payload, &payload)

	opts := session.SpawnOptions{
		SessionID:       payload.Options.SessionID,
		Resume:          payload.Options.Resume,
		Cwd:             payload.Options.Cwd,
		ProjectName:     payload.Options.ProjectName,
		AllowedTools:    payload.Options.ToolsSettings.AllowedTools,
		DisallowedTools: payload.Options.ToolsSettings.DisallowedTools,
		SkipPermissions: payload.Options.ToolsSettings.SkipPermissions,
	}
	if _, err := s.supervisor.Start(s.ctx, payload.Command, opts); err != nil {
		s.sendError(c, protocol.ErrSpawnFailed, err.Error())
	}
}

func (s *Server) handleInput(c *client, msg *protocol.Message) {
	var payload protocol.InputPayload
	json.Unmarshal(msg.Payload, &payload)

	if err := s.supervisor.Write(payload.SessionID, payload.Input); err != nil {
		code := protocol.ErrInvalidMessage
		if errors.Is(err, session.ErrNotFound) {
			code = protocol.ErrSessionNotFound
		}
		s.sendError(c, code, err.Error())
	}
}

func (s *Server) handleAbort(c *client, msg *protocol.Message) {
	var payload protocol.SessionIDPayload
	json.Unmarshal(msg.Payload, &payload)

	ok := s.supervisor.Abort(payload.SessionID)
	data, err := protocol.NewAbortMessage(payload.SessionID, ok)
	if err != nil {
		return
	}
	c.reply(data)
}

func (s *Server) handleSummaryEdit(c *client, msg *protocol.Message) {
	var payload protocol.SummaryEditPayload
	json.Unmarshal(msg.Payload, &payload)

	if err := s.saveManualSummary(s.ctx, payload.ProjectName, payload.SessionID, payload.Summary); err != nil {
		s.sendError(c, protocol.ErrSummaryFailed, err.Error())
	}
}

func (s *Server) handleSummaryUnlock(msg *protocol.Message) {
	var payload protocol.SessionIDPayload
	json.Unmarshal(msg.Payload, &payload)
	s.summaries.ClearManualEditFlag(payload.SessionID)
}

// saveManualSummary locks the summary against regeneration before writing,
// so a regeneration already in flight sees the flag and backs off.
func (s *Server) saveManualSummary(ctx context.Context, project, sessionID, summary string) error {
	s.summaries.MarkManuallyEdited(sessionID)
	if err := s.sessions.SaveManualSummary(ctx, project, sessionID, summary); err != nil {
		return err
	}
	ev := protocol.SummaryUpdated{ProjectName: project, SessionID: sessionID, Summary: summary}
	if err := s.hub.Emit(sessionID, ev); err != nil {
		s.logger.Warn("emit summary failed", "session", sessionID, "error", err)
	}
	return nil
}

func (s *Server) sendError(c *client, code, message string) {
	data, err := protocol.NewErrorMessage(code, message)
	if err != nil {
		return
	}
	c.reply(data)
}

// OnTranscriptUpdate is the callback for the transcript watcher.
func (s *Server) OnTranscriptUpdate(project, sessionID string) {
	ev := protocol.ProjectsUpdated{ProjectName: project, SessionID: sessionID}
	if err := s.hub.Emit(sessionID, ev); err != nil {
		s.logger.Warn("emit projects update failed", "error", err)
	}
}
