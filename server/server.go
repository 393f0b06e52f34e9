package server

import (
	"context"
	"log/slog"
	"net/http"
	"os"

	"chatterbox/pkg/call"
	"chatterbox/pkg/chat"
	"chatterbox/pkg/config"
	"chatterbox/pkg/group"
	"chatterbox/pkg/health"
	"chatterbox/pkg/logger"
	"chatterbox/pkg/messaging"
	"chatterbox/pkg/presence"
	"chatterbox/pkg/protocol"
	"chatterbox/pkg/router"
	"chatterbox/pkg/storage"
	"chatterbox/pkg/typing"
)

// Server wires the coordination registries, the event dispatcher, the
// websocket gateway and the REST API into one process.
type Server struct {
	cfg        *config.ServerConfig
	log        *slog.Logger
	registry   *presence.Registry
	groups     *group.Directory
	messages   *chat.Store
	router     *router.Router
	tracker    *typing.Tracker
	relay      *call.Relay
	uploads    storage.Store
	dispatcher messaging.Dispatcher
	monitor    *health.Monitor
	httpServer *http.Server
}

// NewServer creates a fully wired server from configuration
func NewServer(cfg *config.ServerConfig) (*Server, error) {
	log := logger.Get()

	registry := presence.NewRegistry()
	groups := group.NewDirectory()
	messages := chat.NewStore()
	rtr := router.New(registry, groups)
	tracker := typing.NewTracker(cfg.TypingTimeout())

	// With a zero ring timeout an unanswered call to an unreachable
	// callee just stays ringing and the caller hears nothing back.
	relay := call.NewRelay(cfg.RingTimeout(), func(s call.Session) {
		ev, err := protocol.NewEvent(protocol.EventCallFailed, protocol.CallFailedPayload{
			Callee: s.Callee,
			Reason: "no answer",
		})
		if err != nil {
			return
		}
		rtr.DeliverTo(s.Caller, ev)
	})

	uploads, err := storage.NewStore(cfg.Database)
	if err != nil {
		log.Warn("upload index unavailable, continuing without it", "error", err)
		uploads = nil
	}

	if err := os.MkdirAll(cfg.Uploads.Dir, 0o755); err != nil {
		return nil, err
	}

	s := &Server{
		cfg:        cfg,
		log:        log,
		registry:   registry,
		groups:     groups,
		messages:   messages,
		router:     rtr,
		tracker:    tracker,
		relay:      relay,
		uploads:    uploads,
		dispatcher: messaging.NewDispatcher(),
		monitor:    health.NewMonitor(),
	}
	s.initializeDispatcher()

	return s, nil
}

// initializeDispatcher registers one handler per inbound event type
func (s *Server) initializeDispatcher() {
	s.dispatcher.Register(messaging.NewConnectHandler(s.registry))
	s.dispatcher.Register(messaging.NewSendMessageHandler(s.messages, s.router, s.groups))
	s.dispatcher.Register(messaging.NewMarkReadHandler(s.messages, s.router))
	s.dispatcher.Register(messaging.NewHistoryHandler(s.messages, s.router))
	s.dispatcher.Register(messaging.NewTypingStartHandler(s.tracker, s.router))
	s.dispatcher.Register(messaging.NewTypingStopHandler(s.tracker, s.router))
	s.dispatcher.Register(messaging.NewCallInitiateHandler(s.relay, s.router))
	s.dispatcher.Register(messaging.NewCallAnswerHandler(s.relay, s.router))
	s.dispatcher.Register(messaging.NewCallEndHandler(s.relay, s.router))
}

// Start runs the HTTP server until Shutdown is called
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:    s.cfg.Address,
		Handler: s.setupRouter(),
	}

	s.log.Info("listening", "address", s.cfg.Address)
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown stops the HTTP server and closes the upload index
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	if s.httpServer != nil {
		err = s.httpServer.Shutdown(ctx)
	}
	if s.uploads != nil {
		s.uploads.Close()
	}
	return err
}
