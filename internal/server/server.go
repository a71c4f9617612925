// Package server exposes the sync engine over HTTP.
//
// Two endpoints carry the whole protocol: GET /state fetches a client's
// full-state document and POST /state atomically replaces it. A WebSocket
// endpoint at /ws streams accepted-write notifications so other devices of
// the same client can fetch promptly instead of polling.
package server

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	statesync "github.com/edward/tracksync/internal/sync"
)

// Config holds server configuration.
type Config struct {
	// Addr is the TCP address to listen on (default ":8787").
	Addr string

	// Logger for server activity (default: stderr logger).
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Addr:   ":8787",
		Logger: log.Default(),
	}
}

// Server serves the sync protocol over HTTP.
type Server struct {
	addr     string
	listener net.Listener
	server   *http.Server

	engine statesync.Engine
	events *eventHub
	logger *log.Logger

	wg sync.WaitGroup
}

// NewServer creates a sync server around the given engine.
func NewServer(engine statesync.Engine, config *Config) *Server {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Addr == "" {
		config.Addr = ":8787"
	}
	if config.Logger == nil {
		config.Logger = log.Default()
	}

	return &Server{
		addr:   config.Addr,
		engine: engine,
		events: newEventHub(config.Logger),
		logger: config.Logger,
	}
}

// Start begins listening and serving requests.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = ln

	s.server = &http.Server{
		Handler:      s.routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	s.events.start()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Printf("Sync server listening on %s", ln.Addr())
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Printf("Server error: %v", err)
		}
	}()

	return nil
}

// Stop gracefully shuts down the server and the event feed.
func (s *Server) Stop() error {
	s.logger.Println("Stopping sync server")

	s.events.stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	s.wg.Wait()

	s.logger.Println("Sync server stopped")
	return nil
}

// routes builds the HTTP mux. Split out so tests can drive handlers through
// httptest without binding a socket.
func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/state", s.handleState)
	mux.HandleFunc("/ws", s.events.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)
	return mux
}

// GetAddr returns the server's listening address.
func (s *Server) GetAddr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}
