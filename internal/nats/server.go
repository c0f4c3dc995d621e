// internal/nats/server.go
package nats

import (
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats-server/v2/server"
)

// EmbeddedServerConfig holds configuration for the embedded NATS server
type EmbeddedServerConfig struct {
	Port int // Port to listen on; -1 picks a free port
}

// EmbeddedServer wraps an in-process NATS server so deployments without an
// external broker can still expose the lifecycle subjects
type EmbeddedServer struct {
	server  *server.Server
	config  EmbeddedServerConfig
	mu      sync.RWMutex
	running bool
}

// NewEmbeddedServer creates an embedded server instance
func NewEmbeddedServer(config EmbeddedServerConfig) *EmbeddedServer {
	if config.Port == 0 {
		config.Port = 4222
	}
	return &EmbeddedServer{config: config}
}

// Start launches the server and waits for it to accept connections
func (e *EmbeddedServer) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running {
		return fmt.Errorf("server already running")
	}

	opts := &server.Options{
		Host:       "127.0.0.1",
		Port:       e.config.Port,
		NoSigs:     true,
		MaxPayload: 1024 * 1024,
	}

	ns, err := server.NewServer(opts)
	if err != nil {
		return fmt.Errorf("failed to create NATS server: %w", err)
	}
	e.server = ns

	go ns.Start()
	if !ns.ReadyForConnections(10 * time.Second) {
		return fmt.Errorf("server not ready for connections")
	}

	e.running = true
	return nil
}

// Shutdown gracefully stops the server
func (e *EmbeddedServer) Shutdown() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.running || e.server == nil {
		return
	}
	e.server.Shutdown()
	e.server.WaitForShutdown()
	e.running = false
	e.server = nil
}

// URL returns the client connection URL
func (e *EmbeddedServer) URL() string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.server != nil {
		return e.server.ClientURL()
	}
	return fmt.Sprintf("nats://127.0.0.1:%d", e.config.Port)
}

// IsRunning returns whether the server is currently up
func (e *EmbeddedServer) IsRunning() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.running
}
