// Package i2pd controls the local I2P router process that provides the
// overlay's two forward-proxy listeners.
package i2pd

import (
	"fmt"
	"sync"

	"i2prelay/internal/shared/logger"
	"i2prelay/internal/shared/types"
)

// Binding is the native router control surface. A non-nil error from Init or
// Start is a fatal initialization failure; callers must not retry it.
type Binding interface {
	Init(configDir string) error
	Start() error
	Stop() error
	IsRunning() bool
	Cleanup()
}

// InitError reports a fatal native router failure.
type InitError struct {
	Op  string
	Err error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("i2pd router %s failed: %v", e.Op, e.Err)
}

func (e *InitError) Unwrap() error {
	return e.Err
}

// Service guards the router's init/start lifecycle so that concurrent
// callers see idempotent EnsureRunning semantics.
type Service struct {
	binding   Binding
	configDir string

	httpProxyAddr  string
	httpsProxyAddr string

	mu          sync.Mutex
	initialized bool
	running     bool
}

// NewService wraps a binding with lifecycle state and the configured forward
// proxy addresses.
func NewService(binding Binding, cfg types.I2PDConf) *Service {
	return &Service{
		binding:        binding,
		configDir:      cfg.DataDir,
		httpProxyAddr:  cfg.HTTPProxyAddr,
		httpsProxyAddr: cfg.HTTPSProxyAddr,
	}
}

// HTTPProxyAddr returns the plain HTTP forward proxy listener address.
func (s *Service) HTTPProxyAddr() string { return s.httpProxyAddr }

// HTTPSProxyAddr returns the CONNECT/TLS forward proxy listener address.
func (s *Service) HTTPSProxyAddr() string { return s.httpsProxyAddr }

// Init initializes the router once. Subsequent calls are no-ops.
func (s *Service) Init() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initLocked()
}

func (s *Service) initLocked() error {
	l := logger.WithComponent("I2PD")
	if s.initialized {
		l.Debug().Msg("Router already initialized.")
		return nil
	}

	l.Info().Str("config_dir", s.configDir).Msg("Initializing i2pd router...")
	if err := s.binding.Init(s.configDir); err != nil {
		return &InitError{Op: "init", Err: err}
	}
	s.initialized = true
	return nil
}

// Start initializes if needed and starts the router once.
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	l := logger.WithComponent("I2PD")
	if s.running {
		if s.binding.IsRunning() {
			l.Debug().Msg("Router already running.")
			return nil
		}
		// The native side went away underneath us.
		s.running = false
	}

	if err := s.initLocked(); err != nil {
		return err
	}

	l.Info().
		Str("http_proxy", s.httpProxyAddr).
		Str("https_proxy", s.httpsProxyAddr).
		Msg("Starting i2pd router...")
	if err := s.binding.Start(); err != nil {
		return &InitError{Op: "start", Err: err}
	}
	s.running = true
	return nil
}

// Stop stops the router if it is running.
func (s *Service) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}

	l := logger.WithComponent("I2PD")
	l.Info().Msg("Stopping i2pd router...")
	if err := s.binding.Stop(); err != nil {
		return &InitError{Op: "stop", Err: err}
	}
	s.running = false
	return nil
}

// IsRunning reports whether the router is up, consulting both the tracked
// lifecycle state and the binding itself.
func (s *Service) IsRunning() bool {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()
	return running && s.binding.IsRunning()
}

// EnsureRunning starts the router when it is not running yet. Errors are
// fatal for the caller's request; they are surfaced, not retried.
func (s *Service) EnsureRunning() error {
	if s.IsRunning() {
		return nil
	}
	return s.Start()
}

// Close stops the router and releases native resources.
func (s *Service) Close() {
	_ = s.Stop()
	s.binding.Cleanup()
}
