package i2pd

import (
	"fmt"
	"net"
	"os"
	"os/exec"
	"syscall"
	"time"

	"i2prelay/internal/shared/logger"
	"i2prelay/internal/shared/types"
)

const (
	startupProbeInterval = 500 * time.Millisecond
	startupDeadline      = 30 * time.Second
	shutdownDeadline     = 10 * time.Second
)

// ProcessBinding implements Binding by supervising an external i2pd
// executable, the same control surface the native library exposes.
type ProcessBinding struct {
	executable    string
	dataDir       string
	httpProxyAddr string

	cmd  *exec.Cmd
	done chan struct{} // closed when the process exits
}

// NewProcessBinding creates a binding for the configured i2pd executable.
func NewProcessBinding(cfg types.I2PDConf) *ProcessBinding {
	return &ProcessBinding{
		executable:    cfg.Executable,
		dataDir:       cfg.DataDir,
		httpProxyAddr: cfg.HTTPProxyAddr,
	}
}

// Init verifies the executable is present and the data directory exists.
func (b *ProcessBinding) Init(configDir string) error {
	if configDir != "" {
		b.dataDir = configDir
	}
	path, err := exec.LookPath(b.executable)
	if err != nil {
		return fmt.Errorf("i2pd executable not found: %w", err)
	}
	b.executable = path

	if b.dataDir != "" {
		if err := os.MkdirAll(b.dataDir, 0700); err != nil {
			return fmt.Errorf("create data directory: %w", err)
		}
	}
	return nil
}

// Start launches the router process and waits for the HTTP forward proxy to
// accept connections.
func (b *ProcessBinding) Start() error {
	l := logger.WithComponent("I2PD/Process")

	httpHost, httpPort, err := net.SplitHostPort(b.httpProxyAddr)
	if err != nil {
		return fmt.Errorf("invalid http proxy address %q: %w", b.httpProxyAddr, err)
	}

	// The encrypted-scheme listener (default 127.0.0.1:4447) is set up by the
	// router's own tunnel configuration inside the data directory.
	args := []string{
		"--httpproxy.enabled=true",
		"--httpproxy.address=" + httpHost,
		"--httpproxy.port=" + httpPort,
	}
	if b.dataDir != "" {
		args = append(args, "--datadir="+b.dataDir)
	}

	cmd := exec.Command(b.executable, args...)
	cmd.Stdout = nil
	cmd.Stderr = nil
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start i2pd process: %w", err)
	}

	done := make(chan struct{})
	go func() {
		_ = cmd.Wait()
		close(done)
	}()
	b.cmd = cmd
	b.done = done

	l.Info().Int("pid", cmd.Process.Pid).Msg("i2pd process started, waiting for forward proxy...")

	deadline := time.Now().Add(startupDeadline)
	for time.Now().Before(deadline) {
		select {
		case <-done:
			return fmt.Errorf("i2pd process exited during startup")
		default:
		}
		if portAccepts(b.httpProxyAddr) {
			l.Info().Str("http_proxy", b.httpProxyAddr).Msg("Forward proxy is accepting connections.")
			return nil
		}
		time.Sleep(startupProbeInterval)
	}

	_ = b.Stop()
	return fmt.Errorf("forward proxy %s not reachable within %s", b.httpProxyAddr, startupDeadline)
}

// Stop terminates the process, escalating from SIGTERM to SIGKILL.
func (b *ProcessBinding) Stop() error {
	if b.cmd == nil || b.cmd.Process == nil {
		return nil
	}

	_ = b.cmd.Process.Signal(syscall.SIGTERM)
	select {
	case <-b.done:
	case <-time.After(shutdownDeadline):
		l := logger.WithComponent("I2PD/Process")
		l.Warn().Msg("i2pd did not exit on SIGTERM, killing.")
		_ = b.cmd.Process.Kill()
		<-b.done
	}
	b.cmd = nil
	b.done = nil
	return nil
}

// IsRunning reports whether the supervised process is alive.
func (b *ProcessBinding) IsRunning() bool {
	if b.cmd == nil || b.done == nil {
		return false
	}
	select {
	case <-b.done:
		return false
	default:
		return true
	}
}

// Cleanup kills any leftover process.
func (b *ProcessBinding) Cleanup() {
	_ = b.Stop()
}

func portAccepts(addr string) bool {
	conn, err := net.DialTimeout("tcp", addr, time.Second)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}
