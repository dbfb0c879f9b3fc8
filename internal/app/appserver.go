// Package app wires the discovery/benchmark/selection pipeline behind a
// small local HTTP API.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"i2prelay/internal/shared/logger"
	"i2prelay/internal/shared/types"
	"i2prelay/outproxy/discovery"
	"i2prelay/outproxy/router"
	"i2prelay/outproxy/selector"
)

// Server owns the daemon's components and the local API listener.
type Server struct {
	cfg       *types.Config
	discovery *discovery.Manager
	selector  *selector.Selector
	router    *router.Router
}

// New assembles the server from its components.
func New(cfg *types.Config, disc *discovery.Manager, sel *selector.Selector, rtr *router.Router) *Server {
	return &Server{cfg: cfg, discovery: disc, selector: sel, router: rtr}
}

// Run serves the local API until SIGINT/SIGTERM.
func (s *Server) Run() error {
	l := logger.WithComponent("App")

	mux := http.NewServeMux()
	mux.HandleFunc("POST /request", s.handleRequest)
	mux.HandleFunc("GET /proxies", s.handleProxies)
	mux.HandleFunc("POST /refresh", s.handleRefresh)

	srv := &http.Server{
		Addr:    s.cfg.ListenAddr,
		Handler: mux,
	}

	errChan := make(chan error, 1)
	go func() {
		l.Info().Str("addr", s.cfg.ListenAddr).Msg("API listening.")
		errChan <- srv.ListenAndServe()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return err
	case sig := <-sigChan:
		l.Info().Str("signal", sig.String()).Msg("Shutting down.")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	}
}

func (s *Server) handleRequest(w http.ResponseWriter, r *http.Request) {
	var req router.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.URL == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}

	records := s.discovery.Records()
	if len(records) == 0 {
		refreshed, err := s.discovery.Refresh(r.Context())
		if err != nil {
			writeError(w, http.StatusBadGateway, "discovery failed: "+err.Error())
			return
		}
		records = refreshed
	}

	resp, err := s.router.Route(r.Context(), &req, records)
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, router.ErrNoCandidates) {
			status = http.StatusServiceUnavailable
		}
		writeError(w, status, err.Error())
		return
	}

	if req.Stream {
		// Headers and status go out immediately; the body follows raw.
		defer resp.BodyStream.Close()
		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}
		w.Header().Set("X-Proxy-Used", resp.ProxyUsed)
		w.WriteHeader(resp.Status)
		_, _ = io.Copy(w, resp.BodyStream)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

type proxiesResponse struct {
	Records []recordDTO   `json:"records"`
	Best    *candidateDTO `json:"best,omitempty"`
}

type recordDTO struct {
	Host string `json:"host"`
	Port uint16 `json:"port"`
	Kind string `json:"kind"`
	URL  string `json:"url"`
}

type candidateDTO struct {
	URL         string    `json:"url"`
	BytesPerSec float64   `json:"bytes_per_sec"`
	SelectedAt  time.Time `json:"selected_at"`
}

func (s *Server) handleProxies(w http.ResponseWriter, r *http.Request) {
	records := s.discovery.Records()
	out := proxiesResponse{Records: make([]recordDTO, 0, len(records))}
	for _, rec := range records {
		out.Records = append(out.Records, recordDTO{
			Host: rec.Host,
			Port: rec.Port,
			Kind: rec.Kind.String(),
			URL:  rec.URL(),
		})
	}
	if best := s.selector.Cached(); best != nil {
		out.Best = &candidateDTO{
			URL:         best.Record.URL(),
			BytesPerSec: best.BytesPerSec,
			SelectedAt:  best.SelectedAt,
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	records, err := s.discovery.Refresh(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, "discovery failed: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"count": len(records)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		l := logger.WithComponent("App")
		l.Error().Err(err).Msg("Failed to encode response.")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
