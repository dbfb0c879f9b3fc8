// Package router sends client requests either straight through the overlay's
// local forward proxy or through ranked external outproxies, with
// retry-on-connectivity-failure across candidates.
package router

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"i2prelay/internal/shared/logger"
	"i2prelay/internal/shared/types"
	"i2prelay/outproxy/model"
	"i2prelay/outproxy/transport"
)

// Selector is the candidate-ranking surface the router consumes.
type Selector interface {
	EnsureFreshN(ctx context.Context, records []model.Record, n int) []model.Candidate
	ReportFailure(rec model.Record)
}

// NativeRouter is the overlay router collaborator: it must be running before
// any request that needs the local forward proxies.
type NativeRouter interface {
	EnsureRunning() error
	HTTPProxyAddr() string
	HTTPSProxyAddr() string
}

// Request describes one client request to route.
type Request struct {
	URL     string            `json:"url"`
	Method  string            `json:"method"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    []byte            `json:"body,omitempty"`

	// Stream requests headers-first delivery: the response carries an open
	// body reader instead of buffered bytes, and the caller owns closing it.
	Stream bool `json:"stream,omitempty"`
}

// Response is a routed response together with the identity of the proxy that
// served it.
type Response struct {
	Status     int               `json:"status"`
	Headers    map[string]string `json:"headers"`
	Body       []byte            `json:"body,omitempty"`
	BodyStream io.ReadCloser     `json:"-"`
	ProxyUsed  string            `json:"proxy_used"`
}

// Router decides per request whether the target is an overlay host (served
// by the local forward proxy) or a clearnet host (served through ranked
// outproxies with fallback).
type Router struct {
	selector Selector
	native   NativeRouter
	topN     int
	timeout  time.Duration
}

// New creates a Router from the outproxy configuration.
func New(sel Selector, native NativeRouter, cfg types.OutproxyConf) *Router {
	return &Router{
		selector: sel,
		native:   native,
		topN:     cfg.TopCandidates,
		timeout:  time.Duration(cfg.RouteTimeoutSeconds) * time.Second,
	}
}

// Route satisfies the request using the discovered records. It returns either
// a routed response naming the proxy that served it, or a terminal error.
func (r *Router) Route(ctx context.Context, req *Request, records []model.Record) (*Response, error) {
	l := logger.WithComponent("Outproxy/Router").With().
		Str("request_id", uuid.NewString()[:8]).Logger()

	target, err := url.Parse(req.URL)
	if err != nil {
		return nil, &ProtocolError{Err: fmt.Errorf("invalid request URL: %w", err)}
	}

	if err := r.native.EnsureRunning(); err != nil {
		return nil, err
	}

	if isOverlayHost(target.Hostname()) {
		l.Debug().Str("host", target.Hostname()).Msg("Overlay target, using local forward proxy.")
		return r.routeOverlay(ctx, req, target)
	}

	candidates := r.selector.EnsureFreshN(ctx, records, r.topN)
	if len(candidates) == 0 {
		return nil, ErrNoCandidates
	}

	l.Info().
		Str("method", req.Method).
		Str("url", req.URL).
		Int("candidates", len(candidates)).
		Msg("Routing clearnet request through ranked outproxies.")

	var lastErr error
	for i, cand := range candidates {
		resp, err := r.tryCandidate(ctx, req, cand)
		if err == nil {
			l.Info().Str("proxy", cand.Record.URL()).Int("rank", i+1).Int("status", resp.Status).Msg("Request served.")
			return resp, nil
		}

		if !isConnectivityError(err) {
			// Retrying other proxies cannot fix a protocol-level problem.
			return nil, &ProtocolError{Err: err}
		}

		l.Warn().Err(err).Str("proxy", cand.Record.URL()).Int("rank", i+1).Msg("Candidate failed, falling back to next.")
		r.selector.ReportFailure(cand.Record)
		lastErr = err
	}

	return nil, &ExhaustedError{Attempts: len(candidates), Last: lastErr}
}

// routeOverlay sends the request through the overlay's own forward proxy.
// There is only one local ingress, so no multi-candidate retry applies.
func (r *Router) routeOverlay(ctx context.Context, req *Request, target *url.URL) (*Response, error) {
	proxyAddr := r.native.HTTPProxyAddr()
	if target.Scheme == "https" {
		proxyAddr = r.native.HTTPSProxyAddr()
	}

	client := transport.ForwardProxyClient(proxyAddr, r.timeout)
	resp, err := r.send(ctx, client, req, "i2p-router:"+proxyAddr)
	if err != nil {
		return nil, fmt.Errorf("overlay request via %s: %w", proxyAddr, err)
	}
	return resp, nil
}

// tryCandidate sends the request through one ranked candidate, walking its
// transport attempts (SOCKS first, then HTTPS CONNECT for socks-like
// records). Only connectivity errors move on to the next attempt.
func (r *Router) tryCandidate(ctx context.Context, req *Request, cand model.Candidate) (*Response, error) {
	var lastErr error
	for _, attempt := range transport.Attempts(cand.Record, r.timeout) {
		resp, err := r.send(ctx, attempt.Client, req, cand.Record.URL())
		if err == nil {
			return resp, nil
		}
		if !isConnectivityError(err) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

func (r *Router) send(ctx context.Context, client *http.Client, req *Request, proxyUsed string) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)

	method := strings.ToUpper(req.Method)
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, body)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("build request: %w", err)
	}
	for key, value := range req.Headers {
		httpReq.Header.Set(key, value)
	}

	httpResp, err := client.Do(httpReq)
	if err != nil {
		cancel()
		return nil, err
	}

	headers := make(map[string]string, len(httpResp.Header))
	for key, values := range httpResp.Header {
		headers[key] = strings.Join(values, ", ")
	}

	resp := &Response{
		Status:    httpResp.StatusCode,
		Headers:   headers,
		ProxyUsed: proxyUsed,
	}

	if req.Stream {
		// Headers-first delivery: hand the open body to the caller, who is
		// responsible for closing it. The timeout context stays alive until
		// the stream is closed.
		resp.BodyStream = &cancelReadCloser{ReadCloser: httpResp.Body, cancel: cancel}
		return resp, nil
	}

	defer cancel()
	defer httpResp.Body.Close()
	buf, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	resp.Body = buf
	return resp, nil
}

// cancelReadCloser releases the request context when the streamed body is
// closed.
type cancelReadCloser struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelReadCloser) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}

func isOverlayHost(host string) bool {
	return strings.HasSuffix(strings.ToLower(host), ".i2p")
}
