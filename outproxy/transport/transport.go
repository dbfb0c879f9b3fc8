// Package transport builds HTTP clients that tunnel through a given
// outproxy, or through the local i2pd forward proxies.
package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	xproxy "golang.org/x/net/proxy"

	"i2prelay/internal/shared/logger"
	"i2prelay/outproxy/model"
)

// Attempt is one way of reaching a destination through a proxy. Socks
// records produce two attempts, SOCKS5 first and an HTTPS CONNECT fallback
// for environments where the SOCKS listener is unavailable.
type Attempt struct {
	Scheme string
	Client *http.Client
}

// Attempts returns the ordered transport attempts for a record. The slice is
// never empty for a valid record.
func Attempts(rec model.Record, timeout time.Duration) []Attempt {
	l := logger.WithComponent("Outproxy/Transport")

	switch rec.Kind {
	case model.KindSocks:
		attempts := make([]Attempt, 0, 2)
		if client, err := socksClient(rec, timeout); err != nil {
			l.Warn().Err(err).Str("proxy", rec.URL()).Msg("SOCKS5 dialer setup failed, falling back to HTTPS CONNECT only.")
		} else {
			attempts = append(attempts, Attempt{Scheme: "socks5", Client: client})
		}
		attempts = append(attempts, Attempt{
			Scheme: "https",
			Client: proxyClient(fmt.Sprintf("https://%s:%d", rec.Host, rec.Port), timeout),
		})
		return attempts
	case model.KindEncrypted:
		return []Attempt{{
			Scheme: "https",
			Client: proxyClient(fmt.Sprintf("https://%s:%d", rec.Host, rec.Port), timeout),
		}}
	default:
		return []Attempt{{
			Scheme: "http",
			Client: proxyClient(fmt.Sprintf("http://%s:%d", rec.Host, rec.Port), timeout),
		}}
	}
}

// ForwardProxyClient returns a client that sends everything through one of
// the i2pd local forward proxies (127.0.0.1:4444 / 127.0.0.1:4447).
func ForwardProxyClient(proxyAddr string, timeout time.Duration) *http.Client {
	return proxyClient("http://"+proxyAddr, timeout)
}

func socksClient(rec model.Record, timeout time.Duration) (*http.Client, error) {
	proxyAddr := fmt.Sprintf("%s:%d", rec.Host, rec.Port)
	dialer, err := xproxy.SOCKS5("tcp", proxyAddr, nil, &net.Dialer{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("failed to create SOCKS5 dialer: %w", err)
	}

	contextDialer, ok := dialer.(xproxy.ContextDialer)
	if !ok {
		return nil, fmt.Errorf("SOCKS5 dialer does not support contexts")
	}

	transport := &http.Transport{
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			return contextDialer.DialContext(ctx, network, addr)
		},
		TLSClientConfig:       &tls.Config{InsecureSkipVerify: true},
		IdleConnTimeout:       timeout,
		TLSHandshakeTimeout:   timeout / 2,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &http.Client{Transport: transport, Timeout: timeout}, nil
}

func proxyClient(proxyURL string, timeout time.Duration) *http.Client {
	parsed, err := url.Parse(proxyURL)
	if err != nil {
		// Record hosts and ports always produce a parseable URL; treat the
		// impossible case as "no proxy" rather than panicking.
		parsed = nil
	}

	dialer := &net.Dialer{
		Timeout:   timeout,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		Proxy: http.ProxyURL(parsed),
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			return dialer.DialContext(ctx, network, addr)
		},
		TLSClientConfig:       &tls.Config{InsecureSkipVerify: true},
		IdleConnTimeout:       timeout,
		TLSHandshakeTimeout:   timeout / 2,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &http.Client{Transport: transport, Timeout: timeout}
}
