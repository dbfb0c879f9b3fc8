package discovery

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"

	"i2prelay/internal/shared/logger"
	"i2prelay/outproxy/model"
)

// NotbobSource scrapes the notbob.i2p outproxy listing as a secondary
// directory. Built on colly because the page is plain tabular HTML with no
// free-text proxy mentions worth heuristic scanning.
type NotbobSource struct {
	pageURL   string
	proxyAddr string
	timeout   time.Duration
}

// NewNotbobSource creates a source for the given listing page, fetched
// through the forward proxy at proxyAddr.
func NewNotbobSource(pageURL, proxyAddr string, timeout time.Duration) *NotbobSource {
	return &NotbobSource{pageURL: pageURL, proxyAddr: proxyAddr, timeout: timeout}
}

// Name returns the source's name.
func (s *NotbobSource) Name() string {
	return "notbob.i2p"
}

// Fetch downloads and parses the listing page.
func (s *NotbobSource) Fetch(ctx context.Context) ([]model.Record, error) {
	l := logger.WithComponent("Outproxy/Discovery")
	l.Info().Str("source", s.Name()).Str("url", s.pageURL).Msg("Starting directory fetch...")

	c := colly.NewCollector(
		colly.UserAgent("Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/108.0.0.0 Safari/537.36"),
		colly.StdlibContext(ctx),
	)
	c.SetRequestTimeout(s.timeout)
	if s.proxyAddr != "" {
		if err := c.SetProxy("http://" + s.proxyAddr); err != nil {
			return nil, fmt.Errorf("configure forward proxy: %w", err)
		}
	}

	records := make([]model.Record, 0)
	seen := make(map[string]struct{})
	var fetchErr error

	c.OnHTML("table tr", func(e *colly.HTMLElement) {
		cells := e.ChildTexts("td")
		if len(cells) < 4 {
			return
		}

		host := strings.ToLower(strings.TrimSpace(cells[0]))
		portStr := strings.TrimSpace(cells[1])
		if !strings.HasSuffix(host, ".i2p") || portStr == "" {
			return
		}

		port, err := strconv.ParseUint(portStr, 10, 16)
		if err != nil {
			return
		}

		rec, ok := model.NewRecord(host, uint16(port), cells[3])
		if !ok {
			return
		}
		if _, dup := seen[rec.Key()]; dup {
			return
		}
		seen[rec.Key()] = struct{}{}
		records = append(records, rec)
	})

	c.OnError(func(r *colly.Response, err error) {
		fetchErr = err
	})

	if err := c.Visit(s.pageURL); err != nil {
		return nil, fmt.Errorf("fetch listing page: %w", err)
	}
	c.Wait()

	if fetchErr != nil {
		return nil, fmt.Errorf("fetch listing page: %w", fetchErr)
	}

	l.Info().Int("count", len(records)).Str("source", s.Name()).Msg("Directory fetch finished.")
	return records, nil
}
