package discovery

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"i2prelay/internal/shared/logger"
	"i2prelay/outproxy/model"
	"i2prelay/outproxy/transport"
)

var (
	httpsURLPattern = regexp.MustCompile(`https://([a-z0-9][a-z0-9.-]*\.i2p)(?::(\d{2,5}))?`)
	bareHostPattern = regexp.MustCompile(`\b([a-z0-9][a-z0-9.-]*\.i2p):(\d{2,5})\b`)
)

// OutproxysSource scrapes the outproxys.i2p directory page. The page is only
// reachable through the i2pd HTTP forward proxy, since .i2p names do not
// resolve outside the overlay.
type OutproxysSource struct {
	pageURL string
	client  *http.Client
}

// NewOutproxysSource creates a source for the given directory page, fetched
// through the forward proxy at proxyAddr.
func NewOutproxysSource(pageURL, proxyAddr string, timeout time.Duration) *OutproxysSource {
	return &OutproxysSource{
		pageURL: pageURL,
		client:  transport.ForwardProxyClient(proxyAddr, timeout),
	}
}

// Name returns the source's name.
func (s *OutproxysSource) Name() string {
	return "outproxys.i2p"
}

// Fetch downloads and parses the directory page.
func (s *OutproxysSource) Fetch(ctx context.Context) ([]model.Record, error) {
	l := logger.WithComponent("Outproxy/Discovery")
	l.Info().Str("source", s.Name()).Str("url", s.pageURL).Msg("Starting directory fetch...")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build directory request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/108.0.0.0 Safari/537.36")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch directory page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch directory page: unexpected status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse directory page: %w", err)
	}

	records := extract(doc)
	l.Info().Int("count", len(records)).Str("source", s.Name()).Msg("Directory fetch finished.")
	return records, nil
}

// extract pulls records out of a parsed directory page. Table rows carry
// explicit type information and are authoritative; the link and free-text
// heuristics only add records for (host, port) pairs not already present.
func extract(doc *goquery.Document) []model.Record {
	l := logger.WithComponent("Outproxy/Discovery")

	records := make([]model.Record, 0)
	seen := make(map[string]struct{})
	add := func(rec model.Record) {
		if _, dup := seen[rec.Key()]; dup {
			return
		}
		seen[rec.Key()] = struct{}{}
		records = append(records, rec)
	}

	// 1. Structured extraction: rows of (address, port, uptime, type).
	doc.Find("table tr").Each(func(i int, sel *goquery.Selection) {
		cells := sel.Find("td")
		if cells.Length() < 4 {
			return
		}

		host := strings.ToLower(strings.TrimSpace(cells.Eq(0).Text()))
		portStr := strings.TrimSpace(cells.Eq(1).Text())
		label := cells.Eq(3).Text()

		if !strings.HasSuffix(host, ".i2p") || portStr == "" {
			return
		}

		port, err := strconv.ParseUint(portStr, 10, 16)
		if err != nil {
			l.Warn().Str("host", host).Str("port", portStr).Msg("Failed to parse port, skipping row.")
			return
		}

		rec, ok := model.NewRecord(host, uint16(port), label)
		if !ok {
			l.Debug().Str("host", host).Str("type", strings.TrimSpace(label)).Msg("Row type not routable, skipping.")
			return
		}
		add(rec)
	})

	// 2. Anchor hyperlinks with encrypted-scheme URLs on overlay hosts.
	doc.Find("a[href]").Each(func(i int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		parsed, err := url.Parse(strings.TrimSpace(href))
		if err != nil || parsed.Scheme != "https" {
			return
		}
		host := strings.ToLower(parsed.Hostname())
		if !strings.HasSuffix(host, ".i2p") {
			return
		}
		port := uint16(443)
		if p := parsed.Port(); p != "" {
			v, err := strconv.ParseUint(p, 10, 16)
			if err != nil {
				return
			}
			port = uint16(v)
		}
		add(model.Record{Host: host, Port: port, Kind: model.KindEncrypted})
	})

	text := strings.ToLower(doc.Text())

	// 3. Encrypted-scheme URLs in free text.
	for _, m := range httpsURLPattern.FindAllStringSubmatch(text, -1) {
		host := m[1]
		port := uint16(443)
		if m[2] != "" {
			v, err := strconv.ParseUint(m[2], 10, 16)
			if err != nil {
				continue
			}
			port = uint16(v)
		}
		add(model.Record{Host: host, Port: port, Kind: model.KindEncrypted})
	}

	// 4. Bare overlay hosts paired with well-known outproxy ports.
	for _, m := range bareHostPattern.FindAllStringSubmatch(text, -1) {
		v, err := strconv.ParseUint(m[2], 10, 16)
		if err != nil {
			continue
		}
		kind, ok := model.KindForPort(uint16(v))
		if !ok {
			continue
		}
		add(model.Record{Host: m[1], Port: uint16(v), Kind: kind})
	}

	return records
}
