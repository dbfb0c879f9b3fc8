package model

import (
	"fmt"
	"strings"
	"time"
)

// Kind classifies the proxy protocol a record speaks, derived once at
// construction from the advertised scheme or port and never mutated.
type Kind int

const (
	KindPlain Kind = iota
	KindEncrypted
	KindSocks
)

func (k Kind) String() string {
	switch k {
	case KindEncrypted:
		return "https"
	case KindSocks:
		return "socks"
	default:
		return "http"
	}
}

// ParseKind maps a scraped protocol label onto a Kind. The boolean reports
// whether the label names a protocol we route through at all; plain "http"
// rows in directory listings are rejected.
func ParseKind(label string) (Kind, bool) {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "https", "ssl", "tls", "encrypted":
		return KindEncrypted, true
	case "socks", "socks4", "socks5":
		return KindSocks, true
	default:
		return KindPlain, false
	}
}

// KindForPort guesses the Kind of a bare host:port pair found in free text.
// Only a small allow-list of well-known outproxy ports is accepted.
func KindForPort(port uint16) (Kind, bool) {
	switch port {
	case 443, 8443:
		return KindEncrypted, true
	case 1080, 4145:
		return KindSocks, true
	default:
		return KindPlain, false
	}
}

// Record is an immutable description of a discovered outproxy.
type Record struct {
	Host string
	Port uint16
	Kind Kind
}

// NewRecord builds a Record, deriving the Kind from the scraped protocol
// label. ok is false when the label is not a routable protocol.
func NewRecord(host string, port uint16, label string) (Record, bool) {
	kind, ok := ParseKind(label)
	if !ok {
		return Record{}, false
	}
	return Record{Host: host, Port: port, Kind: kind}, true
}

// Key is the deduplication and equality identity of a record.
func (r Record) Key() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// URL renders the record in URL form using the scheme implied by its Kind.
func (r Record) URL() string {
	switch r.Kind {
	case KindEncrypted:
		return fmt.Sprintf("https://%s:%d", r.Host, r.Port)
	case KindSocks:
		return fmt.Sprintf("socks5://%s:%d", r.Host, r.Port)
	default:
		return fmt.Sprintf("http://%s:%d", r.Host, r.Port)
	}
}

// IsI2P reports whether the record lives inside the overlay namespace. Such
// hosts only resolve through the i2pd router, so they can never be dialed
// directly from here.
func (r Record) IsI2P() bool {
	return strings.HasSuffix(strings.ToLower(r.Host), ".i2p")
}

// Result is the outcome of a single benchmark probe. Created once per probe
// attempt and never mutated afterwards.
type Result struct {
	Record      Record
	Success     bool
	BytesPerSec float64
	LatencyMS   float64
	Reason      string // failure reason, empty on success
}

// Succeeded builds a successful probe result.
func Succeeded(rec Record, bytesPerSec, latencyMS float64) Result {
	return Result{
		Record:      rec,
		Success:     true,
		BytesPerSec: bytesPerSec,
		LatencyMS:   latencyMS,
	}
}

// Failed builds a failed probe result carrying a human-readable reason.
func Failed(rec Record, reason string) Result {
	return Result{Record: rec, Reason: reason}
}

// Candidate is a record promoted by selection, together with its last known
// throughput and the instant it was picked.
type Candidate struct {
	Record      Record
	BytesPerSec float64
	SelectedAt  time.Time
}
