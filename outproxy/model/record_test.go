package model

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseKind(t *testing.T) {
	cases := []struct {
		label string
		kind  Kind
		ok    bool
	}{
		{"https", KindEncrypted, true},
		{" SSL ", KindEncrypted, true},
		{"tls", KindEncrypted, true},
		{"socks", KindSocks, true},
		{"SOCKS5", KindSocks, true},
		{"socks4", KindSocks, true},
		{"http", 0, false},
		{"", 0, false},
		{"ftp", 0, false},
	}

	for _, c := range cases {
		kind, ok := ParseKind(c.label)
		require.Equal(t, c.ok, ok, "label %q", c.label)
		if ok {
			require.Equal(t, c.kind, kind, "label %q", c.label)
		}
	}
}

func TestKindForPort(t *testing.T) {
	kind, ok := KindForPort(443)
	require.True(t, ok)
	require.Equal(t, KindEncrypted, kind)

	kind, ok = KindForPort(1080)
	require.True(t, ok)
	require.Equal(t, KindSocks, kind)

	_, ok = KindForPort(8080)
	require.False(t, ok)
}

func TestRecordURL(t *testing.T) {
	rec := Record{Host: "proxy.example.i2p", Port: 443, Kind: KindEncrypted}
	require.Equal(t, "https://proxy.example.i2p:443", rec.URL())

	rec = Record{Host: "10.0.0.1", Port: 1080, Kind: KindSocks}
	require.Equal(t, "socks5://10.0.0.1:1080", rec.URL())

	rec = Record{Host: "10.0.0.1", Port: 8080, Kind: KindPlain}
	require.Equal(t, "http://10.0.0.1:8080", rec.URL())
}

func TestRecordKey(t *testing.T) {
	a := Record{Host: "proxy.i2p", Port: 443, Kind: KindEncrypted}
	b := Record{Host: "proxy.i2p", Port: 443, Kind: KindSocks}
	require.Equal(t, a.Key(), b.Key(), "identity is (host, port), not kind")
}

func TestRecordIsI2P(t *testing.T) {
	require.True(t, Record{Host: "proxy.i2p"}.IsI2P())
	require.True(t, Record{Host: "abc.B32.I2P"}.IsI2P())
	require.False(t, Record{Host: "proxy.example.com"}.IsI2P())
	require.False(t, Record{Host: "10.0.0.1"}.IsI2P())
}

func TestNewRecordRejectsPlainHTTP(t *testing.T) {
	_, ok := NewRecord("proxy.i2p", 4444, "http")
	require.False(t, ok)

	rec, ok := NewRecord("proxy.i2p", 443, "https")
	require.True(t, ok)
	require.Equal(t, KindEncrypted, rec.Kind)
}

func TestResultConstructors(t *testing.T) {
	rec := Record{Host: "proxy.i2p", Port: 443, Kind: KindEncrypted}

	ok := Succeeded(rec, 5000, 120)
	require.True(t, ok.Success)
	require.Equal(t, 5000.0, ok.BytesPerSec)
	require.Equal(t, 120.0, ok.LatencyMS)
	require.Empty(t, ok.Reason)

	bad := Failed(rec, "connection refused")
	require.False(t, bad.Success)
	require.Zero(t, bad.BytesPerSec)
	require.Equal(t, "connection refused", bad.Reason)
}
