package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"i2prelay/outproxy/model"
)

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "outproxies.txt")
	fs := NewFileStore(path)

	records := []model.Record{
		{Host: "proxya.i2p", Port: 443, Kind: model.KindEncrypted},
		{Host: "proxyb.b32.i2p", Port: 1080, Kind: model.KindSocks},
	}
	require.NoError(t, fs.Save(records))

	loaded, err := fs.Load()
	require.NoError(t, err)
	require.Equal(t, records, loaded)
}

func TestFileStoreLoadMissingFile(t *testing.T) {
	fs := NewFileStore(filepath.Join(t.TempDir(), "missing.txt"))

	loaded, err := fs.Load()
	require.NoError(t, err)
	require.Empty(t, loaded)
}

func TestFileStoreLoadSkipsMalformedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "outproxies.txt")
	content := "proxya.i2p|443|https|1700000000\n" +
		"not a record\n" +
		"proxyb.i2p|notaport|socks|1700000000\n" +
		"proxyc.i2p|4444|http|1700000000\n" + // plain http is not routable
		"proxyd.i2p|1080|socks|1700000000\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	loaded, err := NewFileStore(path).Load()
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	require.Equal(t, "proxya.i2p", loaded[0].Host)
	require.Equal(t, "proxyd.i2p", loaded[1].Host)
}

func TestFileStoreLoadDedups(t *testing.T) {
	path := filepath.Join(t.TempDir(), "outproxies.txt")
	content := "proxya.i2p|443|https|1700000000\n" +
		"proxya.i2p|443|socks|1700000001\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	loaded, err := NewFileStore(path).Load()
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	require.Equal(t, model.KindEncrypted, loaded[0].Kind)
}
