package storage

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"i2prelay/internal/shared/logger"
	"i2prelay/outproxy/model"
)

const (
	delimiter = "|"
	numFields = 4 // Host|Port|Kind|LastSeen
)

// Store defines persistence for discovered outproxy records, so the daemon
// has candidates available before the first directory fetch completes.
type Store interface {
	Load() ([]model.Record, error)
	Save(records []model.Record) error
}

// FileStore implements Store using a pipe-delimited plain text file.
type FileStore struct {
	filePath string
	mu       sync.RWMutex
}

// NewFileStore creates a new FileStore instance.
func NewFileStore(filePath string) *FileStore {
	return &FileStore{filePath: filePath}
}

// Load reads records from the file, preserving line order. A missing file is
// not an error; it yields an empty list.
func (fs *FileStore) Load() ([]model.Record, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	l := logger.WithComponent("Outproxy/Storage")

	file, err := os.Open(fs.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			l.Info().Str("path", fs.filePath).Msg("Record file not found, starting with an empty list.")
			return []model.Record{}, nil
		}
		return nil, err
	}
	defer file.Close()

	records := make([]model.Record, 0)
	seen := make(map[string]struct{})
	scanner := bufio.NewScanner(file)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Text()
		if line == "" {
			continue
		}

		fields := strings.Split(line, delimiter)
		if len(fields) != numFields {
			l.Warn().Int("line", lineNum).Int("expected", numFields).Int("got", len(fields)).Msg("Skipping malformed line in record file.")
			continue
		}

		rec, err := parseRecord(fields)
		if err != nil {
			l.Warn().Int("line", lineNum).Err(err).Msg("Failed to parse record from line, skipping.")
			continue
		}
		if _, dup := seen[rec.Key()]; dup {
			continue
		}
		seen[rec.Key()] = struct{}{}
		records = append(records, rec)
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	l.Info().Int("count", len(records)).Msg("Loaded records from file.")
	return records, nil
}

// Save persists the records, one line each, in their current order.
func (fs *FileStore) Save(records []model.Record) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	l := logger.WithComponent("Outproxy/Storage")

	var sb strings.Builder
	now := time.Now().Unix()
	for _, rec := range records {
		sb.WriteString(formatRecord(rec, now))
		sb.WriteString("\n")
	}

	if err := os.WriteFile(fs.filePath, []byte(sb.String()), 0644); err != nil {
		return err
	}

	l.Info().Int("count", len(records)).Msg("Saved records to file.")
	return nil
}

func formatRecord(rec model.Record, lastSeen int64) string {
	return strings.Join([]string{
		rec.Host,
		strconv.Itoa(int(rec.Port)),
		rec.Kind.String(),
		strconv.FormatInt(lastSeen, 10),
	}, delimiter)
}

func parseRecord(fields []string) (model.Record, error) {
	port, err := strconv.ParseUint(fields[1], 10, 16)
	if err != nil {
		return model.Record{}, fmt.Errorf("invalid port: %w", err)
	}

	rec, ok := model.NewRecord(fields[0], uint16(port), fields[2])
	if !ok {
		return model.Record{}, fmt.Errorf("unknown kind %q", fields[2])
	}

	if _, err := strconv.ParseInt(fields[3], 10, 64); err != nil {
		return model.Record{}, fmt.Errorf("invalid last_seen: %w", err)
	}

	return rec, nil
}
