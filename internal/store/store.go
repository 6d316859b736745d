package store

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"grid-hedge-bot-go/internal/logger"
)

// DefaultMaxFileSize is the rotation threshold for one table file.
const DefaultMaxFileSize = 5 * 1024 * 1024

// Store is an append-only, schema-aware event log. Each table is a set of
// JSONL files named by table and UTC date. A write that pushes the current
// file past the size threshold renames it to a finer date-time filename,
// starting a fresh file for the table/day. Files are never deleted and
// records are never mutated, so external readers may scan whole files
// concurrently with bounded staleness.
type Store struct {
	dir         string
	maxFileSize int64
	now         func() time.Time
}

// Option customizes a Store.
type Option func(*Store)

// WithMaxFileSize overrides the rotation threshold (used by tests).
func WithMaxFileSize(n int64) Option {
	return func(s *Store) { s.maxFileSize = n }
}

// WithClock overrides the wall clock (used by tests).
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates the store directory if needed and returns a Store.
func New(dir string, opts ...Option) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create store directory %s: %w", dir, err)
	}
	s := &Store{
		dir:         dir,
		maxFileSize: DefaultMaxFileSize,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Dir returns the store's data directory.
func (s *Store) Dir() string {
	return s.dir
}

// append marshals one record and writes it as a single line to the table's
// current file. The file is opened and closed per record so that each write
// reaches the filesystem immediately.
func (s *Store) append(table string, record interface{}) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal %s record: %w", table, err)
	}

	path := s.currentFilePath(table)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	if _, err := f.Write(append(data, '\n')); err != nil {
		f.Close()
		return fmt.Errorf("failed to append to %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", path, err)
	}

	if s.fileSize(path) > s.maxFileSize {
		s.rotate(table)
	}
	return nil
}

// AppendTrade appends one trade record.
func (s *Store) AppendTrade(r TradeRecord) error { return s.append(TableTrades, r) }

// AppendStats appends one PnL snapshot.
func (s *Store) AppendStats(r StatsRecord) error { return s.append(TableStats, r) }

// AppendRun appends one run-config record.
func (s *Store) AppendRun(r RunRecord) error { return s.append(TableRuns, r) }

// AppendShutdown appends one shutdown record.
func (s *Store) AppendShutdown(r ShutdownRecord) error { return s.append(TableShutdown, r) }

func (s *Store) currentFilePath(table string) string {
	date := s.now().UTC().Format("20060102")
	return filepath.Join(s.dir, fmt.Sprintf("%s_%s.jsonl", table, date))
}

func (s *Store) fileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}

// rotate renames the table's current day file to a date-time filename.
// Rotation never deletes records; subsequent reads still pick the renamed
// file up through the table prefix scan. The target name gets a counter
// suffix when a rotation already happened in the same second, so a rename
// can never overwrite an earlier rotated file.
func (s *Store) rotate(table string) {
	now := s.now().UTC()
	oldPath := filepath.Join(s.dir, fmt.Sprintf("%s_%s.jsonl", table, now.Format("20060102")))
	newPath := filepath.Join(s.dir, fmt.Sprintf("%s_%s.jsonl", table, now.Format("20060102_150405")))
	for i := 1; fileExists(newPath); i++ {
		newPath = filepath.Join(s.dir, fmt.Sprintf("%s_%s_%d.jsonl", table, now.Format("20060102_150405"), i))
	}

	if _, err := os.Stat(oldPath); err != nil {
		return
	}
	if err := os.Rename(oldPath, newPath); err != nil {
		logger.S().Errorf("Failed to rotate file %s: %v", oldPath, err)
		return
	}
	logger.S().Infof("Rotated file %s to %s", filepath.Base(oldPath), filepath.Base(newPath))
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// record is the constraint shared by all table record types.
type record interface {
	keys() (botName, botRun string)
	when() string
}

// readTable scans every file of the table, parses each line independently
// (corrupt or partially written lines are skipped and logged, not fatal),
// applies the optional bot_name/bot_run filter and returns the records
// sorted by timestamp ascending.
func readTable[T record](s *Store, table, botName, botRun string) ([]T, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list store directory: %w", err)
	}

	var records []T
	prefix := table + "_"
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, ".jsonl") {
			continue
		}
		path := filepath.Join(s.dir, name)
		f, err := os.Open(path)
		if err != nil {
			logger.S().Errorf("Failed to read file %s: %v", name, err)
			continue
		}
		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			var rec T
			if err := json.Unmarshal([]byte(line), &rec); err != nil {
				logger.S().Warnf("Skipping corrupt line in %s: %v", name, err)
				continue
			}
			recBot, recRun := rec.keys()
			if botName != "" && recBot != botName {
				continue
			}
			if botRun != "" && recRun != botRun {
				continue
			}
			records = append(records, rec)
		}
		if err := scanner.Err(); err != nil {
			logger.S().Warnf("Stopped reading %s: %v", name, err)
		}
		f.Close()
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].when() < records[j].when()
	})
	return records, nil
}

// ReadTrades returns trade records, optionally filtered by bot name/run
// (empty string matches everything), sorted by timestamp ascending.
func (s *Store) ReadTrades(botName, botRun string) ([]TradeRecord, error) {
	return readTable[TradeRecord](s, TableTrades, botName, botRun)
}

// ReadStats returns PnL snapshots, optionally filtered, sorted by timestamp.
func (s *Store) ReadStats(botName, botRun string) ([]StatsRecord, error) {
	return readTable[StatsRecord](s, TableStats, botName, botRun)
}

// ReadRuns returns run-config records, optionally filtered, sorted by timestamp.
func (s *Store) ReadRuns(botName, botRun string) ([]RunRecord, error) {
	return readTable[RunRecord](s, TableRuns, botName, botRun)
}

// ReadShutdowns returns shutdown records, optionally filtered, sorted by timestamp.
func (s *Store) ReadShutdowns(botName, botRun string) ([]ShutdownRecord, error) {
	return readTable[ShutdownRecord](s, TableShutdown, botName, botRun)
}
