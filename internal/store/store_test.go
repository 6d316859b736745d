package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	s, err := New(t.TempDir(), opts...)
	require.NoError(t, err)
	return s
}

func TestRecordDefaults(t *testing.T) {
	ts := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	r := NewTradeRecord(ts, "BUY", 100.0, 0, "", "", "")
	assert.Equal(t, "unknown", r.BotName)
	assert.Equal(t, "unknown", r.Mode)
	assert.Equal(t, "unknown", r.BotRun)
	assert.Zero(t, r.Quantity)
	assert.Equal(t, "2025-03-01T12:00:00.000000Z", r.Timestamp)
}

func TestTimestampLayoutSortsLexicographically(t *testing.T) {
	early := time.Date(2025, 3, 1, 12, 0, 0, 5000, time.UTC)
	late := time.Date(2025, 3, 1, 12, 0, 1, 0, time.UTC)

	a := NewTradeRecord(early, "BUY", 1, 1, "b", "test", "r")
	b := NewTradeRecord(late, "BUY", 1, 1, "b", "test", "r")
	assert.Less(t, a.Timestamp, b.Timestamp)
}

func TestAppendAndReadBack(t *testing.T) {
	s := newTestStore(t)
	ts := time.Now().UTC()

	require.NoError(t, s.AppendTrade(NewTradeRecord(ts, "BUY", 100, 0.5, "bot", "test", "run1")))
	require.NoError(t, s.AppendTrade(NewTradeRecord(ts.Add(time.Second), "SELL", 101, 0.5, "bot", "test", "run1")))

	trades, err := s.ReadTrades("bot", "run1")
	require.NoError(t, err)
	require.Len(t, trades, 2)
	assert.Equal(t, "BUY", trades[0].Side)
	assert.Equal(t, "SELL", trades[1].Side)
}

func TestReadFiltersByBotNameAndRun(t *testing.T) {
	s := newTestStore(t)
	ts := time.Now().UTC()

	require.NoError(t, s.AppendTrade(NewTradeRecord(ts, "BUY", 100, 1, "bot_a", "test", "run1")))
	require.NoError(t, s.AppendTrade(NewTradeRecord(ts, "BUY", 100, 1, "bot_a", "test", "run2")))
	require.NoError(t, s.AppendTrade(NewTradeRecord(ts, "BUY", 100, 1, "bot_b", "test", "run1")))

	all, err := s.ReadTrades("", "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	botA, err := s.ReadTrades("bot_a", "")
	require.NoError(t, err)
	assert.Len(t, botA, 2)

	one, err := s.ReadTrades("bot_a", "run1")
	require.NoError(t, err)
	assert.Len(t, one, 1)
}

func TestReadSortsByTimestampAcrossFiles(t *testing.T) {
	// A tiny threshold forces a rotation between the two writes, so the
	// records end up in different files. The ticking clock keeps the
	// two rotation filenames distinct.
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	tick := base
	s := newTestStore(t, WithMaxFileSize(10), WithClock(func() time.Time {
		tick = tick.Add(time.Second)
		return tick
	}))

	require.NoError(t, s.AppendTrade(NewTradeRecord(base.Add(time.Second), "SELL", 2, 1, "bot", "test", "run")))
	require.NoError(t, s.AppendTrade(NewTradeRecord(base, "BUY", 1, 1, "bot", "test", "run")))

	trades, err := s.ReadTrades("bot", "run")
	require.NoError(t, err)
	require.Len(t, trades, 2)
	assert.Equal(t, "BUY", trades[0].Side)
	assert.Equal(t, "SELL", trades[1].Side)
}

func TestRotationRenamesExactlyOnce(t *testing.T) {
	fixed := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	s := newTestStore(t,
		WithMaxFileSize(200),
		WithClock(func() time.Time { return fixed }))

	ts := fixed
	for i := 0; i < 3; i++ {
		require.NoError(t, s.AppendTrade(NewTradeRecord(ts, "BUY", 100, 1, "bot", "test", "run")))
		ts = ts.Add(time.Second)
	}

	entries, err := os.ReadDir(s.Dir())
	require.NoError(t, err)

	var rotated, current int
	for _, e := range entries {
		switch e.Name() {
		case "trades_20250301.jsonl":
			current++
		case "trades_20250301_120000.jsonl":
			rotated++
		default:
			t.Fatalf("unexpected file %s", e.Name())
		}
	}
	assert.Equal(t, 1, rotated, "rotation must rename exactly once")
	assert.LessOrEqual(t, current, 1)

	// All records survive the rotation and come back in order.
	trades, err := s.ReadTrades("bot", "run")
	require.NoError(t, err)
	assert.Len(t, trades, 3)
	for i := 1; i < len(trades); i++ {
		assert.LessOrEqual(t, trades[i-1].Timestamp, trades[i].Timestamp)
	}
}

func TestMultipleRotationsInOneSecondKeepAllRecords(t *testing.T) {
	// A frozen clock makes every rotation in this test compute the same
	// date-time filename; each rename must still land on a distinct
	// file so no rotated records are lost.
	fixed := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	s := newTestStore(t,
		WithMaxFileSize(150),
		WithClock(func() time.Time { return fixed }))

	ts := fixed
	for i := 0; i < 6; i++ {
		require.NoError(t, s.AppendTrade(NewTradeRecord(ts, "BUY", 100, 1, "bot", "test", "run")))
		ts = ts.Add(time.Second)
	}

	trades, err := s.ReadTrades("bot", "run")
	require.NoError(t, err)
	assert.Len(t, trades, 6, "rotation must never destroy records")

	entries, err := os.ReadDir(s.Dir())
	require.NoError(t, err)
	seen := map[string]bool{}
	rotated := 0
	for _, e := range entries {
		require.False(t, seen[e.Name()])
		seen[e.Name()] = true
		if e.Name() != "trades_20250301.jsonl" {
			rotated++
		}
	}
	assert.GreaterOrEqual(t, rotated, 2, "same-second rotations get distinct names")
}

func TestCorruptLinesAreSkipped(t *testing.T) {
	s := newTestStore(t)
	ts := time.Now().UTC()

	require.NoError(t, s.AppendTrade(NewTradeRecord(ts, "BUY", 100, 1, "bot", "test", "run")))

	// Simulate a partially written trailing line.
	path := filepath.Join(s.Dir(), "trades_"+ts.Format("20060102")+".jsonl")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(`{"timestamp": "2025-`)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	require.NoError(t, s.AppendTrade(NewTradeRecord(ts.Add(time.Second), "SELL", 101, 1, "bot", "test", "run")))

	trades, err := s.ReadTrades("bot", "run")
	require.NoError(t, err)
	assert.Len(t, trades, 2)
}

func TestStatsAndShutdownRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ts := time.Now().UTC()

	require.NoError(t, s.AppendStats(NewStatsRecord(ts, 1.5, 2.5, -0.5, 0.25, 3, 2, "bot", "test", "run")))
	require.NoError(t, s.AppendShutdown(NewShutdownRecord(ts, 3.75, 3, 2, 1.5, "bot", "test", "run")))

	stats, err := s.ReadStats("bot", "run")
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, 1.5, stats[0].SpotRealizedPnl)
	assert.Equal(t, 2.5, stats[0].SpotUnrealizedPnl)

	downs, err := s.ReadShutdowns("bot", "run")
	require.NoError(t, err)
	require.Len(t, downs, 1)
	assert.Equal(t, 3.75, downs[0].FinalPnl)
	assert.Equal(t, 5, downs[0].TotalTrades)
}
