package tracking

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"

	"github.com/coderena/validator/pkg/sqliteutil"
)

// History is an optional queryable mirror of TrackingInfo's score history,
// grounded on the teacher's pkg/tui/service/tuistate.Store: the
// authoritative record stays the JSON trackers_<id>.json Store writes
// (spec.md §6/§7 both name a JSON blob, not a database), but recording
// every score alongside its block number in SQLite lets `validator
// tracking inspect` answer "how has hotkey X trended over time" without
// re-parsing JSON by hand.
type History struct {
	db *sql.DB
}

// OpenHistory opens (creating if needed) the score-history database for
// one competition under dir.
func OpenHistory(dir string, competitionID int) (*History, error) {
	path := filepath.Join(dir, fmt.Sprintf("history_%d.db", competitionID))
	db, err := sqliteutil.OpenDB(path)
	if err != nil {
		return nil, fmt.Errorf("opening tracking history: %w", err)
	}

	h := &History{db: db}
	if err := h.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating tracking history: %w", err)
	}
	return h, nil
}

func (h *History) migrate() error {
	_, err := h.db.Exec(`
		CREATE TABLE IF NOT EXISTS score_history (
			hotkey    TEXT NOT NULL,
			uid       INTEGER NOT NULL,
			block     INTEGER NOT NULL,
			score     REAL NOT NULL,
			recorded_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_score_history_hotkey ON score_history(hotkey);
	`)
	return err
}

// Close closes the underlying database handle.
func (h *History) Close() error {
	return h.db.Close()
}

// Record appends one score-at-block observation for a tracker.
func (h *History) Record(ctx context.Context, t TrackingInfo, block int) error {
	_, err := h.db.ExecContext(ctx, `
		INSERT INTO score_history (hotkey, uid, block, score) VALUES (?, ?, ?, ?)
	`, t.Hotkey, t.UID, block, t.Score)
	if err != nil {
		return fmt.Errorf("recording score history for %s: %w", t.Hotkey, err)
	}
	return nil
}

// ScoreSample is one row of a hotkey's recorded score history.
type ScoreSample struct {
	Block int
	Score float64
}

// Recent returns the most recent limit score samples for hotkey, newest
// first.
func (h *History) Recent(ctx context.Context, hotkey string, limit int) ([]ScoreSample, error) {
	rows, err := h.db.QueryContext(ctx, `
		SELECT block, score FROM score_history
		WHERE hotkey = ?
		ORDER BY recorded_at DESC, rowid DESC
		LIMIT ?
	`, hotkey, limit)
	if err != nil {
		return nil, fmt.Errorf("querying score history for %s: %w", hotkey, err)
	}
	defer rows.Close()

	var out []ScoreSample
	for rows.Next() {
		var s ScoreSample
		if err := rows.Scan(&s.Block, &s.Score); err != nil {
			return nil, fmt.Errorf("scanning score history row: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Leaderboard returns, per hotkey, its most recent recorded score across
// all uids, ordered highest score first.
func (h *History) Leaderboard(ctx context.Context, limit int) ([]TrackingInfo, error) {
	rows, err := h.db.QueryContext(ctx, `
		SELECT hotkey, uid, MAX(recorded_at) AS latest, score
		FROM score_history
		GROUP BY hotkey
		ORDER BY score DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying leaderboard: %w", err)
	}
	defer rows.Close()

	var out []TrackingInfo
	for rows.Next() {
		var t TrackingInfo
		var latest string
		if err := rows.Scan(&t.Hotkey, &t.UID, &latest, &t.Score); err != nil {
			return nil, fmt.Errorf("scanning leaderboard row: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
