package history

import (
	"context"
	"database/sql"
	"time"

	_ "modernc.org/sqlite"

	"github.com/petrijr/settle/pkg/api"
)

// SQLiteStore stores run events in SQLite.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// OpenSQLite opens (creating if needed) the database at path using the
// pure-Go modernc driver and prepares the schema.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite allows one writer; concurrent item events would otherwise
	// race for the lock.
	db.SetMaxOpenConns(1)

	s, err := NewSQLiteStore(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLiteStore initializes the schema in db and returns a store using it.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS settle_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			at INTEGER NOT NULL,
			type TEXT NOT NULL,
			item_index INTEGER NOT NULL DEFAULT -1,
			attempt INTEGER NOT NULL DEFAULT 0,
			detail TEXT NOT NULL DEFAULT ''
		);
		CREATE INDEX IF NOT EXISTS idx_settle_events_run_id ON settle_events(run_id, id);
	`)
	return err
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) AppendEvent(ctx context.Context, ev api.RunEvent) error {
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settle_events (run_id, at, type, item_index, attempt, detail)
		VALUES (?, ?, ?, ?, ?, ?)`,
		ev.RunID,
		at.UnixNano(),
		string(ev.Type),
		ev.Index,
		ev.Attempt,
		ev.Detail,
	)
	return err
}

func (s *SQLiteStore) ListEvents(ctx context.Context, runID string) ([]api.RunEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, at, type, item_index, attempt, detail
		FROM settle_events
		WHERE run_id = ?
		ORDER BY id ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []api.RunEvent
	for rows.Next() {
		var (
			id      string
			atN     int64
			typ     string
			index   int
			attempt int
			detail  string
		)
		if err := rows.Scan(&id, &atN, &typ, &index, &attempt, &detail); err != nil {
			return nil, err
		}
		out = append(out, api.RunEvent{
			RunID:   id,
			At:      time.Unix(0, atN),
			Type:    api.RunEventType(typ),
			Index:   index,
			Attempt: attempt,
			Detail:  detail,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, ErrRunNotFound
	}
	return out, nil
}
