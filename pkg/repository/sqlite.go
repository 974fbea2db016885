package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/mnemo/pkg/model"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS sessions (
	session_id            TEXT PRIMARY KEY,
	start_time            INTEGER NOT NULL,
	end_time              INTEGER,
	num_turns             INTEGER NOT NULL DEFAULT 0,
	conversation_duration INTEGER NOT NULL DEFAULT 0,
	last_turn_at          INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS turns (
	session_id TEXT    NOT NULL,
	timestamp  INTEGER NOT NULL,
	user_text  TEXT    NOT NULL,
	bot_text   TEXT    NOT NULL,
	PRIMARY KEY (session_id, timestamp)
);

CREATE INDEX IF NOT EXISTS idx_sessions_start_time ON sessions (start_time);
`

// SQLite implements Repository on a single local database file
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens (and migrates) the database at path
func NewSQLite(ctx context.Context, path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open sqlite database", goerr.V("path", path))
	}
	// One connection serializes writers and keeps in-memory databases alive
	db.SetMaxOpenConns(1)

	for _, stmt := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		sqliteSchema,
	} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, goerr.Wrap(err, "failed to initialize sqlite database", goerr.V("path", path))
		}
	}

	return &SQLite{db: db}, nil
}

func (r *SQLite) Close() error {
	return r.db.Close()
}

func (r *SQLite) PutSession(ctx context.Context, session *model.Session) error {
	doc := newSessionDoc(session)
	_, err := r.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO sessions
			(session_id, start_time, end_time, num_turns, conversation_duration, last_turn_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		doc.SessionID, doc.StartTime, doc.EndTime, doc.NumTurns, doc.Duration, doc.LastTurnAt,
	)
	if err != nil {
		return goerr.Wrap(err, "failed to put session", goerr.V("session_id", session.ID))
	}
	return nil
}

const selectSession = `SELECT session_id, start_time, end_time, num_turns, conversation_duration, last_turn_at FROM sessions`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*model.Session, error) {
	var doc sessionDoc
	var endTime sql.NullInt64
	if err := row.Scan(&doc.SessionID, &doc.StartTime, &endTime, &doc.NumTurns, &doc.Duration, &doc.LastTurnAt); err != nil {
		return nil, err
	}
	if endTime.Valid {
		doc.EndTime = &endTime.Int64
	}
	return doc.toModel(), nil
}

func (r *SQLite) GetSession(ctx context.Context, id model.SessionID) (*model.Session, error) {
	session, err := scanSession(r.db.QueryRowContext(ctx, selectSession+` WHERE session_id = ?`, id.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, goerr.Wrap(model.ErrSessionNotFound, "session does not exist", goerr.V("session_id", id))
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get session", goerr.V("session_id", id))
	}
	return session, nil
}

func (r *SQLite) UpdateSession(ctx context.Context, id model.SessionID, update *model.SessionUpdate) error {
	var sets []string
	var args []any
	if update.EndTime != nil {
		sets = append(sets, "end_time = ?")
		args = append(args, toMillis(*update.EndTime))
	}
	if update.NumTurns != nil {
		sets = append(sets, "num_turns = ?")
		args = append(args, *update.NumTurns)
	}
	if update.Duration != nil {
		sets = append(sets, "conversation_duration = ?")
		args = append(args, update.Duration.Milliseconds())
	}
	if update.LastTurnAt != nil {
		sets = append(sets, "last_turn_at = ?")
		args = append(args, toMillis(*update.LastTurnAt))
	}
	if len(sets) == 0 {
		return nil
	}

	args = append(args, id.String())
	res, err := r.db.ExecContext(ctx, `UPDATE sessions SET `+strings.Join(sets, ", ")+` WHERE session_id = ?`, args...)
	if err != nil {
		return goerr.Wrap(err, "failed to update session", goerr.V("session_id", id))
	}

	n, err := res.RowsAffected()
	if err != nil {
		return goerr.Wrap(err, "failed to get affected rows", goerr.V("session_id", id))
	}
	if n == 0 {
		return goerr.Wrap(model.ErrSessionNotFound, "session does not exist", goerr.V("session_id", id))
	}
	return nil
}

func (r *SQLite) ListSessions(ctx context.Context, offset, limit int) ([]*model.Session, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := r.db.QueryContext(ctx, selectSession+` ORDER BY start_time DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list sessions")
	}
	defer rows.Close()

	var sessions []*model.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to scan session")
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, goerr.Wrap(err, "failed to iterate sessions")
	}
	return sessions, nil
}

func (r *SQLite) PutTurn(ctx context.Context, turn *model.Turn) error {
	ts := toMillis(turn.Timestamp)
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO turns (session_id, timestamp, user_text, bot_text) VALUES (?, ?, ?, ?)`,
		turn.SessionID.String(), ts, turn.UserText, turn.BotText,
	)
	if err != nil {
		return goerr.Wrap(err, "failed to put turn", goerr.V("session_id", turn.SessionID), goerr.V("timestamp", ts))
	}
	return nil
}

func (r *SQLite) ListTurns(ctx context.Context, id model.SessionID, order model.SortOrder) ([]*model.Turn, error) {
	query := `SELECT timestamp, user_text, bot_text FROM turns WHERE session_id = ? ORDER BY timestamp ASC`
	if order == model.Descending {
		query = `SELECT timestamp, user_text, bot_text FROM turns WHERE session_id = ? ORDER BY timestamp DESC`
	}

	rows, err := r.db.QueryContext(ctx, query, id.String())
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list turns", goerr.V("session_id", id))
	}
	defer rows.Close()

	var turns []*model.Turn
	for rows.Next() {
		var ts int64
		turn := &model.Turn{SessionID: id}
		if err := rows.Scan(&ts, &turn.UserText, &turn.BotText); err != nil {
			return nil, goerr.Wrap(err, "failed to scan turn", goerr.V("session_id", id))
		}
		turn.Timestamp = time.UnixMilli(ts)
		turns = append(turns, turn)
	}
	if err := rows.Err(); err != nil {
		return nil, goerr.Wrap(err, "failed to iterate turns", goerr.V("session_id", id))
	}
	return turns, nil
}
