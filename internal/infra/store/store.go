// Package store persists the player session in SQLite.
package store

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/osa030/tapedeck/internal/app/mode"
	"github.com/osa030/tapedeck/internal/app/player"
	"github.com/osa030/tapedeck/internal/domain/track"
)

const schema = `
	CREATE TABLE IF NOT EXISTS session_state (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		current_index INTEGER NOT NULL DEFAULT -1,
		repeat_mode INTEGER NOT NULL DEFAULT 0,
		shuffle INTEGER NOT NULL DEFAULT 0,
		position_ms INTEGER NOT NULL DEFAULT 0,
		saved_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS session_tracks (
		position INTEGER PRIMARY KEY,
		instance_id TEXT NOT NULL,
		track_id TEXT NOT NULL,
		title TEXT,
		artist TEXT,
		album TEXT,
		artwork_url TEXT,
		duration_ms INTEGER NOT NULL DEFAULT 0
	);
`

// Store is a SQLite-backed session store.
type Store struct {
	db *sql.DB
}

var _ player.Saver = (*Store)(nil)

// Open opens (and creates if needed) the database at path. ":memory:" is
// accepted for tests.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, errors.Wrap(err, "failed to create store directory")
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA busy_timeout = 10000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA journal_mode = WAL",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, errors.Wrapf(err, "failed to set pragma %q", pragma)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to create schema")
	}

	zlog.Debug().Msgf("store: opened %s", path)
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveSession replaces the saved session.
func (s *Store) SaveSession(ctx context.Context, sess player.Session) error {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM session_tracks`); err != nil {
			return err
		}

		_, err := tx.ExecContext(ctx, `
			INSERT INTO session_state (id, current_index, repeat_mode, shuffle, position_ms, saved_at)
			VALUES (1, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				current_index = excluded.current_index,
				repeat_mode = excluded.repeat_mode,
				shuffle = excluded.shuffle,
				position_ms = excluded.position_ms,
				saved_at = excluded.saved_at
		`, sess.Index, int(sess.Mode.Repeat), sess.Mode.Shuffle, sess.PositionMs, sess.SavedAt.UnixMilli())
		if err != nil {
			return err
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO session_tracks (position, instance_id, track_id, title, artist, album, artwork_url, duration_ms)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for i, e := range sess.Items {
			r := e.Ref
			if _, err := stmt.ExecContext(ctx, i, e.InstanceID, r.ID, r.Title, r.Artist, r.Album, r.ArtworkURL, r.DurationMs); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "failed to save session")
	}
	return nil
}

// LoadSession returns the saved session, or false if there is none.
func (s *Store) LoadSession(ctx context.Context) (player.Session, bool, error) {
	var (
		sess    player.Session
		repeat  int
		savedAt int64
	)
	row := s.db.QueryRowContext(ctx,
		`SELECT current_index, repeat_mode, shuffle, position_ms, saved_at FROM session_state WHERE id = 1`)
	err := row.Scan(&sess.Index, &repeat, &sess.Mode.Shuffle, &sess.PositionMs, &savedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return player.Session{}, false, nil
	}
	if err != nil {
		return player.Session{}, false, errors.Wrap(err, "failed to load session state")
	}
	sess.Mode.Repeat = mode.Repeat(repeat)
	sess.SavedAt = time.UnixMilli(savedAt)

	rows, err := s.db.QueryContext(ctx, `
		SELECT instance_id, track_id, title, artist, album, artwork_url, duration_ms
		FROM session_tracks
		ORDER BY position
	`)
	if err != nil {
		return player.Session{}, false, errors.Wrap(err, "failed to load session tracks")
	}
	defer rows.Close()

	for rows.Next() {
		var (
			e                            track.Entry
			title, artist, album, artURL sql.NullString
		)
		if err := rows.Scan(&e.InstanceID, &e.Ref.ID, &title, &artist, &album, &artURL, &e.Ref.DurationMs); err != nil {
			return player.Session{}, false, errors.Wrap(err, "failed to scan session track")
		}
		e.Ref.Title = title.String
		e.Ref.Artist = artist.String
		e.Ref.Album = album.String
		e.Ref.ArtworkURL = artURL.String
		sess.Items = append(sess.Items, e)
	}
	if err := rows.Err(); err != nil {
		return player.Session{}, false, errors.Wrap(err, "failed to read session tracks")
	}
	return sess, true, nil
}

func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}
