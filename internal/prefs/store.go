package prefs

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"io/fs"
	"time"

	jsoniter "github.com/json-iterator/go"
	_ "modernc.org/sqlite"

	"github.com/keithlinneman/sitecontent-web/internal/xerrors"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var ErrUserNotFound = errors.New("prefs: user not found")

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store keeps users and their preferences in sqlite.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and applies the
// embedded migrations in name order.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, xerrors.Wrap(err, "open sqlite")
	}
	// sqlite allows one writer; a single connection avoids SQLITE_BUSY
	db.SetMaxOpenConns(1)

	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	return fs.WalkDir(migrationsFS, "migrations", func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		stmt, err := migrationsFS.ReadFile(p)
		if err != nil {
			return xerrors.Wrapf(err, "read %s", p)
		}
		if _, err := db.ExecContext(ctx, string(stmt)); err != nil {
			return xerrors.Wrapf(err, "apply %s", p)
		}
		return nil
	})
}

func (s *Store) Close() error { return s.db.Close() }

// Ping is the readiness check.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	return s.db.PingContext(ctx)
}

func (s *Store) CreateUser(ctx context.Context, email string, canApprove bool) (*User, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO users (email, can_approve) VALUES (?, ?)`, email, canApprove)
	if err != nil {
		return nil, xerrors.Wrapf(err, "create user %s", email)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, xerrors.Wrap(err, "create user id")
	}
	return &User{ID: id, Email: email, CanApprove: canApprove}, nil
}

func (s *Store) User(ctx context.Context, id int64) (*User, error) {
	u := &User{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, email, can_approve FROM users WHERE id = ?`, id).Scan(&u.ID, &u.Email, &u.CanApprove)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, xerrors.Wrapf(err, "load user %d", id)
	}
	return u, nil
}

// Preferences returns the stored row or Defaults when the user has never
// saved. Unknown users are ErrUserNotFound.
func (s *Store) Preferences(ctx context.Context, userID int64) (*Preferences, error) {
	if _, err := s.User(ctx, userID); err != nil {
		return nil, err
	}
	var own, posted, moderation string
	err := s.db.QueryRowContext(ctx, `
		SELECT own_news_approved, others_news_posted, others_news_needs_moderation
		FROM preferences WHERE user_id = ?`, userID).Scan(&own, &posted, &moderation)
	if errors.Is(err, sql.ErrNoRows) {
		return Defaults(userID), nil
	}
	if err != nil {
		return nil, xerrors.Wrapf(err, "load preferences %d", userID)
	}

	p := &Preferences{UserID: userID}
	for _, col := range []struct {
		raw string
		dst *[]string
	}{{own, &p.OwnNewsApproved}, {posted, &p.OthersNewsPosted}, {moderation, &p.OthersNewsNeedsModeration}} {
		if err := json.Unmarshal([]byte(col.raw), col.dst); err != nil {
			return nil, xerrors.Wrapf(err, "decode preferences %d", userID)
		}
	}
	return p, nil
}

// SavePreferences upserts p.
func (s *Store) SavePreferences(ctx context.Context, p *Preferences) error {
	cols := make([]string, 0, 3)
	for _, v := range [][]string{p.OwnNewsApproved, p.OthersNewsPosted, p.OthersNewsNeedsModeration} {
		if v == nil {
			v = []string{}
		}
		b, err := json.Marshal(v)
		if err != nil {
			return xerrors.Wrap(err, "encode preferences")
		}
		cols = append(cols, string(b))
	}

	return withTx(ctx, s.db, func(tx *sql.Tx) error {
		var exists int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE id = ?`, p.UserID).Scan(&exists); err != nil {
			return err
		}
		if exists == 0 {
			return ErrUserNotFound
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO preferences (user_id, own_news_approved, others_news_posted, others_news_needs_moderation, updated_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(user_id) DO UPDATE SET
				own_news_approved = excluded.own_news_approved,
				others_news_posted = excluded.others_news_posted,
				others_news_needs_moderation = excluded.others_news_needs_moderation,
				updated_at = excluded.updated_at`,
			p.UserID, cols[0], cols[1], cols[2], time.Now().UTC().Format(time.RFC3339))
		return err
	})
}

func withTx(ctx context.Context, db *sql.DB, fn func(*sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return xerrors.Wrap(err, "begin")
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return err
		}
		return xerrors.Wrap(err, "save preferences")
	}
	return xerrors.Wrap(tx.Commit(), "commit")
}
