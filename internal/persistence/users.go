package persistence

import (
	"context"
	"database/sql"
	"errors"
	"time"

	sq "github.com/Masterminds/squirrel"
)

// UserRecord is a stored account. Quota is in bytes, 0 means unlimited.
type UserRecord struct {
	UID         string
	DisplayName string
	Quota       int64
	CreatedAt   time.Time
}

func (s *SQLiteStore) CreateUser(ctx context.Context, user UserRecord) error {
	createdAt := user.CreatedAt.UTC()
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	query, args, err := s.builder.
		Insert("users").
		Columns("uid", "display_name", "quota", "created_at").
		Values(user.UID, user.DisplayName, user.Quota, createdAt).
		Suffix("ON CONFLICT(uid) DO UPDATE SET display_name=excluded.display_name, quota=excluded.quota").
		ToSql()
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, query, args...)
	return err
}

func (s *SQLiteStore) GetUser(ctx context.Context, uid string) (UserRecord, bool, error) {
	query, args, err := s.builder.
		Select("uid", "display_name", "quota", "created_at").
		From("users").
		Where(sq.Eq{"uid": uid}).
		ToSql()
	if err != nil {
		return UserRecord{}, false, err
	}

	var ret UserRecord
	row := s.db.QueryRowContext(ctx, query, args...)
	if err := row.Scan(&ret.UID, &ret.DisplayName, &ret.Quota, &ret.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return UserRecord{}, false, nil
		}
		return UserRecord{}, false, err
	}
	return ret, true, nil
}

func (s *SQLiteStore) UserExists(ctx context.Context, uid string) (bool, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE uid = ?`, uid).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

// ListUsers returns all accounts ordered by uid.
func (s *SQLiteStore) ListUsers(ctx context.Context) ([]UserRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT uid, display_name, quota, created_at FROM users ORDER BY uid ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ret := make([]UserRecord, 0)
	for rows.Next() {
		var item UserRecord
		if err := rows.Scan(&item.UID, &item.DisplayName, &item.Quota, &item.CreatedAt); err != nil {
			return nil, err
		}
		ret = append(ret, item)
	}
	return ret, rows.Err()
}

func (s *SQLiteStore) DeleteUser(ctx context.Context, uid string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM preferences WHERE userid = ?`, uid); err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM trash_items WHERE uid = ?`, uid); err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM users WHERE uid = ?`, uid); err != nil {
		return err
	}
	return tx.Commit()
}

// GetPreference reads one user preference. ok is false when it was never set.
func (s *SQLiteStore) GetPreference(ctx context.Context, uid, app, key string) (value string, ok bool, err error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT configvalue FROM preferences WHERE userid = ? AND appid = ? AND configkey = ?`,
		uid, app, key,
	)
	if err := row.Scan(&value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, err
	}
	return value, true, nil
}

func (s *SQLiteStore) SetPreference(ctx context.Context, uid, app, key, value string) error {
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO preferences (userid, appid, configkey, configvalue) VALUES (?, ?, ?, ?)
		 ON CONFLICT(userid, appid, configkey) DO UPDATE SET configvalue=excluded.configvalue`,
		uid, app, key, value,
	)
	return err
}

func (s *SQLiteStore) DeletePreference(ctx context.Context, uid, app, key string) error {
	_, err := s.db.ExecContext(
		ctx,
		`DELETE FROM preferences WHERE userid = ? AND appid = ? AND configkey = ?`,
		uid, app, key,
	)
	return err
}
