package persistence

import (
	"context"
	"database/sql"
	"errors"
)

func (s *SQLiteStore) GetAppValue(ctx context.Context, app, key string) (value string, ok bool, err error) {
	row := s.db.QueryRowContext(ctx, `SELECT configvalue FROM appconfig WHERE appid = ? AND configkey = ?`, app, key)
	if err := row.Scan(&value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, err
	}
	return value, true, nil
}

func (s *SQLiteStore) SetAppValue(ctx context.Context, app, key, value string) error {
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO appconfig (appid, configkey, configvalue) VALUES (?, ?, ?)
		 ON CONFLICT(appid, configkey) DO UPDATE SET configvalue=excluded.configvalue`,
		app, key, value,
	)
	return err
}
