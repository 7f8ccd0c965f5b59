package persistence

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/MimeLyc/cloudmaint/internal/trashbin"
)

func (s *SQLiteStore) AddTrashItem(ctx context.Context, item trashbin.Item) (trashbin.Item, error) {
	query, args, err := s.builder.
		Insert("trash_items").
		Columns("uid", "name", "location", "deleted_at", "size").
		Values(item.User, item.Name, item.Location, item.DeletedAt.Unix(), item.Size).
		ToSql()
	if err != nil {
		return trashbin.Item{}, err
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return trashbin.Item{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return trashbin.Item{}, err
	}
	item.ID = id
	item.DeletedAt = time.Unix(item.DeletedAt.Unix(), 0).UTC()
	return item, nil
}

// ListTrashItems returns the user's trash items, oldest first.
func (s *SQLiteStore) ListTrashItems(ctx context.Context, user string) ([]trashbin.Item, error) {
	query, args, err := s.builder.
		Select("id", "uid", "name", "location", "deleted_at", "size").
		From("trash_items").
		Where(sq.Eq{"uid": user}).
		OrderBy("deleted_at ASC", "id ASC").
		ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ret := make([]trashbin.Item, 0)
	for rows.Next() {
		var item trashbin.Item
		var deletedAt int64
		if err := rows.Scan(&item.ID, &item.User, &item.Name, &item.Location, &deletedAt, &item.Size); err != nil {
			return nil, err
		}
		item.DeletedAt = time.Unix(deletedAt, 0).UTC()
		ret = append(ret, item)
	}
	return ret, rows.Err()
}

func (s *SQLiteStore) DeleteTrashItem(ctx context.Context, user string, id int64) error {
	query, args, err := s.builder.
		Delete("trash_items").
		Where(sq.And{sq.Eq{"uid": user}, sq.Eq{"id": id}}).
		ToSql()
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, query, args...)
	return err
}

// TrashUsers lists the users that have at least one trash item.
func (s *SQLiteStore) TrashUsers(ctx context.Context) ([]string, error) {
	query, args, err := s.builder.
		Select("DISTINCT uid").
		From("trash_items").
		OrderBy("uid ASC").
		ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ret := make([]string, 0)
	for rows.Next() {
		var uid string
		if err := rows.Scan(&uid); err != nil {
			return nil, err
		}
		ret = append(ret, uid)
	}
	return ret, rows.Err()
}
