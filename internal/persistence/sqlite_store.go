package persistence

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	sq "github.com/Masterminds/squirrel"
	_ "modernc.org/sqlite"

	"github.com/MimeLyc/cloudmaint/internal/jobs"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// SQLiteStore keeps users, preferences, queued jobs and trash metadata in a
// single sqlite database.
type SQLiteStore struct {
	db      *sql.DB
	builder sq.StatementBuilderType
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("db path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{
		db:      db,
		builder: sq.StatementBuilder.PlaceholderFormat(sq.Question),
	}
	if err := store.init(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "PRAGMA journal_mode = WAL;"); err != nil {
		return fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "PRAGMA busy_timeout = 5000;"); err != nil {
		return fmt.Errorf("set busy timeout: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	entries, err := migrationFiles.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		version := migrationVersion(entry.Name())
		if version <= 0 {
			continue
		}
		applied, err := s.migrationApplied(ctx, version)
		if err != nil {
			return fmt.Errorf("check migration %s: %w", entry.Name(), err)
		}
		if applied {
			continue
		}
		content, err := migrationFiles.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}
		if _, err := s.db.ExecContext(ctx, string(content)); err != nil {
			return fmt.Errorf("apply migration %s: %w", entry.Name(), err)
		}
		if _, err := s.db.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES (?)`, version); err != nil {
			return fmt.Errorf("record migration %s: %w", entry.Name(), err)
		}
	}
	return nil
}

func (s *SQLiteStore) migrationApplied(ctx context.Context, version int) (bool, error) {
	query, args, err := s.builder.
		Select("COUNT(*)").
		From("schema_migrations").
		Where(sq.Eq{"version": version}).
		ToSql()
	if err != nil {
		return false, err
	}
	var count int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

// migrationVersion extracts the leading integer of a migration filename, 0 if there is none.
func migrationVersion(name string) int {
	for i, c := range name {
		if c < '0' || c > '9' {
			if i == 0 {
				return 0
			}
			n, _ := strconv.Atoi(name[:i])
			return n
		}
	}
	n, _ := strconv.Atoi(name)
	return n
}

func (s *SQLiteStore) LoadJobs(ctx context.Context) ([]*jobs.Job, error) {
	query, args, err := s.builder.
		Select("id", "class", "argument_json", "dedupe_key", "status", "error", "created_at", "updated_at").
		From("jobs").
		OrderBy("created_at ASC").
		ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}
	defer rows.Close()

	var loaded []*jobs.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		loaded = append(loaded, job)
	}
	return loaded, rows.Err()
}

func scanJob(rows *sql.Rows) (*jobs.Job, error) {
	var (
		job      jobs.Job
		status   string
		argument string
	)
	if err := rows.Scan(&job.ID, &job.Class, &argument, &job.DedupeKey, &status, &job.Error, &job.CreatedAt, &job.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(argument), &job.Argument); err != nil {
		return nil, fmt.Errorf("decode argument of job %s: %w", job.ID, err)
	}
	job.Status = jobs.Status(status)
	return &job, nil
}

func (s *SQLiteStore) DeleteJob(ctx context.Context, jobID string) error {
	query, args, err := s.builder.Delete("jobs").Where(sq.Eq{"id": jobID}).ToSql()
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, query, args...)
	return err
}

// UpsertJob keeps created_at of an existing row and refreshes everything else.
func (s *SQLiteStore) UpsertJob(ctx context.Context, job *jobs.Job) error {
	if job == nil {
		return fmt.Errorf("job is nil")
	}
	argument := job.Argument
	if argument == nil {
		argument = map[string]string{}
	}
	encoded, err := json.Marshal(argument)
	if err != nil {
		return fmt.Errorf("encode argument of job %s: %w", job.ID, err)
	}
	query, args, err := s.builder.
		Insert("jobs").
		Columns("id", "class", "argument_json", "dedupe_key", "status", "error", "created_at", "updated_at").
		Values(job.ID, job.Class, string(encoded), job.DedupeKey, string(job.Status), job.Error, job.CreatedAt, job.UpdatedAt).
		Suffix(`ON CONFLICT(id) DO UPDATE SET
			class = excluded.class,
			argument_json = excluded.argument_json,
			dedupe_key = excluded.dedupe_key,
			status = excluded.status,
			error = excluded.error,
			updated_at = excluded.updated_at`).
		ToSql()
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, query, args...)
	return err
}
