package task

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound 表示任务不存在。
var ErrNotFound = errors.New("task not found")

// Store 管理 tasks 表。
type Store struct {
	mu   sync.Mutex
	db   *sql.DB
	path string
}

func NewStore(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("task store path 不能为空")
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if err := ensureSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db, path: path}, nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func ensureSchema(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS tasks (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		status TEXT NOT NULL,
		payload_json TEXT NOT NULL DEFAULT '',
		result_json TEXT NOT NULL DEFAULT '',
		message TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		completed_at INTEGER
	);`)
	if err != nil {
		return err
	}
	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status, created_at);`)
	return err
}

// Create 插入一条 pending 任务。
func (s *Store) Create(ctx context.Context, t Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tasks (id, kind, status, payload_json, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		t.ID, t.Kind, StatusPending, t.PayloadJSON, now.Unix(), now.Unix())
	return err
}

// Get 返回指定任务。
func (s *Store) Get(ctx context.Context, id string) (Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row := s.db.QueryRowContext(ctx,
		`SELECT id, kind, status, payload_json, result_json, message, created_at, updated_at, completed_at
		 FROM tasks WHERE id = ?`, id)
	return scanTask(row)
}

// List 按时间倒序列出最近的任务。
func (s *Store) List(ctx context.Context, limit int) ([]Task, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, kind, status, payload_json, result_json, message, created_at, updated_at, completed_at
		 FROM tasks ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ListPendingIDs 按创建时间升序返回全部 pending 任务 id，用于重启后恢复执行。
func (s *Store) ListPendingIDs(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM tasks WHERE status = ? ORDER BY created_at ASC, id ASC`, StatusPending)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// MarkRunning 将任务置为 running。
func (s *Store) MarkRunning(ctx context.Context, id string) error {
	return s.updateStatus(ctx, id, StatusRunning, "", "", false)
}

// Complete 写入结果并置为 done。
func (s *Store) Complete(ctx context.Context, id, resultJSON string) error {
	return s.updateStatus(ctx, id, StatusDone, resultJSON, "", true)
}

// Fail 写入失败原因并置为 failed。
func (s *Store) Fail(ctx context.Context, id, message string) error {
	return s.updateStatus(ctx, id, StatusFailed, "", message, true)
}

func (s *Store) updateStatus(ctx context.Context, id, status, resultJSON, message string, terminal bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().Unix()
	var res sql.Result
	var err error
	if terminal {
		res, err = s.db.ExecContext(ctx,
			`UPDATE tasks SET status = ?, result_json = ?, message = ?, updated_at = ?, completed_at = ? WHERE id = ?`,
			status, resultJSON, message, now, now, id)
	} else {
		res, err = s.db.ExecContext(ctx,
			`UPDATE tasks SET status = ?, updated_at = ? WHERE id = ?`,
			status, now, id)
	}
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (Task, error) {
	var t Task
	var createdAt, updatedAt int64
	var completedAt sql.NullInt64
	err := row.Scan(&t.ID, &t.Kind, &t.Status, &t.PayloadJSON, &t.ResultJSON, &t.Message,
		&createdAt, &updatedAt, &completedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Task{}, ErrNotFound
		}
		return Task{}, err
	}
	t.CreatedAt = time.Unix(createdAt, 0)
	t.UpdatedAt = time.Unix(updatedAt, 0)
	if completedAt.Valid {
		done := time.Unix(completedAt.Int64, 0)
		t.CompletedAt = &done
	}
	return t, nil
}
