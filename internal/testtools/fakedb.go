package testtools

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/evoronina/konspekt/internal/tasks"
)

// FakeDB is an in-memory stand-in for the task table. It understands
// exactly the statements the task store issues and nothing else; staged
// writes only become visible on Commit.
type FakeDB struct {
	mu   sync.Mutex
	rows map[uuid.UUID]tasks.Task

	// BeginErr, when set, fails every new transaction.
	BeginErr error
}

func NewFakeDB() *FakeDB {
	return &FakeDB{rows: map[uuid.UUID]tasks.Task{}}
}

// SeedTask stores a row directly, bypassing the statement surface.
func (db *FakeDB) SeedTask(task tasks.Task) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.rows[task.TaskID] = task
}

// Len reports the number of committed rows.
func (db *FakeDB) Len() int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return len(db.rows)
}

// TaskRow returns the current row and whether it exists.
func (db *FakeDB) TaskRow(taskID uuid.UUID) (tasks.Task, bool) {
	db.mu.Lock()
	defer db.mu.Unlock()
	task, ok := db.rows[taskID]
	return task, ok
}

func (db *FakeDB) Begin(ctx context.Context) (pgx.Tx, error) {
	if db.BeginErr != nil {
		return nil, db.BeginErr
	}
	return &fakeTx{db: db}, nil
}

func (db *FakeDB) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	switch {
	case strings.Contains(sql, "ORDER BY created_at DESC"):
		limit := int(toInt64(args[0]))
		db.mu.Lock()
		list := make([]tasks.Task, 0, len(db.rows))
		for _, t := range db.rows {
			list = append(list, t)
		}
		db.mu.Unlock()
		sort.Slice(list, func(i, j int) bool {
			return list[i].CreatedAt.After(list[j].CreatedAt)
		})
		if len(list) > limit {
			list = list[:limit]
		}
		return &fakeRows{tasks: list}, nil
	default:
		return nil, fmt.Errorf("fake db: unsupported query: %s", sql)
	}
}

func (db *FakeDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return db.queryRow(sql, args...)
}

func (db *FakeDB) queryRow(sql string, args ...any) pgx.Row {
	switch {
	case strings.Contains(sql, "SELECT status FROM tasks"):
		db.mu.Lock()
		task, ok := db.rows[args[0].(uuid.UUID)]
		db.mu.Unlock()
		if !ok {
			return fakeRow{err: pgx.ErrNoRows}
		}
		return fakeRow{vals: []any{task.Status.String()}}

	case strings.Contains(sql, "WHERE task_id"):
		db.mu.Lock()
		task, ok := db.rows[args[0].(uuid.UUID)]
		db.mu.Unlock()
		if !ok {
			return fakeRow{err: pgx.ErrNoRows}
		}
		return fakeRow{vals: []any{
			task.TaskID, task.CreatedAt, task.LectureTitle,
			task.VideoURL, task.Status.String(), task.Description,
		}}

	default:
		return fakeRow{err: fmt.Errorf("fake db: unsupported query: %s", sql)}
	}
}

// fakeTx stages writes and applies them on Commit. The embedded interface
// panics on anything the task store never calls.
type fakeTx struct {
	pgx.Tx
	db      *FakeDB
	pending []func()
	done    bool
}

func (tx *fakeTx) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	switch {
	case strings.Contains(sql, "INSERT INTO tasks"):
		taskID := args[0].(uuid.UUID)
		tx.db.mu.Lock()
		_, exists := tx.db.rows[taskID]
		tx.db.mu.Unlock()
		if exists {
			return pgconn.CommandTag{}, &pgconn.PgError{
				Code:     pgerrcode.UniqueViolation,
				Message:  "duplicate key value violates unique constraint",
				Severity: "ERROR",
			}
		}
		status, err := tasks.ParseStatus(args[4].(string))
		if err != nil {
			return pgconn.CommandTag{}, err
		}
		row := tasks.Task{
			TaskID:       taskID,
			CreatedAt:    args[1].(time.Time),
			LectureTitle: args[2].(string),
			VideoURL:     args[3].(string),
			Status:       status,
		}
		tx.pending = append(tx.pending, func() {
			tx.db.rows[taskID] = row
		})
		return pgconn.NewCommandTag("INSERT 0 1"), nil

	case strings.Contains(sql, "UPDATE tasks SET status"):
		taskID := args[0].(uuid.UUID)
		status, err := tasks.ParseStatus(args[1].(string))
		if err != nil {
			return pgconn.CommandTag{}, err
		}
		desc, _ := args[2].(*string)
		tx.pending = append(tx.pending, func() {
			row := tx.db.rows[taskID]
			row.Status = status
			row.Description = desc
			tx.db.rows[taskID] = row
		})
		return pgconn.NewCommandTag("UPDATE 1"), nil

	default:
		return pgconn.CommandTag{}, fmt.Errorf("fake db: unsupported exec: %s", sql)
	}
}

func (tx *fakeTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return tx.db.queryRow(sql, args...)
}

func (tx *fakeTx) Commit(ctx context.Context) error {
	if tx.done {
		return pgx.ErrTxClosed
	}
	tx.done = true
	tx.db.mu.Lock()
	defer tx.db.mu.Unlock()
	for _, apply := range tx.pending {
		apply()
	}
	return nil
}

func (tx *fakeTx) Rollback(ctx context.Context) error {
	tx.pending = nil
	tx.done = true
	return nil
}

type fakeRow struct {
	vals []any
	err  error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	return scanInto(r.vals, dest)
}

type fakeRows struct {
	pgx.Rows
	tasks []tasks.Task
	idx   int
}

func (r *fakeRows) Next() bool {
	if r.idx >= len(r.tasks) {
		return false
	}
	r.idx++
	return true
}

func (r *fakeRows) Scan(dest ...any) error {
	task := r.tasks[r.idx-1]
	return scanInto([]any{
		task.TaskID, task.CreatedAt, task.LectureTitle,
		task.VideoURL, task.Status.String(), task.Description,
	}, dest)
}

func (r *fakeRows) Err() error { return nil }
func (r *fakeRows) Close()     {}

func scanInto(vals, dest []any) error {
	if len(vals) != len(dest) {
		return fmt.Errorf("fake db: scan expects %d destinations, got %d", len(vals), len(dest))
	}
	for i, v := range vals {
		switch d := dest[i].(type) {
		case *uuid.UUID:
			d2, ok := v.(uuid.UUID)
			if !ok {
				return fmt.Errorf("fake db: column %d is not a uuid", i)
			}
			*d = d2
		case *time.Time:
			*d = v.(time.Time)
		case *string:
			*d = v.(string)
		case **string:
			*d, _ = v.(*string)
		default:
			return fmt.Errorf("fake db: unsupported scan destination %T", dest[i])
		}
	}
	return nil
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int32:
		return int64(n)
	case int64:
		return n
	case int:
		return int64(n)
	default:
		return 0
	}
}
