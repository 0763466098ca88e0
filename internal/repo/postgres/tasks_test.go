package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/animus-labs/animus-flow/internal/domain"
	"github.com/animus-labs/animus-flow/internal/repo"
)

type execCall struct {
	query string
	args  []any
}

type recordingDB struct {
	execs    []execCall
	affected int64
}

func (db *recordingDB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	db.execs = append(db.execs, execCall{query: query, args: args})
	return driver.RowsAffected(db.affected), nil
}

func (db *recordingDB) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return nil, fmt.Errorf("unexpected query %s", query)
}

func (db *recordingDB) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return nil
}

// valueScanner hands stored column values to Scan in order.
type valueScanner struct {
	values []any
}

func (s valueScanner) Scan(dest ...any) error {
	if len(dest) != len(s.values) {
		return fmt.Errorf("scan %d columns into %d targets", len(s.values), len(dest))
	}
	for i, d := range dest {
		switch target := d.(type) {
		case *string:
			*target = s.values[i].(string)
		case *[]byte:
			if s.values[i] == nil {
				*target = nil
				continue
			}
			*target = s.values[i].([]byte)
		case *time.Time:
			*target = s.values[i].(time.Time)
		default:
			return fmt.Errorf("unsupported scan target %T", d)
		}
	}
	return nil
}

func TestTaskStoreRoundTripKeepsNullAndEmpty(t *testing.T) {
	db := &recordingDB{affected: 1}
	store := NewTaskStore(db)
	created, err := store.CreateTask(context.Background(), domain.Task{
		ExecutionID: "exec-1",
		Name:        "t1",
		State:       domain.TaskStateRunning,
		Spec:        []byte(`{"name":"t1"}`),
		Parameters:  domain.Metadata{},
		InContext:   domain.Metadata{"env": "test"},
	})
	if err != nil {
		t.Fatalf("CreateTask() err=%v", err)
	}
	if created.ID == "" {
		t.Fatalf("expected generated task id")
	}

	insert := db.execs[0]
	if insert.query != insertTaskQuery || len(insert.args) != 10 {
		t.Fatalf("unexpected insert %s with %d args", insert.query, len(insert.args))
	}
	if raw := insert.args[7].([]byte); raw != nil {
		t.Fatalf("expected NULL output, got %q", raw)
	}
	if raw := insert.args[5].([]byte); string(raw) != "{}" {
		t.Fatalf("expected {} parameters, got %q", raw)
	}

	row := append([]any{}, insert.args...)
	row = append(row, insert.args[9])
	decoded, err := scanTask(valueScanner{values: row})
	if err != nil {
		t.Fatalf("scanTask() err=%v", err)
	}
	if decoded.Output != nil || decoded.RuntimeContext != nil {
		t.Fatalf("expected nil output and runtime context, got %v %v", decoded.Output, decoded.RuntimeContext)
	}
	if decoded.Parameters == nil || len(decoded.Parameters) != 0 {
		t.Fatalf("expected empty non-nil parameters, got %#v", decoded.Parameters)
	}
	if decoded.InContext["env"] != "test" || decoded.State != domain.TaskStateRunning || decoded.ID != created.ID {
		t.Fatalf("unexpected decoded task %+v", decoded)
	}

	decoded.Output = domain.Metadata{"result": "ok"}
	decoded.Parameters = nil
	if err := store.UpdateTask(context.Background(), decoded); err != nil {
		t.Fatalf("UpdateTask() err=%v", err)
	}
	update := db.execs[1]
	if update.query != updateTaskQuery {
		t.Fatalf("unexpected update query %s", update.query)
	}
	if raw := update.args[2].([]byte); raw != nil {
		t.Fatalf("expected NULL parameters on update, got %q", raw)
	}
	if raw := update.args[4].([]byte); string(raw) != `{"result":"ok"}` {
		t.Fatalf("unexpected output %q", raw)
	}
}

func TestTaskStoreUpdateMissingRow(t *testing.T) {
	store := NewTaskStore(&recordingDB{})
	err := store.UpdateTask(context.Background(), domain.Task{ID: "gone", State: domain.TaskStateRunning})
	if !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
