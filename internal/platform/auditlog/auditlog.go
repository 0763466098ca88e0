// Package auditlog appends tamper-evident execution events to Postgres.
package auditlog

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	ActionExecutionCreated      = "execution.created"
	ActionExecutionStateChanged = "execution.state_changed"
	ActionTaskResumed           = "task.resumed"
)

type Event struct {
	OccurredAt  time.Time
	Actor       string
	Action      string
	ExecutionID string
	TaskID      string
	Payload     any
}

type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (e Event) Validate() error {
	if e.OccurredAt.IsZero() {
		return errors.New("OccurredAt is required")
	}
	if strings.TrimSpace(e.Actor) == "" {
		return errors.New("Actor is required")
	}
	if strings.TrimSpace(e.Action) == "" {
		return errors.New("Action is required")
	}
	if strings.TrimSpace(e.ExecutionID) == "" {
		return errors.New("ExecutionID is required")
	}
	return nil
}

const insertEventQuery = `INSERT INTO execution_events (
	occurred_at,
	actor,
	action,
	execution_id,
	task_id,
	payload,
	integrity_sha256
) VALUES ($1,$2,$3,$4,$5,$6,$7)`

func Insert(ctx context.Context, db Execer, event Event) error {
	if db == nil {
		return errors.New("database is required")
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	if err := event.Validate(); err != nil {
		return err
	}

	payload := event.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	integrity, err := ComputeIntegritySHA256(event, payloadJSON)
	if err != nil {
		return err
	}

	var taskID sql.NullString
	if id := strings.TrimSpace(event.TaskID); id != "" {
		taskID = sql.NullString{String: id, Valid: true}
	}
	_, err = db.ExecContext(
		ctx,
		insertEventQuery,
		event.OccurredAt.UTC(),
		strings.TrimSpace(event.Actor),
		strings.TrimSpace(event.Action),
		strings.TrimSpace(event.ExecutionID),
		taskID,
		payloadJSON,
		integrity,
	)
	if err != nil {
		return fmt.Errorf("insert execution event: %w", err)
	}
	return nil
}

// ComputeIntegritySHA256 hashes the canonical JSON form of event with its
// encoded payload.
func ComputeIntegritySHA256(event Event, payloadJSON []byte) (string, error) {
	type integrityInput struct {
		OccurredAt  time.Time       `json:"occurred_at"`
		Actor       string          `json:"actor"`
		Action      string          `json:"action"`
		ExecutionID string          `json:"execution_id"`
		TaskID      string          `json:"task_id,omitempty"`
		Payload     json.RawMessage `json:"payload"`
	}

	blob, err := json.Marshal(integrityInput{
		OccurredAt:  event.OccurredAt.UTC(),
		Actor:       strings.TrimSpace(event.Actor),
		Action:      strings.TrimSpace(event.Action),
		ExecutionID: strings.TrimSpace(event.ExecutionID),
		TaskID:      strings.TrimSpace(event.TaskID),
		Payload:     payloadJSON,
	})
	if err != nil {
		return "", fmt.Errorf("marshal integrity: %w", err)
	}
	sum := sha256.Sum256(blob)
	return hex.EncodeToString(sum[:]), nil
}

// Writer stamps events with a fixed actor and stores them.
type Writer struct {
	db    Execer
	actor string
	now   func() time.Time
}

func NewWriter(db Execer, actor string) *Writer {
	return &Writer{db: db, actor: actor, now: time.Now}
}

func (w *Writer) Record(ctx context.Context, event Event) error {
	if w == nil {
		return errors.New("audit writer not initialized")
	}
	if event.Actor == "" {
		event.Actor = w.actor
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = w.now().UTC()
	}
	return Insert(ctx, w.db, event)
}
