package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultPrefix = "animus-flow"

// RedisTransport pushes requests onto Redis lists and keeps delayed task runs
// in a sorted set scored by due time.
type RedisTransport struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

type RedisOption func(*RedisTransport)

// WithPrefix sets the key prefix. Default is "animus-flow".
func WithPrefix(prefix string) RedisOption {
	return func(t *RedisTransport) {
		if p := strings.TrimSpace(prefix); p != "" {
			t.prefix = p
		}
	}
}

func NewRedisTransport(client *redis.Client, opts ...RedisOption) *RedisTransport {
	t := &RedisTransport{
		client: client,
		prefix: defaultPrefix,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *RedisTransport) runActionKey() string     { return t.prefix + ":executor:run_action" }
func (t *RedisTransport) startWorkflowKey() string { return t.prefix + ":engine:start_workflow" }
func (t *RedisTransport) delayedRunsKey() string   { return t.prefix + ":engine:delayed_task_runs" }

func (t *RedisTransport) RunAction(ctx context.Context, taskID, actionClass string, attributes, params map[string]any) error {
	if strings.TrimSpace(taskID) == "" {
		return errors.New("task id is required")
	}
	if attributes == nil {
		attributes = map[string]any{}
	}
	if params == nil {
		params = map[string]any{}
	}
	return t.push(ctx, t.runActionKey(), RunActionRequest{
		TaskID:      taskID,
		ActionClass: actionClass,
		Attributes:  attributes,
		Parameters:  params,
		SentAt:      t.now().UTC(),
	})
}

func (t *RedisTransport) StartWorkflow(ctx context.Context, workflowName string, input map[string]any, opts StartOptions) error {
	if strings.TrimSpace(workflowName) == "" {
		return errors.New("workflow name is required")
	}
	if input == nil {
		input = map[string]any{}
	}
	if opts == nil {
		opts = StartOptions{}
	}
	return t.push(ctx, t.startWorkflowKey(), StartWorkflowRequest{
		WorkflowName: workflowName,
		Input:        input,
		Options:      opts,
		SentAt:       t.now().UTC(),
	})
}

// ScheduleTaskRun records that an existing task should be run again after delay.
func (t *RedisTransport) ScheduleTaskRun(ctx context.Context, taskID string, delay time.Duration) error {
	if strings.TrimSpace(taskID) == "" {
		return errors.New("task id is required")
	}
	due := t.now().Add(delay).UnixMilli()
	if err := t.client.ZAdd(ctx, t.delayedRunsKey(), redis.Z{Score: float64(due), Member: taskID}).Err(); err != nil {
		return fmt.Errorf("redis zadd failed: %w", err)
	}
	return nil
}

// NextStartWorkflow blocks up to timeout for a start request. ok is false
// when the wait timed out.
func (t *RedisTransport) NextStartWorkflow(ctx context.Context, timeout time.Duration) (StartWorkflowRequest, bool, error) {
	var req StartWorkflowRequest
	ok, err := t.pop(ctx, t.startWorkflowKey(), timeout, &req)
	return req, ok, err
}

// NextRunAction is the executor-side counterpart of RunAction.
func (t *RedisTransport) NextRunAction(ctx context.Context, timeout time.Duration) (RunActionRequest, bool, error) {
	var req RunActionRequest
	ok, err := t.pop(ctx, t.runActionKey(), timeout, &req)
	return req, ok, err
}

// ClaimDueTaskRuns removes and returns task ids whose delay has elapsed.
// A task id is returned to at most one caller.
func (t *RedisTransport) ClaimDueTaskRuns(ctx context.Context, limit int64) ([]string, error) {
	if limit <= 0 {
		limit = 100
	}
	key := t.delayedRunsKey()
	due, err := t.client.ZRangeByScore(ctx, key, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(t.now().UnixMilli(), 10),
		Count: limit,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("redis zrangebyscore failed: %w", err)
	}
	claimed := make([]string, 0, len(due))
	for _, id := range due {
		removed, err := t.client.ZRem(ctx, key, id).Result()
		if err != nil {
			return claimed, fmt.Errorf("redis zrem failed: %w", err)
		}
		if removed == 1 {
			claimed = append(claimed, id)
		}
	}
	return claimed, nil
}

// Ping checks the connection for readiness probes.
func (t *RedisTransport) Ping(ctx context.Context) error {
	return t.client.Ping(ctx).Err()
}

func (t *RedisTransport) push(ctx context.Context, key string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}
	if err := t.client.LPush(ctx, key, data).Err(); err != nil {
		return fmt.Errorf("redis lpush failed: %w", err)
	}
	return nil
}

func (t *RedisTransport) pop(ctx context.Context, key string, timeout time.Duration, out any) (bool, error) {
	values, err := t.client.BRPop(ctx, timeout, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("redis brpop failed: %w", err)
	}
	if len(values) != 2 {
		return false, fmt.Errorf("redis brpop returned %d values", len(values))
	}
	if err := json.Unmarshal([]byte(values[1]), out); err != nil {
		return false, fmt.Errorf("failed to unmarshal request: %w", err)
	}
	return true, nil
}
