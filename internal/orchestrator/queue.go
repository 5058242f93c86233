package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Queue is a Redis-backed FIFO job queue with deterministic-id dedup,
// delayed exponential-backoff retries, and bounded completed/failed
// retention, generalizing the teacher's Redis dedupe store
// (internal/orchestrator/dedupe.go) into the broker the spec describes
// (spec §4.9 "Four queues").
type Queue struct {
	client *redis.Client
	name   string
}

// NewQueue wraps an existing Redis client for one named queue.
func NewQueue(client *redis.Client, name string) *Queue {
	return &Queue{client: client, name: name}
}

func (q *Queue) waitingKey() string   { return q.name + ":waiting" }
func (q *Queue) activeKey() string    { return q.name + ":active" }
func (q *Queue) delayedKey() string   { return q.name + ":delayed" }
func (q *Queue) seenKey() string      { return q.name + ":seen" }
func (q *Queue) completedKey() string { return q.name + ":completed" }
func (q *Queue) failedKey() string    { return q.name + ":failed" }

func encodeJob(j Job) (string, error) {
	b, err := json.Marshal(j)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeJob(s string) (Job, error) {
	var j Job
	err := json.Unmarshal([]byte(s), &j)
	return j, err
}

// Enqueue pushes job onto the queue unless its id is already outstanding
// (waiting, active, or delayed), in which case it reports a duplicate
// rather than erroring (spec §7 "Concurrency conflicts").
func (q *Queue) Enqueue(ctx context.Context, j Job) (enqueued bool, err error) {
	added, err := q.client.SAdd(ctx, q.seenKey(), j.ID).Result()
	if err != nil {
		return false, err
	}
	if added == 0 {
		return false, nil
	}
	payload, err := encodeJob(j)
	if err != nil {
		return false, err
	}
	if err := q.client.LPush(ctx, q.waitingKey(), payload).Err(); err != nil {
		return false, err
	}
	return true, nil
}

// promoteDelayed moves every delayed job whose ready time has passed back
// onto the waiting list.
func (q *Queue) promoteDelayed(ctx context.Context) error {
	now := float64(time.Now().UnixMilli())
	due, err := q.client.ZRangeByScore(ctx, q.delayedKey(), &redis.ZRangeBy{
		Min: "-inf", Max: fmt.Sprintf("%f", now),
	}).Result()
	if err != nil {
		return err
	}
	for _, payload := range due {
		if err := q.client.ZRem(ctx, q.delayedKey(), payload).Err(); err != nil {
			return err
		}
		if err := q.client.LPush(ctx, q.waitingKey(), payload).Err(); err != nil {
			return err
		}
	}
	return nil
}

// Dequeue blocks up to timeout for the next job, promoting due delayed
// jobs first. ok is false on timeout (no job available).
func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration) (job Job, ok bool, err error) {
	if err := q.promoteDelayed(ctx); err != nil {
		return Job{}, false, err
	}
	payload, err := q.client.BRPopLPush(ctx, q.waitingKey(), q.activeKey(), timeout).Result()
	if errors.Is(err, redis.Nil) {
		return Job{}, false, nil
	}
	if err != nil {
		return Job{}, false, err
	}
	j, err := decodeJob(payload)
	if err != nil {
		return Job{}, false, err
	}
	return j, true, nil
}

// Ack marks job complete: removes it from active and the dedup set, then
// retains or discards it per opts.KeepCompleted.
func (q *Queue) Ack(ctx context.Context, j Job, opts JobOptions) error {
	payload, err := encodeJob(j)
	if err != nil {
		return err
	}
	if err := q.client.LRem(ctx, q.activeKey(), 1, payload).Err(); err != nil {
		return err
	}
	if err := q.client.SRem(ctx, q.seenKey(), j.ID).Err(); err != nil {
		return err
	}
	if opts.KeepCompleted == 0 {
		return nil
	}
	if err := q.client.LPush(ctx, q.completedKey(), payload).Err(); err != nil {
		return err
	}
	if opts.KeepCompleted > 0 {
		return q.client.LTrim(ctx, q.completedKey(), 0, int64(opts.KeepCompleted-1)).Err()
	}
	return nil
}

// Fail records one failed attempt. If attempts remain, it schedules a
// jittered-free exponential-backoff redelivery; otherwise the job is
// terminal and is discarded or retained per opts.KeepFailed (spec §4.9
// "Default job options").
func (q *Queue) Fail(ctx context.Context, j Job, opts JobOptions) error {
	oldPayload, err := encodeJob(j)
	if err != nil {
		return err
	}
	if err := q.client.LRem(ctx, q.activeKey(), 1, oldPayload).Err(); err != nil {
		return err
	}

	j.Attempt++
	if j.Attempt < opts.Attempts {
		delay := opts.BackoffDelay * time.Duration(1<<uint(j.Attempt-1))
		newPayload, err := encodeJob(j)
		if err != nil {
			return err
		}
		readyAt := float64(time.Now().Add(delay).UnixMilli())
		return q.client.ZAdd(ctx, q.delayedKey(), redis.Z{Score: readyAt, Member: newPayload}).Err()
	}

	if err := q.client.SRem(ctx, q.seenKey(), j.ID).Err(); err != nil {
		return err
	}
	if opts.KeepFailed == 0 {
		return nil
	}
	newPayload, err := encodeJob(j)
	if err != nil {
		return err
	}
	if err := q.client.LPush(ctx, q.failedKey(), newPayload).Err(); err != nil {
		return err
	}
	if opts.KeepFailed > 0 {
		return q.client.LTrim(ctx, q.failedKey(), 0, int64(opts.KeepFailed-1)).Err()
	}
	return nil
}

// Depth returns waiting+active+delayed, the count waitForQueueCapacity
// compares against the backpressure limit (spec §4.9 "Backpressure
// contract"). Priority queues are not modeled, so "prioritized" is always
// zero.
func (q *Queue) Depth(ctx context.Context) (int, error) {
	waiting, err := q.client.LLen(ctx, q.waitingKey()).Result()
	if err != nil {
		return 0, err
	}
	active, err := q.client.LLen(ctx, q.activeKey()).Result()
	if err != nil {
		return 0, err
	}
	delayed, err := q.client.ZCard(ctx, q.delayedKey()).Result()
	if err != nil {
		return 0, err
	}
	return int(waiting + active + delayed), nil
}
