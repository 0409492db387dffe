// internal/queue/queue.go
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	DefaultKey   = "whatsapp:tasks"
	DefaultLease = time.Minute
)

// Task asks the delivery worker to attempt one message.
type Task struct {
	MessageID int64  `json:"messageId"`
	AlertType string `json:"alertType,omitempty"`
}

// Queue is a delayed task queue on a Redis sorted set scored by the unix
// millisecond at which a task becomes ready. A task is handed to exactly one
// caller of Claim because only one ZREM of a member can succeed.
//
// Claiming a task also leases its message id in a second sorted set
// (<key>:inflight) scored by the lease deadline, until Release or expiry.
type Queue struct {
	rdb      redis.Cmdable
	key      string
	inflight string
	lease    time.Duration
	now      func() time.Time
}

func New(rdb redis.Cmdable, key string) *Queue {
	if key == "" {
		key = DefaultKey
	}
	return &Queue{rdb: rdb, key: key, inflight: key + ":inflight", lease: DefaultLease, now: time.Now}
}

// WithLease sets how long a claimed message stays leased without a Release.
// It should exceed the longest time a handler can spend on one task.
func (q *Queue) WithLease(d time.Duration) *Queue {
	if d > 0 {
		q.lease = d
	}
	return q
}

// claimScript removes the task and leases its message id in one step.
var claimScript = redis.NewScript(`
if redis.call("ZREM", KEYS[1], ARGV[1]) == 1 then
	redis.call("ZADD", KEYS[2], ARGV[3], ARGV[2])
	return 1
end
return 0
`)

// Enqueue makes the task ready immediately.
func (q *Queue) Enqueue(ctx context.Context, task Task) error {
	return q.EnqueueAfter(ctx, task, 0)
}

// EnqueueAfter makes the task ready after delay. A task already waiting in the
// queue keeps its original ready time.
func (q *Queue) EnqueueAfter(ctx context.Context, task Task, delay time.Duration) error {
	member, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("encode task: %w", err)
	}
	score := float64(q.now().Add(delay).UnixMilli())
	if err := q.rdb.ZAddNX(ctx, q.key, redis.Z{Score: score, Member: string(member)}).Err(); err != nil {
		return fmt.Errorf("enqueue message %d: %w", task.MessageID, err)
	}
	return nil
}

// Claim removes and returns the oldest ready task and leases its message.
// ok is false when nothing is ready.
func (q *Queue) Claim(ctx context.Context) (Task, bool, error) {
	now := q.now()
	ready := strconv.FormatInt(now.UnixMilli(), 10)

	for {
		members, err := q.rdb.ZRangeByScore(ctx, q.key, &redis.ZRangeBy{
			Min:   "-inf",
			Max:   ready,
			Count: 1,
		}).Result()
		if err != nil {
			return Task{}, false, fmt.Errorf("read ready tasks: %w", err)
		}
		if len(members) == 0 {
			return Task{}, false, nil
		}

		var task Task
		if err := json.Unmarshal([]byte(members[0]), &task); err != nil {
			if rerr := q.rdb.ZRem(ctx, q.key, members[0]).Err(); rerr != nil {
				return Task{}, false, fmt.Errorf("drop malformed task: %w", rerr)
			}
			return Task{}, false, fmt.Errorf("%w: %v", ErrMalformedTask, err)
		}

		deadline := now.Add(q.lease).UnixMilli()
		claimed, err := claimScript.Run(ctx, q.rdb, []string{q.key, q.inflight},
			members[0], leaseMember(task.MessageID), deadline).Int()
		if err != nil {
			return Task{}, false, fmt.Errorf("claim task: %w", err)
		}
		if claimed == 0 {
			// another worker won this one
			continue
		}
		return task, true, nil
	}
}

// Release ends the lease taken by Claim.
func (q *Queue) Release(ctx context.Context, messageID int64) error {
	if err := q.rdb.ZRem(ctx, q.inflight, leaseMember(messageID)).Err(); err != nil {
		return fmt.Errorf("release message %d: %w", messageID, err)
	}
	return nil
}

// InFlight reports whether a worker holds an unexpired lease on the message.
func (q *Queue) InFlight(ctx context.Context, messageID int64) (bool, error) {
	deadline, err := q.rdb.ZScore(ctx, q.inflight, leaseMember(messageID)).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lease of message %d: %w", messageID, err)
	}
	return int64(deadline) > q.now().UnixMilli(), nil
}

func leaseMember(messageID int64) string {
	return strconv.FormatInt(messageID, 10)
}

// ErrMalformedTask is returned by Claim for a member that is not a Task; the
// member has already been removed.
var ErrMalformedTask = errors.New("malformed task")

// Depth counts waiting tasks, ready or delayed.
func (q *Queue) Depth(ctx context.Context) (int64, error) {
	n, err := q.rdb.ZCard(ctx, q.key).Result()
	if err != nil {
		return 0, fmt.Errorf("queue depth: %w", err)
	}
	return n, nil
}

// Ping checks the backing Redis.
func (q *Queue) Ping(ctx context.Context) error {
	return q.rdb.Ping(ctx).Err()
}
