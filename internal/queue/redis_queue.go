package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	delayedKey  = "jobs:delayed"
	payloadsKey = "jobs:payloads"
	failedKey   = "jobs:failed"
)

// envelope is what the payload hash stores per job id. Attempts survives
// requeues so retry exhaustion is tracked across executions.
type envelope struct {
	Payload    json.RawMessage `json:"payload"`
	Attempts   int             `json:"attempts"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
}

type failedRecord struct {
	Payload  json.RawMessage `json:"payload"`
	Attempts int             `json:"attempts"`
	Error    string          `json:"error"`
	FailedAt time.Time       `json:"failed_at"`
}

// Lua script for an atomic idempotent enqueue: the job is added to the delayed
// set only if its id is not already pending, and the payload is written only
// when the add happened. Returns 1 when enqueued, 0 on a duplicate no-op.
const enqueueLuaScript = `
local added = redis.call("ZADD", KEYS[1], "NX", ARGV[1], ARGV[2])
if added == 1 then
    redis.call("HSET", KEYS[2], ARGV[2], ARGV[3])
end
return added
`

// Lua script claiming due jobs: reads up to ARGV[2] members with score <= now
// and removes them from the delayed set in the same script, so two consumers
// never claim the same job.
const claimLuaScript = `
local due = redis.call("ZRANGEBYSCORE", KEYS[1], "-inf", ARGV[1], "LIMIT", 0, ARGV[2])
local out = {}
for _, id in ipairs(due) do
    redis.call("ZREM", KEYS[1], id)
    out[#out+1] = id
    out[#out+1] = redis.call("HGET", KEYS[2], id) or ""
end
return out
`

// Lua script acking a completed job. The payload is kept when the job id is
// pending again: a handler may re-enqueue its own job (rate-limit pushback)
// before returning success.
const ackLuaScript = `
if redis.call("ZSCORE", KEYS[1], ARGV[1]) then
    return 0
end
return redis.call("HDEL", KEYS[2], ARGV[1])
`

// RedisQueue is a delayed-job store over a redis sorted set scored by due
// time, with job payloads in a companion hash keyed by job id.
type RedisQueue struct {
	client *redis.Client

	enqueueScript *redis.Script
	claimScript   *redis.Script
	ackScript     *redis.Script
}

func NewRedisQueue(client *redis.Client) *RedisQueue {
	return &RedisQueue{
		client:        client,
		enqueueScript: redis.NewScript(enqueueLuaScript),
		claimScript:   redis.NewScript(claimLuaScript),
		ackScript:     redis.NewScript(ackLuaScript),
	}
}

func NewRedisQueueFromURL(redisURL string) (*RedisQueue, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	log.Printf("[JobQueue] Connected to Redis at %s", redisURL)
	return NewRedisQueue(client), nil
}

func (q *RedisQueue) Enqueue(ctx context.Context, jobID string, payload any, delay time.Duration) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal job payload: %w", err)
	}
	env, err := json.Marshal(envelope{Payload: raw, Attempts: 0, EnqueuedAt: time.Now()})
	if err != nil {
		return err
	}

	dueAt := time.Now().Add(delay).UnixMilli()
	added, err := q.enqueueScript.Run(ctx, q.client,
		[]string{delayedKey, payloadsKey},
		dueAt, jobID, env,
	).Int64()
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", jobID, err)
	}
	if added == 0 {
		log.Printf("[JobQueue] duplicate enqueue ignored for %s", jobID)
	}
	return nil
}

// requeue puts a claimed job back with its attempt count preserved. Unlike
// Enqueue it overwrites unconditionally; the caller owns the claimed job.
func (q *RedisQueue) requeue(ctx context.Context, job Job, delay time.Duration) error {
	env, err := json.Marshal(envelope{Payload: job.Payload, Attempts: job.Attempts, EnqueuedAt: time.Now()})
	if err != nil {
		return err
	}
	pipe := q.client.TxPipeline()
	pipe.ZAdd(ctx, delayedKey, redis.Z{Score: float64(time.Now().Add(delay).UnixMilli()), Member: job.ID})
	pipe.HSet(ctx, payloadsKey, job.ID, env)
	_, err = pipe.Exec(ctx)
	return err
}

// claimDue pops up to limit due jobs atomically.
func (q *RedisQueue) claimDue(ctx context.Context, limit int) ([]Job, error) {
	res, err := q.claimScript.Run(ctx, q.client,
		[]string{delayedKey, payloadsKey},
		time.Now().UnixMilli(), limit,
	).Slice()
	if err != nil {
		return nil, err
	}

	jobs := make([]Job, 0, len(res)/2)
	for i := 0; i+1 < len(res); i += 2 {
		id, _ := res[i].(string)
		rawEnv, _ := res[i+1].(string)

		var env envelope
		if rawEnv != "" {
			if err := json.Unmarshal([]byte(rawEnv), &env); err != nil {
				log.Printf("[JobQueue] corrupt payload for %s: %v", id, err)
				q.client.HDel(ctx, payloadsKey, id)
				continue
			}
		}
		jobs = append(jobs, Job{ID: id, Payload: env.Payload, Attempts: env.Attempts, DueAt: time.Now()})
	}
	return jobs, nil
}

// ack removes a completed job's payload, unless the id is pending again.
func (q *RedisQueue) ack(ctx context.Context, jobID string) error {
	return q.ackScript.Run(ctx, q.client, []string{delayedKey, payloadsKey}, jobID).Err()
}

// markFailed records a job that exhausted its retries.
func (q *RedisQueue) markFailed(ctx context.Context, job Job, cause error) {
	rec, err := json.Marshal(failedRecord{
		Payload:  job.Payload,
		Attempts: job.Attempts,
		Error:    cause.Error(),
		FailedAt: time.Now(),
	})
	if err == nil {
		if err := q.client.HSet(ctx, failedKey, job.ID, rec).Err(); err != nil {
			log.Printf("[JobQueue] record failed job %s: %v", job.ID, err)
		}
	}
	if err := q.client.HDel(ctx, payloadsKey, job.ID).Err(); err != nil {
		log.Printf("[JobQueue] drop payload for failed job %s: %v", job.ID, err)
	}
}

// ListPending returns jobs that are waiting or delayed, not yet claimed.
func (q *RedisQueue) ListPending(ctx context.Context, filter func(Job) bool) ([]Job, error) {
	members, err := q.client.ZRangeWithScores(ctx, delayedKey, 0, -1).Result()
	if err != nil {
		return nil, err
	}

	jobs := []Job{}
	for _, m := range members {
		id, ok := m.Member.(string)
		if !ok {
			continue
		}
		job := Job{ID: id, DueAt: time.UnixMilli(int64(m.Score))}

		rawEnv, err := q.client.HGet(ctx, payloadsKey, id).Result()
		if err == nil {
			var env envelope
			if json.Unmarshal([]byte(rawEnv), &env) == nil {
				job.Payload = env.Payload
				job.Attempts = env.Attempts
			}
		}

		if filter == nil || filter(job) {
			jobs = append(jobs, job)
		}
	}
	return jobs, nil
}

// Cancel removes a pending job. Cancelling an already-claimed or unknown job
// id is a no-op; the worker-side status guard is the correctness backstop.
func (q *RedisQueue) Cancel(ctx context.Context, jobID string) error {
	pipe := q.client.TxPipeline()
	pipe.ZRem(ctx, delayedKey, jobID)
	pipe.HDel(ctx, payloadsKey, jobID)
	_, err := pipe.Exec(ctx)
	return err
}

// FailedJobs lists jobs that exhausted their retries, for inspection.
func (q *RedisQueue) FailedJobs(ctx context.Context) (map[string]string, error) {
	return q.client.HGetAll(ctx, failedKey).Result()
}

func (q *RedisQueue) Close() error {
	return q.client.Close()
}

var _ Gateway = (*RedisQueue)(nil)
