package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// priorityBand separates priorities in a ready score. Scores stay exact
	// in a float64 for MaxPriority bands of millisecond timestamps.
	priorityBand = 1e13

	// failedLimit caps the failed list of each type.
	failedLimit = 1000

	// promoteBatch bounds how many delayed jobs and expired leases one
	// Dequeue moves back to the ready set.
	promoteBatch = 100

	// defaultLease is how long a dequeued job may run before another worker
	// may take it over.
	defaultLease = 10 * time.Minute
)

// dequeueScript pops the best ready job of one type and leases it.
//
// KEYS: delayed, ready, processing, leases.
// ARGV: now (ms), batch, priority band, lease deadline (ms).
//
// Leases that expired before now go back to the ready set first, so a job
// held by a worker that died is handed out again. Due delayed jobs follow.
// Both are queued behind waiting jobs of the same priority. The popped job
// id is added to the processing set scored by its deadline and its payload
// is kept in the leases hash until Ack, Retry or Fail.
var dequeueScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local batch = tonumber(ARGV[2])
local band = tonumber(ARGV[3])

local function ready(member)
	local job = cjson.decode(member)
	local priority = tonumber(job['priority']) or 0
	redis.call('ZADD', KEYS[2], -priority * band + now, member)
end

local expired = redis.call('ZRANGEBYSCORE', KEYS[3], '-inf', now, 'LIMIT', 0, batch)
for _, id in ipairs(expired) do
	local member = redis.call('HGET', KEYS[4], id)
	redis.call('ZREM', KEYS[3], id)
	redis.call('HDEL', KEYS[4], id)
	if member then
		ready(member)
	end
end

local due = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', now, 'LIMIT', 0, batch)
for _, member in ipairs(due) do
	redis.call('ZREM', KEYS[1], member)
	ready(member)
end

local popped = redis.call('ZRANGE', KEYS[2], 0, 0)
if #popped == 0 then
	return false
end
local member = popped[1]
redis.call('ZREM', KEYS[2], member)
local id = cjson.decode(member)['id']
redis.call('ZADD', KEYS[3], tonumber(ARGV[4]), id)
redis.call('HSET', KEYS[4], id, member)
return member
`)

// Redis is a Backend on Redis sorted sets.
type Redis struct {
	client *redis.Client
	prefix string
	lease  time.Duration
	now    func() time.Time
}

var _ Backend = (*Redis)(nil)

// RedisOption configures a Redis backend.
type RedisOption func(*Redis)

// WithPrefix sets the key prefix. Defaults to "placerank".
func WithPrefix(prefix string) RedisOption {
	return func(r *Redis) {
		if prefix != "" {
			r.prefix = prefix
		}
	}
}

// WithLease sets how long a dequeued job is held before it is handed out
// again. It must be longer than a job may run. Defaults to 10 minutes.
func WithLease(d time.Duration) RedisOption {
	return func(r *Redis) {
		if d > 0 {
			r.lease = d
		}
	}
}

// WithRedisClock replaces time.Now.
func WithRedisClock(now func() time.Time) RedisOption {
	return func(r *Redis) {
		if now != nil {
			r.now = now
		}
	}
}

// NewRedis wraps a connected client.
func NewRedis(client *redis.Client, opts ...RedisOption) *Redis {
	r := &Redis{
		client: client,
		prefix: "placerank",
		lease:  defaultLease,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Dial connects to addr and pings the server.
func Dial(ctx context.Context, addr, password string, db int, opts ...RedisOption) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}
	return NewRedis(client, opts...), nil
}

func (r *Redis) key(t Type, kind string) string {
	return r.prefix + ":" + string(t) + ":" + kind
}

// Enqueue adds a ready job.
func (r *Redis) Enqueue(ctx context.Context, job Job) error {
	if err := job.Validate(); err != nil {
		return err
	}
	job = job.prepare(r.now())

	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to encode job %s: %w", job.ID, err)
	}
	err = r.client.ZAdd(ctx, r.key(job.Type, "ready"), redis.Z{
		Score:  readyScore(job.Priority, job.EnqueuedAt),
		Member: data,
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to enqueue job %s: %w", job.ID, err)
	}
	return nil
}

// Dequeue reclaims expired leases, promotes due delayed jobs and leases
// the best ready job of t.
func (r *Redis) Dequeue(ctx context.Context, t Type) (Job, bool, error) {
	now := r.now()
	keys := []string{r.key(t, "delayed"), r.key(t, "ready"), r.key(t, "processing"), r.key(t, "leases")}

	member, err := dequeueScript.Run(ctx, r.client, keys,
		now.UnixMilli(), promoteBatch, priorityBand, now.Add(r.lease).UnixMilli(),
	).Result()
	if errors.Is(err, redis.Nil) {
		return Job{}, false, nil
	}
	if err != nil {
		return Job{}, false, fmt.Errorf("failed to pop job: %w", err)
	}

	job, err := decodeMember(member)
	if err != nil {
		return Job{}, false, err
	}
	return job, true, nil
}

// Ack releases the lease of a finished job.
func (r *Redis) Ack(ctx context.Context, job Job) error {
	pipe := r.client.TxPipeline()
	r.release(ctx, pipe, job)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to acknowledge job %s: %w", job.ID, err)
	}
	return nil
}

// release queues the removal of job's lease on pipe.
func (r *Redis) release(ctx context.Context, pipe redis.Pipeliner, job Job) {
	pipe.ZRem(ctx, r.key(job.Type, "processing"), job.ID)
	pipe.HDel(ctx, r.key(job.Type, "leases"), job.ID)
}

// Retry parks job in the delayed set until at.
func (r *Redis) Retry(ctx context.Context, job Job, at time.Time) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to encode job %s: %w", job.ID, err)
	}
	pipe := r.client.TxPipeline()
	pipe.ZAdd(ctx, r.key(job.Type, "delayed"), redis.Z{
		Score:  float64(at.UnixMilli()),
		Member: data,
	})
	r.release(ctx, pipe, job)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to schedule retry of job %s: %w", job.ID, err)
	}
	return nil
}

// Fail pushes job onto the capped failed list.
func (r *Redis) Fail(ctx context.Context, job Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to encode job %s: %w", job.ID, err)
	}

	key := r.key(job.Type, "failed")
	pipe := r.client.TxPipeline()
	pipe.LPush(ctx, key, data)
	pipe.LTrim(ctx, key, 0, failedLimit-1)
	r.release(ctx, pipe, job)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to record failed job %s: %w", job.ID, err)
	}
	return nil
}

// Len returns ready plus delayed jobs of t.
func (r *Redis) Len(ctx context.Context, t Type) (int, error) {
	pipe := r.client.Pipeline()
	ready := pipe.ZCard(ctx, r.key(t, "ready"))
	delayed := pipe.ZCard(ctx, r.key(t, "delayed"))
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("failed to count jobs: %w", err)
	}
	return int(ready.Val() + delayed.Val()), nil
}

// Active returns the leased jobs of t.
func (r *Redis) Active(ctx context.Context, t Type) (int, error) {
	n, err := r.client.ZCard(ctx, r.key(t, "processing")).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count active jobs: %w", err)
	}
	return int(n), nil
}

// Failed returns failed jobs of t, newest first.
func (r *Redis) Failed(ctx context.Context, t Type) ([]Job, error) {
	members, err := r.client.LRange(ctx, r.key(t, "failed"), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list failed jobs: %w", err)
	}

	jobs := make([]Job, 0, len(members))
	for _, m := range members {
		job, err := decodeMember(m)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// Close closes the client.
func (r *Redis) Close() error {
	return r.client.Close()
}

// readyScore orders by priority descending, then enqueue time ascending.
func readyScore(priority int, enqueuedAt time.Time) float64 {
	return -float64(clampPriority(priority))*priorityBand + float64(enqueuedAt.UnixMilli())
}

func decodeMember(member any) (Job, error) {
	var raw []byte
	switch v := member.(type) {
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return Job{}, fmt.Errorf("unexpected member type %T", member)
	}

	var job Job
	if err := json.Unmarshal(raw, &job); err != nil {
		return Job{}, fmt.Errorf("failed to decode job: %w", err)
	}
	return job, nil
}
