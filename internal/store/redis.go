package store

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultRedisPrefix = "devpoll:"
	redisOpTimeout     = 2 * time.Second
)

// RedisOptions configures a [RedisStore].
type RedisOptions struct {
	Addr     string
	Password string
	DB       int

	// Prefix is prepended to every key and channel. Defaults to "devpoll:".
	Prefix string
}

// RedisStore is a [Store] backed by Redis, so several devpoll processes (or
// an external UI) can share targets.
//
// Layout under the prefix:
//
//	<prefix>target:<name>  JSON Target
//	<prefix>alerts         list of JSON Alert, last 100
//	<prefix>events         pub/sub channel of JSON Event
//
// Redis errors are logged and the write is dropped; the scheduler never
// waits on Redis for longer than the operation timeout.
type RedisStore struct {
	client *redis.Client
	prefix string
	logger *slog.Logger

	subMu       sync.Mutex
	subscribers map[<-chan Event]*redis.PubSub
}

// NewRedisStore connects to Redis. A failed ping is logged, not returned,
// so the store can start before Redis is reachable.
func NewRedisStore(opts RedisOptions, logger *slog.Logger) *RedisStore {
	if logger == nil {
		logger = slog.Default()
	}
	prefix := opts.Prefix
	if prefix == "" {
		prefix = defaultRedisPrefix
	}

	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not reachable", "addr", opts.Addr, "error", err.Error())
	}

	return &RedisStore{
		client:      client,
		prefix:      prefix,
		logger:      logger,
		subscribers: make(map[<-chan Event]*redis.PubSub),
	}
}

func (r *RedisStore) targetKey(name string) string { return r.prefix + "target:" + name }
func (r *RedisStore) alertsKey() string            { return r.prefix + "alerts" }
func (r *RedisStore) eventsChannel() string        { return r.prefix + "events" }

// Write stores t and publishes a target event.
func (r *RedisStore) Write(t Target) {
	data, err := json.Marshal(t)
	if err != nil {
		r.logger.Error("failed to encode target", "target", t.Name, "error", err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	if err := r.client.Set(ctx, r.targetKey(t.Name), data, 0).Err(); err != nil {
		r.logger.Warn("redis target write failed", "target", t.Name, "error", err.Error())
		return
	}
	r.publish(ctx, Event{Kind: KindTarget, Target: &t})
}

// Raise appends a to the alerts list, trims it and publishes an alert event.
func (r *RedisStore) Raise(a Alert) {
	data, err := json.Marshal(a)
	if err != nil {
		r.logger.Error("failed to encode alert", "target", a.Target, "error", err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, r.alertsKey(), data)
		pipe.LTrim(ctx, r.alertsKey(), -maxAlerts, -1)
		return nil
	})
	if err != nil {
		r.logger.Warn("redis alert write failed", "target", a.Target, "error", err.Error())
		return
	}
	r.publish(ctx, Event{Kind: KindAlert, Alert: &a})
}

func (r *RedisStore) publish(ctx context.Context, e Event) {
	data, err := json.Marshal(e)
	if err != nil {
		return
	}
	if err := r.client.Publish(ctx, r.eventsChannel(), data).Err(); err != nil {
		r.logger.Warn("redis publish failed", "kind", e.Kind, "error", err.Error())
	}
}

// Get returns the named target.
func (r *RedisStore) Get(name string) (Target, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	data, err := r.client.Get(ctx, r.targetKey(name)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.logger.Warn("redis target read failed", "target", name, "error", err.Error())
		}
		return Target{}, false
	}

	var t Target
	if err := json.Unmarshal(data, &t); err != nil {
		return Target{}, false
	}
	return t, true
}

// GetAll scans every target key under the prefix.
func (r *RedisStore) GetAll() []Target {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	var keys []string
	iter := r.client.Scan(ctx, 0, r.targetKey("*"), 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		r.logger.Warn("redis scan failed", "error", err.Error())
		return []Target{}
	}
	if len(keys) == 0 {
		return []Target{}
	}

	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		r.logger.Warn("redis mget failed", "error", err.Error())
		return []Target{}
	}

	targets := make([]Target, 0, len(values))
	for _, v := range values {
		s, ok := v.(string)
		if !ok {
			continue
		}
		var t Target
		if err := json.Unmarshal([]byte(s), &t); err != nil {
			continue
		}
		targets = append(targets, t)
	}

	sortTargets(targets)
	return targets
}

// Alerts returns the kept alerts, oldest first.
func (r *RedisStore) Alerts() []Alert {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	raw, err := r.client.LRange(ctx, r.alertsKey(), 0, -1).Result()
	if err != nil {
		r.logger.Warn("redis alerts read failed", "error", err.Error())
		return []Alert{}
	}

	alerts := make([]Alert, 0, len(raw))
	for _, s := range raw {
		var a Alert
		if err := json.Unmarshal([]byte(s), &a); err != nil {
			continue
		}
		alerts = append(alerts, a)
	}
	return alerts
}

// Subscribe opens a Redis subscription on the events channel and forwards
// decoded events to the returned channel. Slow consumers miss events.
func (r *RedisStore) Subscribe() <-chan Event {
	ps := r.client.Subscribe(context.Background(), r.eventsChannel())

	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	if _, err := ps.Receive(ctx); err != nil {
		r.logger.Warn("redis subscribe failed", "error", err.Error())
	}
	cancel()

	ch := make(chan Event, subscriberBuffer)

	r.subMu.Lock()
	r.subscribers[ch] = ps
	r.subMu.Unlock()

	go func() {
		defer close(ch)
		for msg := range ps.Channel() {
			var e Event
			if err := json.Unmarshal([]byte(msg.Payload), &e); err != nil {
				continue
			}
			select {
			case ch <- e:
			default:
			}
		}
	}()

	return ch
}

// Unsubscribe closes the Redis subscription; the channel is closed once the
// forwarding goroutine drains.
func (r *RedisStore) Unsubscribe(ch <-chan Event) {
	r.subMu.Lock()
	ps, ok := r.subscribers[ch]
	delete(r.subscribers, ch)
	r.subMu.Unlock()

	if ok {
		_ = ps.Close()
	}
}

// Close closes open subscriptions and the Redis client.
func (r *RedisStore) Close() error {
	r.subMu.Lock()
	for ch, ps := range r.subscribers {
		_ = ps.Close()
		delete(r.subscribers, ch)
	}
	r.subMu.Unlock()

	return r.client.Close()
}
