// Package runlog keeps the outcome of the latest run of each pipeline in
// Redis so operators can check job health without reading logs.
package runlog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultPrefix namespaces ledger keys.
const DefaultPrefix = "onchain_ingest:run:"

// Run outcomes.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// Entry describes one finished run.
type Entry struct {
	Pipeline   string    `json:"pipeline"`
	Status     string    `json:"status"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Collection string    `json:"collection,omitempty"`
	Records    int       `json:"records"`
	Error      string    `json:"error,omitempty"`
}

// Options locates the ledger.
type Options struct {
	URL      string
	Password string // overrides any password in URL
	Prefix   string // defaults to DefaultPrefix
}

// Ledger records run entries.
type Ledger struct {
	rdb    *redis.Client
	prefix string
}

// New connects to Redis and checks it answers within five seconds.
func New(ctx context.Context, o Options) (*Ledger, error) {
	opts, err := redis.ParseURL(o.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if o.Password != "" {
		opts.Password = o.Password
	}
	prefix := o.Prefix
	if prefix == "" {
		prefix = DefaultPrefix
	}
	rdb := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("ping redis %s: %w", opts.Addr, err)
	}
	return &Ledger{rdb: rdb, prefix: prefix}, nil
}

// Close shuts down the Redis connection.
func (l *Ledger) Close() error {
	return l.rdb.Close()
}

// Record stores e as the latest run of its pipeline and bumps the
// per-status counter. Entries never expire.
func (l *Ledger) Record(ctx context.Context, e Entry) error {
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	key := l.prefix + e.Pipeline
	_, err = l.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, key+":last", b, 0)
		p.HIncrBy(ctx, key+":count", e.Status, 1)
		if e.Status == StatusSuccess {
			p.Set(ctx, key+":last_success", b, 0)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("record run %s: %w", e.Pipeline, err)
	}
	return nil
}

// Last returns the latest entry for pipeline, or nil if it never ran.
func (l *Ledger) Last(ctx context.Context, pipeline string) (*Entry, error) {
	return l.get(ctx, l.prefix+pipeline+":last")
}

// LastSuccess returns the latest successful entry for pipeline, or nil.
func (l *Ledger) LastSuccess(ctx context.Context, pipeline string) (*Entry, error) {
	return l.get(ctx, l.prefix+pipeline+":last_success")
}

// Counts returns how many runs of pipeline ended in each status.
func (l *Ledger) Counts(ctx context.Context, pipeline string) (map[string]int64, error) {
	raw, err := l.rdb.HGetAll(ctx, l.prefix+pipeline+":count").Result()
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(raw))
	for k, v := range raw {
		var n int64
		if _, err := fmt.Sscan(v, &n); err == nil {
			out[k] = n
		}
	}
	return out, nil
}

func (l *Ledger) get(ctx context.Context, key string) (*Entry, error) {
	b, err := l.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var e Entry
	if err := json.Unmarshal(b, &e); err != nil {
		return nil, fmt.Errorf("decode run entry %s: %w", key, err)
	}
	return &e, nil
}
