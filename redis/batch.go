package redis

import (
	"context"
	"time"

	otrace "github.com/opentracing/opentracing-go"
	"golang.org/x/sync/errgroup"
)

// Record is one write in a batch. A record with Fields is written as a hash,
// otherwise Value is written as a plain value.
type Record struct {
	Key    string
	Value  []byte
	Fields map[string]string
	TTL    time.Duration
}

type BatchFailure struct {
	Key string
	Err error
}

// BatchResult reports every record of a batch. Failures are in input order.
type BatchResult struct {
	Succeeded int
	Failed    int
	Failures  []BatchFailure
}

func (r BatchResult) OK() bool {
	return r.Failed == 0
}

// PutMany writes each record independently, with its own retries. A record
// that fails does not stop the others. Each failure carries an
// *IntegrityError.
func (s *Store) PutMany(ctx context.Context, records []Record) BatchResult {
	span, ctx := otrace.StartSpanFromContext(ctx, "redis.store.PutMany")
	defer span.Finish()
	span.SetTag("records", len(records))

	errs := make([]error, len(records))

	g, gctx := errgroup.WithContext(ctx)
	limit := s.pool.MaxSize()
	if limit > len(records) {
		limit = len(records)
	}
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, rec := range records {
		i, rec := i, rec
		g.Go(func() error {
			if rec.Fields != nil {
				errs[i] = s.PutHash(gctx, rec.Key, rec.Fields, rec.TTL)
			} else {
				errs[i] = s.Put(gctx, rec.Key, rec.Value, rec.TTL)
			}
			return nil
		})
	}
	_ = g.Wait()

	var result BatchResult
	for i, err := range errs {
		if err == nil {
			result.Succeeded++
			continue
		}
		result.Failed++
		result.Failures = append(result.Failures, BatchFailure{Key: records[i].Key, Err: err})
	}
	if result.Failed > 0 {
		span.SetTag("error", true)
		s.log.Infof("PutMany: %d of %d records failed", result.Failed, len(records))
	}
	return result
}
