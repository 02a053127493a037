//go:build integration
// +build integration

package test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrEthical07/magiclink"
)

func TestRedisCompatMarkUsed(t *testing.T) {
	for _, mode := range redisModes(t) {
		t.Run(mode.name, func(t *testing.T) {
			rdb, cleanup := mode.setup(t)
			defer cleanup()

			store := magiclink.NewRedisUsedTokenStore(rdb, "mlu-compat")
			ctx := context.Background()
			exp := time.Now().Add(time.Minute)

			first, err := store.MarkUsed(ctx, "tok-1", "nonce-1", exp)
			if err != nil || !first {
				t.Fatalf("expected first mark, got %v, %v", first, err)
			}
			first, err = store.MarkUsed(ctx, "tok-1", "nonce-1", exp)
			if err != nil || first {
				t.Fatalf("expected duplicate mark, got %v, %v", first, err)
			}

			ttl, err := rdb.TTL(ctx, "mlu-compat:tok-1").Result()
			if err != nil {
				t.Fatalf("ttl: %v", err)
			}
			if ttl <= 0 || ttl > time.Minute {
				t.Fatalf("expected marker ttl bounded by token expiry, got %v", ttl)
			}
		})
	}
}

func TestRedisCompatRoundTrip(t *testing.T) {
	for _, mode := range redisModes(t) {
		t.Run(mode.name, func(t *testing.T) {
			rdb, cleanup := mode.setup(t)
			defer cleanup()

			h := newIntegrationHost(t, rdb)
			raw := h.issue(t)

			res, err := h.engine.Consume(context.Background(), raw)
			if err != nil || !res.Succeeded() {
				t.Fatalf("consume: %+v, %v", res, err)
			}
			if res.Response.Location != "https://portal.example.com/app" {
				t.Fatalf("unexpected location %q", res.Response.Location)
			}

			if _, err := h.engine.Consume(context.Background(), raw); !errors.Is(err, magiclink.ErrAlreadyUsed) {
				t.Fatalf("expected replay rejection, got %v", err)
			}
		})
	}
}

func TestRedisCompatConcurrentConsume(t *testing.T) {
	for _, mode := range redisModes(t) {
		t.Run(mode.name, func(t *testing.T) {
			rdb, cleanup := mode.setup(t)
			defer cleanup()

			h := newIntegrationHost(t, rdb)
			raw := h.issue(t)

			const workers = 64
			var (
				wg      sync.WaitGroup
				start   = make(chan struct{})
				winners atomic.Int32
			)
			wg.Add(workers)
			for i := 0; i < workers; i++ {
				go func() {
					defer wg.Done()
					<-start
					if res, err := h.engine.Consume(context.Background(), raw); err == nil && res.Succeeded() {
						winners.Add(1)
					}
				}()
			}
			close(start)
			wg.Wait()

			if winners.Load() != 1 {
				t.Fatalf("expected exactly one winner, got %d", winners.Load())
			}
		})
	}
}
