package relay

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Integration tests are opt-in and require BEACON_DATABASE_URL.
// In non-CI runs, unreachable Postgres skips these tests to keep local runs fast.

func TestPostgresStore_AppendAssignsIncreasingSeq(t *testing.T) {
	t.Parallel()

	pool := mustOpenTestPool(t)
	defer pool.Close()

	store, _ := mustNewLogStore(t, pool)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	var last int64
	for i := 1; i <= 5; i++ {
		out, err := store.Append(ctx, AppendInput{
			Category: CategoryChat,
			Content:  fmt.Sprintf("s1: msg %d", i),
			DedupKey: fmt.Sprintf("s1-%d", i),
		})
		if err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
		if out.Duplicated {
			t.Fatalf("append %d flagged duplicated", i)
		}
		if out.Stored.Seq <= last {
			t.Fatalf("seq not increasing: %d after %d", out.Stored.Seq, last)
		}
		last = out.Stored.Seq
	}
}

func TestPostgresStore_DuplicateDedupKeyReturnsOriginal(t *testing.T) {
	t.Parallel()

	pool := mustOpenTestPool(t)
	defer pool.Close()

	store, _ := mustNewLogStore(t, pool)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	first, err := store.Append(ctx, AppendInput{Category: CategoryChat, Content: "s1: hi", DedupKey: "s1-1"})
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	// Retried send: same dedup key, possibly different content.
	again, err := store.Append(ctx, AppendInput{Category: CategoryChat, Content: "s1: hi (retry)", DedupKey: "s1-1"})
	if err != nil {
		t.Fatalf("retry append: %v", err)
	}
	if !again.Duplicated {
		t.Fatalf("expected duplicated result")
	}
	if again.Stored.Seq != first.Stored.Seq || again.Stored.Content != first.Stored.Content {
		t.Fatalf("duplicate returned %+v, want original %+v", again.Stored, first.Stored)
	}

	// The duplicate must not burn a sequence number.
	next, err := store.Append(ctx, AppendInput{Category: CategoryChat, Content: "s1: next", DedupKey: "s1-2"})
	if err != nil {
		t.Fatalf("next append: %v", err)
	}
	if next.Stored.Seq != first.Stored.Seq+1 {
		t.Fatalf("seq after duplicate = %d, want %d", next.Stored.Seq, first.Stored.Seq+1)
	}
}

func TestPostgresStore_ConcurrentAppendsStayGapFree(t *testing.T) {
	t.Parallel()

	pool := mustOpenTestPool(t)
	defer pool.Close()

	store, _ := mustNewLogStore(t, pool)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	const writers = 8
	const perWriter = 10

	var wg sync.WaitGroup
	errCh := make(chan error, writers)
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				_, err := store.Append(ctx, AppendInput{
					Category: CategoryChat,
					Content:  fmt.Sprintf("w%d: msg %d", w, i),
					DedupKey: fmt.Sprintf("w%d-%d", w, i),
				})
				if err != nil {
					errCh <- err
					return
				}
			}
		}(w)
	}
	wg.Wait()
	close(errCh)
	if err := <-errCh; err != nil {
		t.Fatalf("concurrent append: %v", err)
	}

	out, err := store.ReadFrom(ctx, ReadFromInput{AfterSeq: 0, Limit: writers*perWriter + 1})
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(out.Records) != writers*perWriter {
		t.Fatalf("records=%d want=%d", len(out.Records), writers*perWriter)
	}
	for i, rec := range out.Records {
		if rec.Seq != int64(i+1) {
			t.Fatalf("gap at position %d: seq=%d", i, rec.Seq)
		}
	}
}

func TestPostgresStore_ReadFromPagesAscending(t *testing.T) {
	t.Parallel()

	pool := mustOpenTestPool(t)
	defer pool.Close()

	store, _ := mustNewLogStore(t, pool)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	for i := 1; i <= 7; i++ {
		if _, err := store.Append(ctx, AppendInput{
			Category: CategoryChat,
			Content:  fmt.Sprintf("s1: msg %d", i),
			DedupKey: fmt.Sprintf("s1-%d", i),
		}); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	var seqs []int64
	after := int64(2)
	for {
		out, err := store.ReadFrom(ctx, ReadFromInput{AfterSeq: after, Limit: 2})
		if err != nil {
			t.Fatalf("read after=%d: %v", after, err)
		}
		for _, rec := range out.Records {
			seqs = append(seqs, rec.Seq)
			after = rec.Seq
		}
		if !out.HasMore {
			break
		}
	}

	want := []int64{3, 4, 5, 6, 7}
	if len(seqs) != len(want) {
		t.Fatalf("seqs=%v want=%v", seqs, want)
	}
	for i := range want {
		if seqs[i] != want[i] {
			t.Fatalf("seqs=%v want=%v", seqs, want)
		}
	}
}

// ---- helpers ----

func mustNewLogStore(t *testing.T, pool *pgxpool.Pool) (*PostgresStore, string) {
	t.Helper()

	schema := mustCreateTestSchema(t, pool)
	t.Cleanup(func() { mustDropSchema(t, pool, schema) })

	s, err := NewPostgresStore(pool, WithSchema(schema))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	if err := s.EnsureSchema(ctx); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	return s, schema
}

func mustOpenTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	raw := strings.TrimSpace(os.Getenv("BEACON_DATABASE_URL"))
	if raw == "" {
		t.Skip("integration test skipped: BEACON_DATABASE_URL is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 12*time.Second)
	defer cancel()

	cfg, err := pgxpool.ParseConfig(raw)
	if err != nil {
		t.Fatalf("parse BEACON_DATABASE_URL: %v", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		t.Fatalf("connect postgres: %v", err)
	}

	// Validate acquire quickly (fast fail).
	pingCtx, pingCancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer pingCancel()

	c, err := pool.Acquire(pingCtx)
	if err != nil {
		pool.Close()
		if shouldSkipIntegration(err) {
			t.Skipf("integration test skipped: Postgres unreachable (BEACON_DATABASE_URL set): %v", err)
		}
		t.Fatalf("acquire: %v", err)
	}
	c.Release()

	return pool
}

func mustCreateTestSchema(t *testing.T, pool *pgxpool.Pool) string {
	t.Helper()

	id, err := NewSessionID(time.Now().UTC())
	if err != nil {
		t.Fatalf("ulid: %v", err)
	}
	schema := "beacon_it_" + strings.ToLower(id)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := pool.Exec(ctx, `CREATE SCHEMA `+pgx.Identifier{schema}.Sanitize()); err != nil {
		t.Fatalf("create schema: %v", err)
	}
	return schema
}

func mustDropSchema(t *testing.T, pool *pgxpool.Pool, schema string) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, _ = pool.Exec(ctx, `DROP SCHEMA IF EXISTS `+pgx.Identifier{schema}.Sanitize()+` CASCADE`)
}

func shouldSkipIntegration(err error) bool {
	if err == nil {
		return false
	}
	if os.Getenv("CI") != "" {
		return false
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "context deadline exceeded") ||
		strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "dial tcp") ||
		strings.Contains(msg, "no such host") {
		return true
	}
	return false
}
