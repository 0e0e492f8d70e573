package relay

import (
	"context"
	"fmt"
	"testing"
)

func TestMemoryStore_AppendAssignsIncreasingSeq(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	ctx := context.Background()

	var last int64
	for i := 0; i < 5; i++ {
		res, err := s.Append(ctx, AppendInput{
			Category: CategoryChat,
			Content:  fmt.Sprintf("msg %d", i),
			DedupKey: fmt.Sprintf("c1-%d", i),
		})
		if err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
		if res.Duplicated {
			t.Fatalf("append %d: unexpected duplicate", i)
		}
		if res.Stored.Seq != last+1 {
			t.Fatalf("append %d: seq=%d want=%d", i, res.Stored.Seq, last+1)
		}
		last = res.Stored.Seq
	}
}

func TestMemoryStore_AppendIsIdempotentPerDedupKey(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	ctx := context.Background()

	first, err := s.Append(ctx, AppendInput{Category: CategoryChat, Content: "hello", DedupKey: "c1-0"})
	if err != nil {
		t.Fatalf("first append: %v", err)
	}
	if first.Duplicated {
		t.Fatalf("first append resolved duplicate")
	}
	if first.Stored.Seq != 1 {
		t.Fatalf("first append seq=%d want=1", first.Stored.Seq)
	}

	second, err := s.Append(ctx, AppendInput{Category: CategoryChat, Content: "hello", DedupKey: "c1-0"})
	if err != nil {
		t.Fatalf("second append: %v", err)
	}
	if !second.Duplicated {
		t.Fatalf("second append did not resolve duplicate")
	}
	if second.Stored.Seq != first.Stored.Seq {
		t.Fatalf("duplicate seq=%d want=%d", second.Stored.Seq, first.Stored.Seq)
	}

	out, err := s.ReadFrom(ctx, ReadFromInput{AfterSeq: 0})
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(out.Records) != 1 {
		t.Fatalf("records=%d want=1", len(out.Records))
	}
}

func TestMemoryStore_SystemRecordsNeverDeduplicate(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		res, err := s.Append(ctx, AppendInput{Category: CategorySystem, Content: "s1 joined"})
		if err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
		if res.Duplicated {
			t.Fatalf("append %d: system record deduplicated", i)
		}
	}

	out, err := s.ReadFrom(ctx, ReadFromInput{AfterSeq: 0})
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(out.Records) != 3 {
		t.Fatalf("records=%d want=3", len(out.Records))
	}
}

func TestMemoryStore_ReadFromPagesAscending(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	ctx := context.Background()

	for i := 1; i <= 10; i++ {
		if _, err := s.Append(ctx, AppendInput{
			Category: CategoryChat,
			Content:  fmt.Sprintf("msg %d", i),
			DedupKey: fmt.Sprintf("c1-%d", i),
		}); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	out, err := s.ReadFrom(ctx, ReadFromInput{AfterSeq: 5, Limit: 3})
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(out.Records) != 3 {
		t.Fatalf("records=%d want=3", len(out.Records))
	}
	if !out.HasMore {
		t.Fatalf("expected HasMore")
	}
	for i, rec := range out.Records {
		want := int64(6 + i)
		if rec.Seq != want {
			t.Fatalf("record %d: seq=%d want=%d", i, rec.Seq, want)
		}
	}

	out, err = s.ReadFrom(ctx, ReadFromInput{AfterSeq: 8, Limit: 3})
	if err != nil {
		t.Fatalf("read tail: %v", err)
	}
	if len(out.Records) != 2 || out.HasMore {
		t.Fatalf("tail records=%d hasMore=%v; want 2 records, no more", len(out.Records), out.HasMore)
	}

	out, err = s.ReadFrom(ctx, ReadFromInput{AfterSeq: 10})
	if err != nil {
		t.Fatalf("read past end: %v", err)
	}
	if len(out.Records) != 0 || out.HasMore {
		t.Fatalf("past end records=%d hasMore=%v; want none", len(out.Records), out.HasMore)
	}
}

func TestMemoryStore_RejectsInvalidInput(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	ctx := context.Background()

	if _, err := s.Append(ctx, AppendInput{Category: "bogus", Content: "x"}); err == nil {
		t.Fatalf("expected error for invalid category")
	}
	if _, err := s.Append(ctx, AppendInput{Category: CategoryChat}); err == nil {
		t.Fatalf("expected error for empty content")
	}
}
