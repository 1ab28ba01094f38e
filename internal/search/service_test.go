package search

import (
	"context"
	"errors"
	"testing"
)

type fakeFallback struct {
	searchFn func(context.Context, string, int) ([]Record, error)
	calls    int
}

func (f *fakeFallback) Search(ctx context.Context, q string, limit int) ([]Record, error) {
	f.calls++
	if f.searchFn != nil {
		return f.searchFn(ctx, q, limit)
	}
	return nil, nil
}

func TestSearchFallsBackWhenMeiliAbsent(t *testing.T) {
	fb := &fakeFallback{
		searchFn: func(_ context.Context, q string, _ int) ([]Record, error) {
			if q != "cracked" {
				t.Errorf("expected query to pass through, got %q", q)
			}
			return []Record{{ID: 1, Problem: "screen cracked"}}, nil
		},
	}
	svc := NewService(nil, fb)

	records := svc.Search(context.Background(), "cracked", 10)
	if len(records) != 1 || records[0].ID != 1 {
		t.Fatalf("expected one fallback hit, got %v", records)
	}
	if fb.calls != 1 {
		t.Errorf("expected one fallback call, got %d", fb.calls)
	}
}

func TestSearchBlankQueryShortCircuits(t *testing.T) {
	fb := &fakeFallback{}
	svc := NewService(nil, fb)

	records := svc.Search(context.Background(), "   ", 10)
	if len(records) != 0 {
		t.Errorf("expected empty result for blank query, got %v", records)
	}
	if fb.calls != 0 {
		t.Errorf("blank query must not hit the store, got %d calls", fb.calls)
	}
}

func TestSearchFallbackErrorYieldsEmptyResult(t *testing.T) {
	fb := &fakeFallback{
		searchFn: func(context.Context, string, int) ([]Record, error) {
			return nil, errors.New("db down")
		},
	}
	svc := NewService(nil, fb)

	records := svc.Search(context.Background(), "anything", 10)
	if records == nil || len(records) != 0 {
		t.Errorf("expected non-nil empty result, got %v", records)
	}
}

func TestSearchClampsLimit(t *testing.T) {
	var gotLimit int
	fb := &fakeFallback{
		searchFn: func(_ context.Context, _ string, limit int) ([]Record, error) {
			gotLimit = limit
			return nil, nil
		},
	}
	svc := NewService(nil, fb)

	svc.Search(context.Background(), "q", 0)
	if gotLimit != 20 {
		t.Errorf("expected default limit 20, got %d", gotLimit)
	}

	svc.Search(context.Background(), "q", 5000)
	if gotLimit != 20 {
		t.Errorf("expected oversized limit clamped to 20, got %d", gotLimit)
	}
}

func TestIndexAndRemoveAreNoOpsWithoutMeili(t *testing.T) {
	svc := NewService(nil, &fakeFallback{})
	svc.IndexRequest(Record{ID: 1})
	svc.RemoveRequest(1)

	var nilSvc *Service
	if got := nilSvc.Search(context.Background(), "q", 5); len(got) != 0 {
		t.Errorf("nil service should return empty result, got %v", got)
	}
	nilSvc.IndexRequest(Record{ID: 2})
	nilSvc.RemoveRequest(2)
}
