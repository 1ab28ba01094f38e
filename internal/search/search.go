// Package search provides operator-panel text search over active support
// requests: Meilisearch when configured and healthy, Postgres otherwise.
package search

import (
	"context"
	"log"
	"strings"
	"time"
)

// Record is the indexed projection of a request.
type Record struct {
	ID           int64     `json:"id"`
	Submitter    string    `json:"submitter"`
	Organization string    `json:"organization"`
	Branch       string    `json:"branch"`
	Problem      string    `json:"problem"`
	Comment      string    `json:"comment"`
	CreatedAt    time.Time `json:"created_at"`
}

// Fallback is the authoritative Postgres-side search used when
// Meilisearch is absent or unhealthy.
type Fallback interface {
	Search(ctx context.Context, q string, limit int) ([]Record, error)
}

// Service is the facade that tries Meilisearch first and falls back to
// the database.
type Service struct {
	meili    *Meili
	fallback Fallback
}

// NewService creates a search service. meili may be nil if Meilisearch is
// not configured.
func NewService(meili *Meili, fallback Fallback) *Service {
	return &Service{meili: meili, fallback: fallback}
}

// Search runs a query, preferring Meilisearch when healthy. Errors never
// surface to the caller; a failed search is an empty result.
func (s *Service) Search(ctx context.Context, q string, limit int) []Record {
	if s == nil || strings.TrimSpace(q) == "" {
		return []Record{}
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	if s.meili != nil && s.meili.Healthy() {
		records, err := s.meili.Search(q, limit)
		if err == nil {
			return nonNil(records)
		}
		log.Printf("search: meilisearch error, falling back to postgres: %v", err)
	}

	if s.fallback == nil {
		return []Record{}
	}
	records, err := s.fallback.Search(ctx, q, limit)
	if err != nil {
		log.Printf("search: postgres fallback: %v", err)
		return []Record{}
	}
	return nonNil(records)
}

// IndexRequest indexes a request (fire-and-forget to Meilisearch). The
// attempt is made even when the health probe last failed: a write that
// races a recovery should land rather than be skipped.
func (s *Service) IndexRequest(rec Record) {
	if s == nil || s.meili == nil {
		return
	}
	go func() {
		if err := s.meili.IndexRequest(rec); err != nil {
			log.Printf("search: index request %d: %v", rec.ID, err)
		}
	}()
}

// RemoveRequest drops a soft-deleted request from the Meilisearch index
// (fire-and-forget). Attempted regardless of health, for the same reason
// as IndexRequest; a removal lost to an outage leaves a stale entry in
// the secondary index only, the Postgres fallback excludes deleted rows.
func (s *Service) RemoveRequest(id int64) {
	if s == nil || s.meili == nil {
		return
	}
	go func() {
		if err := s.meili.RemoveRequest(id); err != nil {
			log.Printf("search: remove request %d: %v", id, err)
		}
	}()
}

func nonNil(records []Record) []Record {
	if records == nil {
		return []Record{}
	}
	return records
}
