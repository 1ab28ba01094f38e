package search

import (
	"context"
	"database/sql"
	"fmt"
)

// PG searches active requests directly in Postgres. It is the
// authoritative fallback: unlike the Meilisearch index it can never hold
// a stale row, because it reads committed state.
type PG struct {
	db *sql.DB
}

func NewPG(db *sql.DB) *PG {
	return &PG{db: db}
}

// Search matches the query as a substring against the free-text fields of
// active requests, newest first.
func (p *PG) Search(ctx context.Context, q string, limit int) ([]Record, error) {
	pattern := "%" + q + "%"
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, submitter, organization, branch, problem, comment, created_at
		FROM requests
		WHERE NOT deleted
			AND (problem ILIKE $1 OR comment ILIKE $1 OR submitter ILIKE $1 OR organization ILIKE $1 OR branch ILIKE $1)
		ORDER BY id DESC
		LIMIT $2
	`, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("search requests: %w", err)
	}
	defer rows.Close()

	records := make([]Record, 0)
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.Submitter, &rec.Organization, &rec.Branch, &rec.Problem, &rec.Comment, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan search hit: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate search hits: %w", err)
	}
	return records, nil
}
