package search

import (
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"
)

const idxRequests = "helpdesk_requests"

// Meili indexes and searches requests via Meilisearch.
type Meili struct {
	client  meili.ServiceManager
	healthy atomic.Bool
	done    chan struct{}
}

// NewMeili creates a Meilisearch client and configures the request index.
// An unreachable instance is tolerated: the health loop flips the client
// back on once Meilisearch recovers.
func NewMeili(url, apiKey string) *Meili {
	client := meili.New(url, meili.WithAPIKey(apiKey))

	m := &Meili{
		client: client,
		done:   make(chan struct{}),
	}

	if _, err := client.Health(); err != nil {
		log.Printf("search: meilisearch unavailable at %s: %v", url, err)
		m.healthy.Store(false)
	} else {
		m.healthy.Store(true)
		m.configureIndex()
	}

	go m.healthLoop()
	return m
}

func (m *Meili) configureIndex() {
	if _, err := m.client.CreateIndex(&meili.IndexConfig{
		Uid:        idxRequests,
		PrimaryKey: "id",
	}); err != nil {
		log.Printf("search: create index %s (may already exist): %v", idxRequests, err)
	}

	index := m.client.Index(idxRequests)
	searchable := []string{"problem", "comment", "submitter", "organization", "branch"}
	if _, err := index.UpdateSearchableAttributes(&searchable); err != nil {
		log.Printf("search: update searchable attrs for %s: %v", idxRequests, err)
	}
}

func (m *Meili) healthLoop() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			_, err := m.client.Health()
			wasHealthy := m.healthy.Load()
			m.healthy.Store(err == nil)
			if err == nil && !wasHealthy {
				log.Println("search: meilisearch recovered, reconfiguring index")
				m.configureIndex()
			}
		}
	}
}

// Close stops the background health monitor.
func (m *Meili) Close() {
	close(m.done)
}

// Healthy reports whether Meilisearch is reachable.
func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

// Search queries the request index.
func (m *Meili) Search(q string, limit int) ([]Record, error) {
	if !m.healthy.Load() {
		return nil, fmt.Errorf("meilisearch unhealthy")
	}

	resp, err := m.client.Index(idxRequests).Search(q, &meili.SearchRequest{
		Limit: int64(limit),
	})
	if err != nil {
		m.healthy.Store(false)
		return nil, fmt.Errorf("meilisearch search: %w", err)
	}

	records := make([]Record, 0, len(resp.Hits))
	for _, hit := range resp.Hits {
		records = append(records, hitToRecord(hit))
	}
	return records, nil
}

// IndexRequest adds or updates a request in the search index.
func (m *Meili) IndexRequest(rec Record) error {
	_, err := m.client.Index(idxRequests).AddDocuments([]Record{rec}, nil)
	return err
}

// RemoveRequest drops a request from the search index.
func (m *Meili) RemoveRequest(id int64) error {
	_, err := m.client.Index(idxRequests).DeleteDocument(strconv.FormatInt(id, 10), nil)
	return err
}

func hitToRecord(hit meili.Hit) Record {
	var rec Record
	raw, err := json.Marshal(map[string]json.RawMessage(hit))
	if err != nil {
		return rec
	}
	_ = json.Unmarshal(raw, &rec)
	return rec
}
