// Package ledger records every asset handed out by provisioning, so a claimed
// or generated image always has a trace even if the caller never received it.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Sources of a provisioned asset.
const (
	SourceClient    = "client"
	SourceAIReuse   = "ai_reuse"
	SourceGenerated = "generated"
)

// Entry is one provisioned asset.
type Entry struct {
	ID        int64     `json:"id"`
	OwnerID   string    `json:"ownerId"`
	TopicKey  string    `json:"topicKey"`
	Tier      string    `json:"tier"`
	ObjectKey string    `json:"objectKey"`
	URL       string    `json:"url"`
	Source    string    `json:"source"`
	Prompt    string    `json:"prompt,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Ledger stores and lists entries.
type Ledger interface {
	Record(ctx context.Context, e Entry) error
	ListByOwner(ctx context.Context, ownerID string, limit int) ([]Entry, error)
}

// DefaultListLimit caps ListByOwner when the caller passes no limit.
const DefaultListLimit = 50

func clampLimit(limit int) int {
	if limit <= 0 || limit > 500 {
		return DefaultListLimit
	}
	return limit
}

// dbtx is the subset of *pgxpool.Pool used by Repository.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Repository persists entries in the asset_claims table.
type Repository struct {
	db dbtx
}

// NewRepository creates a Repository on a pgx pool or connection.
func NewRepository(db dbtx) *Repository {
	return &Repository{db: db}
}

// Record inserts e.
func (r *Repository) Record(ctx context.Context, e Entry) error {
	var prompt *string
	if e.Prompt != "" {
		prompt = &e.Prompt
	}
	_, err := r.db.Exec(ctx,
		`INSERT INTO asset_claims (owner_id, topic_key, tier, object_key, url, source, prompt)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		e.OwnerID, e.TopicKey, e.Tier, e.ObjectKey, e.URL, e.Source, prompt,
	)
	if err != nil {
		return fmt.Errorf("record claim: %w", err)
	}
	return nil
}

// ListByOwner returns the most recent entries of ownerID, newest first.
func (r *Repository) ListByOwner(ctx context.Context, ownerID string, limit int) ([]Entry, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, owner_id, topic_key, tier, object_key, url, source, COALESCE(prompt, ''), created_at
		 FROM asset_claims WHERE owner_id = $1
		 ORDER BY created_at DESC, id DESC LIMIT $2`,
		ownerID, clampLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("list claims: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.OwnerID, &e.TopicKey, &e.Tier, &e.ObjectKey, &e.URL, &e.Source, &e.Prompt, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan claim: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list claims: %w", err)
	}
	return entries, nil
}

// Memory keeps entries in process memory, newest last. It backs the service
// when no database is configured.
type Memory struct {
	mu       sync.Mutex
	entries  []Entry
	capacity int
	nextID   int64
	now      func() time.Time
}

// NewMemory keeps at most capacity entries; capacity <= 0 means 1000.
func NewMemory(capacity int) *Memory {
	if capacity <= 0 {
		capacity = 1000
	}
	return &Memory{capacity: capacity, now: time.Now}
}

// Record appends e with the next id and the current time, dropping the oldest
// entry once capacity is exceeded.
func (m *Memory) Record(ctx context.Context, e Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if e.OwnerID == "" {
		return errors.New("record claim: owner id is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	e.ID = m.nextID
	e.CreatedAt = m.now().UTC()
	m.entries = append(m.entries, e)
	if len(m.entries) > m.capacity {
		m.entries = m.entries[len(m.entries)-m.capacity:]
	}
	return nil
}

// ListByOwner returns up to limit entries of ownerID, newest first.
func (m *Memory) ListByOwner(ctx context.Context, ownerID string, limit int) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	limit = clampLimit(limit)
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []Entry{}
	for i := len(m.entries) - 1; i >= 0 && len(out) < limit; i-- {
		if m.entries[i].OwnerID == ownerID {
			out = append(out, m.entries[i])
		}
	}
	return out, nil
}

var (
	_ Ledger = (*Repository)(nil)
	_ Ledger = (*Memory)(nil)
)
