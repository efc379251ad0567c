package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/dmitrymomot/subsync/pkg/license"
)

// MemoryClient is an in-memory Client for tests and local development. It
// stores metadata as raw key-value documents, matching the directory's view
// of the record, so patch semantics (including key removal) behave exactly
// like the real API.
type MemoryClient struct {
	mu      sync.RWMutex
	records map[string]*memoryRecord
	tokens  map[string]string
}

type memoryRecord struct {
	email    string
	metadata map[string]any
}

// NewMemoryClient returns an empty in-memory directory.
func NewMemoryClient() *MemoryClient {
	return &MemoryClient{
		records: make(map[string]*memoryRecord),
		tokens:  make(map[string]string),
	}
}

// RegisterToken associates a bearer token with a user id for ResolveToken.
func (c *MemoryClient) RegisterToken(token, userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokens[token] = userID
}

// ResolveToken implements TokenResolver against the registered tokens.
func (c *MemoryClient) ResolveToken(ctx context.Context, token string) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	id, ok := c.tokens[token]
	if !ok {
		return "", ErrUnauthorized
	}
	return id, nil
}

func (c *MemoryClient) GetUser(ctx context.Context, id string) (User, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	rec, ok := c.records[id]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return c.toUser(id, rec)
}

func (c *MemoryClient) GetUsersByEmail(ctx context.Context, email string) ([]User, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var users []User
	for id, rec := range c.records {
		if strings.EqualFold(rec.email, email) {
			u, err := c.toUser(id, rec)
			if err != nil {
				return nil, err
			}
			users = append(users, u)
		}
	}
	return users, nil
}

func (c *MemoryClient) CreateUser(ctx context.Context, email string) (User, error) {
	if !strings.Contains(email, "@") {
		return User{}, ErrInvalidEmail
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	id := "dir|" + uuid.NewString()
	c.records[id] = &memoryRecord{
		email:    email,
		metadata: make(map[string]any),
	}
	return User{ID: id, Email: email}, nil
}

func (c *MemoryClient) UpdateMetadata(ctx context.Context, id string, patch Patch) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, ok := c.records[id]
	if !ok {
		return ErrUserNotFound
	}

	for key, value := range patch {
		if value == nil || value == Deleted {
			delete(rec.metadata, key)
			continue
		}
		rec.metadata[key] = value
	}
	return nil
}

func (c *MemoryClient) SearchMembersByOwner(ctx context.Context, ownerID string) ([]User, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var users []User
	for id, rec := range c.records {
		if owner, _ := rec.metadata[KeyOwnerID].(string); owner == ownerID {
			u, err := c.toUser(id, rec)
			if err != nil {
				return nil, err
			}
			users = append(users, u)
		}
	}
	return users, nil
}

// toUser decodes the raw document into the typed metadata record via a JSON
// round trip, the same conversion the HTTP client performs on real
// responses.
func (c *MemoryClient) toUser(id string, rec *memoryRecord) (User, error) {
	raw, err := json.Marshal(maps.Clone(rec.metadata))
	if err != nil {
		return User{}, fmt.Errorf("encode metadata for %s: %w", id, err)
	}

	var md license.Metadata
	if err := json.Unmarshal(raw, &md); err != nil {
		return User{}, fmt.Errorf("decode metadata for %s: %w", id, err)
	}

	return User{ID: id, Email: rec.email, Metadata: md}, nil
}
