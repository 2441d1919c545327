package service

import (
	"context"
	"sync"

	"github.com/sharecast/relay/internal/domain"
)

// Catalog is the in-process file-metadata collaborator. Entries are
// registered by the upload endpoint and resolved when a participant shares
// the file into a room.
type Catalog struct {
	mu    sync.RWMutex
	files map[string]domain.SharedFile
}

func NewCatalog() *Catalog {
	return &Catalog{files: make(map[string]domain.SharedFile)}
}

func (c *Catalog) Register(f domain.SharedFile) {
	c.mu.Lock()
	c.files[f.ID] = f
	c.mu.Unlock()
}

func (c *Catalog) Lookup(ctx context.Context, fileID string) (*domain.SharedFile, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	f, ok := c.files[fileID]
	if !ok {
		return nil, domain.ErrFileNotFound
	}
	return &f, nil
}
