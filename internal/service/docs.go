package service

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/sharecast/relay/internal/domain"
)

// Docs is the in-process document persistence collaborator. Save is the
// durable write the `save` event flushes to; Load seeds the echo cache for
// the first connection to a document.
type Docs struct {
	mu   sync.RWMutex
	docs map[string]string
}

func NewDocs() *Docs {
	return &Docs{docs: make(map[string]string)}
}

// Put registers a document so connections to it are admitted. The creating
// endpoint calls this; Load refuses unknown ids.
func (d *Docs) Put(docID, content string) {
	d.mu.Lock()
	d.docs[docID] = content
	d.mu.Unlock()
}

func (d *Docs) Load(ctx context.Context, docID string) (string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	content, ok := d.docs[docID]
	if !ok {
		return "", domain.ErrDocumentMissing
	}
	return content, nil
}

func (d *Docs) Save(ctx context.Context, docID string, content string) error {
	d.mu.Lock()
	d.docs[docID] = content
	d.mu.Unlock()
	log.Info().Str("module", "service.docs").Str("doc_id", docID).Int("bytes", len(content)).Msg("document saved")
	return nil
}
