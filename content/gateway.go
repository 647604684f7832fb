package content

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// DefaultKind is the record type page documents are stored under.
const DefaultKind = "page_content"

// Record is a stored page document as the backing store sees it.
type Record struct {
	ID        string
	Kind      string
	Handle    string
	Data      []byte
	UpdatedAt time.Time
}

// Store is an upsert-oriented document store addressed by (kind, handle).
// Missing handles and ids are reported as ErrNotFound.
type Store interface {
	Upsert(ctx context.Context, kind, handle string, data []byte) (Record, error)
	Fetch(ctx context.Context, kind, handle string) (Record, error)
	LookupID(ctx context.Context, kind, handle string) (string, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, kind string) ([]Record, error)
}

// Gateway maps page handles to records in a Store. There is no version check
// on Upsert: concurrent saves of one handle are last-write-wins.
type Gateway struct {
	store  Store
	kind   string
	logger *slog.Logger
}

// NewGateway returns a Gateway over store. An empty kind means DefaultKind.
func NewGateway(store Store, kind string, logger *slog.Logger) *Gateway {
	if strings.TrimSpace(kind) == "" {
		kind = DefaultKind
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{store: store, kind: kind, logger: logger}
}

// Kind returns the record type this gateway reads and writes.
func (g *Gateway) Kind() string { return g.kind }

// Upsert creates or replaces the document stored under handle.
func (g *Gateway) Upsert(ctx context.Context, handle string, doc PageContent) (Record, error) {
	if !ValidHandle(handle) {
		return Record{}, fmt.Errorf("%w: handle %q", ErrInvalidInput, handle)
	}
	if err := doc.Validate(); err != nil {
		return Record{}, err
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return Record{}, fmt.Errorf("encode page %q: %w", handle, err)
	}
	rec, err := g.store.Upsert(ctx, g.kind, handle, data)
	if err != nil {
		return Record{}, fmt.Errorf("upsert page %q: %w", handle, err)
	}
	g.logger.Info("page saved", "handle", handle, "id", rec.ID, "sections", len(doc.Sections))
	return rec, nil
}

// Fetch returns the stored, unresolved document for handle. A handle that
// was never saved yields Empty() and no error.
func (g *Gateway) Fetch(ctx context.Context, handle string) (PageContent, error) {
	if !ValidHandle(handle) {
		return PageContent{}, fmt.Errorf("%w: handle %q", ErrInvalidInput, handle)
	}
	rec, err := g.store.Fetch(ctx, g.kind, handle)
	if errors.Is(err, ErrNotFound) {
		return Empty(), nil
	}
	if err != nil {
		return PageContent{}, fmt.Errorf("fetch page %q: %w", handle, err)
	}
	if len(rec.Data) == 0 {
		return Empty(), nil
	}
	var doc PageContent
	if err := json.Unmarshal(rec.Data, &doc); err != nil {
		return PageContent{}, fmt.Errorf("decode page %q: %w", handle, err)
	}
	return doc, nil
}

// Delete removes a document by record id, or by handle when id is empty. A
// handle delete costs one lookup and one delete; an unknown handle returns
// ErrNotFound without attempting a delete.
func (g *Gateway) Delete(ctx context.Context, handle, id string) error {
	id = strings.TrimSpace(id)
	handle = strings.TrimSpace(handle)
	if id == "" {
		if handle == "" {
			return fmt.Errorf("%w: handle or id is required", ErrInvalidInput)
		}
		found, err := g.store.LookupID(ctx, g.kind, handle)
		if err != nil {
			return fmt.Errorf("lookup page %q: %w", handle, err)
		}
		if found == "" {
			return fmt.Errorf("lookup page %q: %w", handle, ErrNotFound)
		}
		id = found
	}
	if err := g.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete page %s: %w", id, err)
	}
	g.logger.Info("page deleted", "handle", handle, "id", id)
	return nil
}

// List returns every stored document of the gateway's kind.
func (g *Gateway) List(ctx context.Context) ([]Record, error) {
	recs, err := g.store.List(ctx, g.kind)
	if err != nil {
		return nil, fmt.Errorf("list pages: %w", err)
	}
	return recs, nil
}
