package vectorstore

import (
	"context"
	"fmt"

	"github.com/fyrsmithlabs/ctxfuse/internal/retrieval"
)

// Record is one indexed chunk as written to a backend.
type Record struct {
	ID          string
	DocumentID  string
	FileName    string
	SourceType  string
	RequesterID string
	Text        string
	Vector      []float32
	Extra       map[string]string
}

// Writer stores records into a namespace. Ingestion lives outside this
// module; Writer exists for seeding and tests.
type Writer interface {
	Upsert(ctx context.Context, namespace string, records []Record) error
}

// Store is a backend serving both retrieval roles.
type Store interface {
	retrieval.VectorQuerier
	retrieval.KeywordSearcher
	Writer
	Close() error
}

// Metadata flattens the record into payload form.
func (r Record) Metadata() map[string]string {
	md := make(map[string]string, len(r.Extra)+5)
	for k, v := range r.Extra {
		md[k] = v
	}
	set := func(k, v string) {
		if v != "" {
			md[k] = v
		}
	}
	set(retrieval.MetaDocumentID, r.DocumentID)
	set(retrieval.MetaFileName, r.FileName)
	set(retrieval.MetaSourceType, r.SourceType)
	set(retrieval.MetaRequesterID, r.RequesterID)
	return md
}

func (r Record) validate(dim int) error {
	if r.ID == "" {
		return fmt.Errorf("%w: record id required", ErrInvalidConfig)
	}
	if len(r.Vector) == 0 {
		return fmt.Errorf("%w: record %s has no vector", ErrDimensionMismatch, r.ID)
	}
	if dim > 0 && len(r.Vector) != dim {
		return fmt.Errorf("%w: record %s has %d dimensions, want %d", ErrDimensionMismatch, r.ID, len(r.Vector), dim)
	}
	return nil
}

// matchFromStrings builds a RawMatch from string metadata plus chunk text.
func matchFromStrings(id string, score float64, md map[string]string, text string) retrieval.RawMatch {
	payload := make(map[string]interface{}, len(md)+1)
	for k, v := range md {
		payload[k] = v
	}
	if text != "" {
		payload[retrieval.MetaText] = text
	}
	m := retrieval.MatchFromMetadata(id, score, payload)
	delete(m.Extra, retrieval.MetaNamespace)
	return m
}
