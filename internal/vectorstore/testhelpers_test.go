package vectorstore

import (
	"context"
	"math"

	"github.com/fyrsmithlabs/ctxfuse/internal/retrieval"
)

const (
	sharedNS  = retrieval.DefaultSharedNamespace
	aliceNS   = retrieval.DefaultPrivateNamespacePrefix + "alice"
	bobNS     = retrieval.DefaultPrivateNamespacePrefix + "bob"
	testDelta = 1e-5
)

var (
	queryVector  = []float32{1, 0}
	sharedFilter = map[string]string{retrieval.MetaSourceType: string(retrieval.SourceShared)}
	aliceFilter  = map[string]string{
		retrieval.MetaSourceType:  string(retrieval.SourcePrivate),
		retrieval.MetaRequesterID: "alice",
	}
)

// unitAt returns a 2-d unit vector whose cosine with queryVector is sim.
func unitAt(sim float64) []float32 {
	return []float32{float32(sim), float32(math.Sqrt(1 - sim*sim))}
}

func sharedRecord(id, file string, sim float64) Record {
	return Record{
		ID:         id,
		DocumentID: "doc-" + id,
		FileName:   file,
		SourceType: string(retrieval.SourceShared),
		Text:       "text of " + id,
		Vector:     unitAt(sim),
	}
}

func privateRecord(owner, id, file string, sim float64) Record {
	return Record{
		ID:          id,
		DocumentID:  "doc-" + id,
		FileName:    file,
		SourceType:  string(retrieval.SourcePrivate),
		RequesterID: owner,
		Text:        "text of " + id,
		Vector:      unitAt(sim),
	}
}

type staticEmbedder []float32

func (e staticEmbedder) EmbedQuery(context.Context, string) ([]float32, error) {
	return e, nil
}

func matchIDs(matches []retrieval.RawMatch) []string {
	ids := make([]string, len(matches))
	for i, m := range matches {
		ids[i] = m.ID
	}
	return ids
}
