package retrieval

import (
	"fmt"
	"strings"
)

// AccessMode selects which partitions a query may read from.
type AccessMode int

const (
	// AccessUnified searches the shared corpus and the requester's private corpus.
	AccessUnified AccessMode = iota
	// AccessPrivateOnly searches only the requester's private corpus.
	AccessPrivateOnly
	// AccessSharedOnly searches only the shared corpus.
	AccessSharedOnly
)

// String returns the canonical name of the mode.
func (m AccessMode) String() string {
	switch m {
	case AccessUnified:
		return "unified"
	case AccessPrivateOnly:
		return "user"
	case AccessSharedOnly:
		return "system"
	default:
		return fmt.Sprintf("AccessMode(%d)", int(m))
	}
}

// Valid reports whether m is one of the declared modes.
func (m AccessMode) Valid() bool {
	switch m {
	case AccessUnified, AccessPrivateOnly, AccessSharedOnly:
		return true
	default:
		return false
	}
}

// ParseAccessMode maps a caller-supplied mode name to an AccessMode.
//
// Accepted names:
//   - "", "unified", "all"     -> AccessUnified
//   - "user", "private"        -> AccessPrivateOnly
//   - "system", "kb", "shared" -> AccessSharedOnly
func ParseAccessMode(s string) (AccessMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "unified", "all":
		return AccessUnified, nil
	case "user", "private":
		return AccessPrivateOnly, nil
	case "system", "kb", "shared":
		return AccessSharedOnly, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidAccessMode, s)
	}
}

// SourceType identifies the corpus a chunk belongs to.
type SourceType string

const (
	// SourceShared marks content from the shared knowledge base.
	SourceShared SourceType = "system"
	// SourcePrivate marks content owned by a single requester.
	SourcePrivate SourceType = "user"
	// SourceUnknown marks content whose stored source type is missing or unrecognized.
	SourceUnknown SourceType = ""
)

// ParseSourceType normalizes a stored source type value.
// Unrecognized values map to SourceUnknown so that they fail isolation checks.
func ParseSourceType(s string) SourceType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "system", "shared", "kb":
		return SourceShared
	case "user", "private":
		return SourcePrivate
	default:
		return SourceUnknown
	}
}

// Origin returns the human-readable corpus label shown to end users.
func (s SourceType) Origin() string {
	switch s {
	case SourceShared:
		return OriginShared
	case SourcePrivate:
		return OriginPrivate
	default:
		return OriginUnknown
	}
}

// Origin labels.
const (
	OriginShared  = "Shared Knowledge Base"
	OriginPrivate = "My Document"
	OriginUnknown = "Unknown Source"
)

// Metadata keys used in backend payloads and filters.
const (
	MetaDocumentID  = "document_id"
	MetaFileName    = "file_name"
	MetaSourceType  = "source_type"
	MetaRequesterID = "requester_id"
	MetaText        = "text"
	MetaNamespace   = "namespace"
)

// DefaultFileName is used when a match carries no file name.
const DefaultFileName = "Untitled Document"

// QueryContext is the request-scoped, immutable view of one retrieval call.
type QueryContext struct {
	RawQuery      string
	EnhancedQuery string
	RequesterID   string
	AccessMode    AccessMode
}

// Partition is an isolated retrieval scope.
type Partition struct {
	Kind      SourceType
	Namespace string
	Filter    map[string]string
	// RequesterID is set for private partitions only.
	RequesterID string
}

// filterCopy returns a copy of the partition filter so backends cannot mutate it.
func (p Partition) filterCopy() map[string]string {
	out := make(map[string]string, len(p.Filter))
	for k, v := range p.Filter {
		out[k] = v
	}
	return out
}

// RawMatch is one scored hit returned by a vector backend.
// Optional fields are empty strings when the backend payload lacks them.
type RawMatch struct {
	ID          string
	Score       float64
	DocumentID  string
	FileName    string
	SourceType  string
	RequesterID string
	Text        string
	Extra       map[string]string
}

// MatchFromMetadata builds a RawMatch from a loosely typed payload map.
func MatchFromMetadata(id string, score float64, metadata map[string]interface{}) RawMatch {
	m := RawMatch{ID: id, Score: score}
	for k, v := range metadata {
		s, ok := v.(string)
		if !ok {
			if v == nil {
				continue
			}
			s = fmt.Sprintf("%v", v)
		}
		switch k {
		case MetaDocumentID:
			m.DocumentID = s
		case MetaFileName:
			m.FileName = s
		case MetaSourceType:
			m.SourceType = s
		case MetaRequesterID:
			m.RequesterID = s
		case MetaText, "content":
			if m.Text == "" {
				m.Text = s
			}
		default:
			if m.Extra == nil {
				m.Extra = make(map[string]string)
			}
			m.Extra[k] = s
		}
	}
	return m
}

// ContextChunk is one ranked unit of retrieved text.
type ContextChunk struct {
	ID             string     `json:"id"`
	DocumentID     string     `json:"document_id"`
	FileName       string     `json:"file_name"`
	Text           string     `json:"text"`
	SourceType     SourceType `json:"source_type"`
	Origin         string     `json:"origin"`
	Score          float64    `json:"score"`
	BoostedScore   float64    `json:"boosted_score"`
	IsKeywordMatch bool       `json:"is_keyword_match"`

	// ownerID is the stored requester id, used only for isolation checks.
	ownerID string
}
