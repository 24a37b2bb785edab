package vectorstore

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/fyrsmithlabs/ctxfuse/internal/retrieval"
)

// AllowedFilterKeys are the payload keys a filter may constrain.
var AllowedFilterKeys = map[string]struct{}{
	retrieval.MetaSourceType:  {},
	retrieval.MetaRequesterID: {},
	retrieval.MetaDocumentID:  {},
	retrieval.MetaFileName:    {},
}

// namespacePattern allows the characters of "system-kb" and "user-<requester id>".
var namespacePattern = regexp.MustCompile(`^[A-Za-z0-9_.@:-]{1,160}$`)

// ValidateNamespace checks a namespace name.
func ValidateNamespace(ns string) error {
	if !namespacePattern.MatchString(ns) {
		return fmt.Errorf("%w: %q", ErrInvalidNamespace, ns)
	}
	return nil
}

// ValidateFilter rejects unknown keys, empty values and filters without source_type.
func ValidateFilter(filter map[string]string) error {
	if _, ok := filter[retrieval.MetaSourceType]; !ok {
		return fmt.Errorf("%w: %s is required", ErrInvalidFilter, retrieval.MetaSourceType)
	}
	for k, v := range filter {
		if _, ok := AllowedFilterKeys[k]; !ok {
			return fmt.Errorf("%w: unsupported key %q", ErrInvalidFilter, k)
		}
		if v == "" {
			return fmt.Errorf("%w: empty value for %q", ErrInvalidFilter, k)
		}
	}
	return nil
}

// sortedKeys returns filter keys in a stable order for deterministic queries.
func sortedKeys(filter map[string]string) []string {
	keys := make([]string, 0, len(filter))
	for k := range filter {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// matchesFilter reports whether metadata satisfies every filter entry.
func matchesFilter(metadata, filter map[string]string) bool {
	for k, v := range filter {
		if metadata[k] != v {
			return false
		}
	}
	return true
}

// UnescapePattern turns a regexp.QuoteMeta result back into its literal.
func UnescapePattern(pattern string) string {
	if !strings.Contains(pattern, `\`) {
		return pattern
	}
	var b strings.Builder
	b.Grow(len(pattern))
	escaped := false
	for _, r := range pattern {
		if r == '\\' && !escaped {
			escaped = true
			continue
		}
		escaped = false
		b.WriteRune(r)
	}
	return b.String()
}

// compileKeyword compiles an escaped pattern for case-insensitive matching.
func compileKeyword(pattern string) (*regexp.Regexp, error) {
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return nil, fmt.Errorf("%w: keyword pattern: %v", ErrInvalidFilter, err)
	}
	return re, nil
}
