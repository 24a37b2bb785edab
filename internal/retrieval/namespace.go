package retrieval

import (
	"fmt"
	"regexp"
	"strings"
)

// Default partition namespaces.
const (
	DefaultSharedNamespace        = "system-kb"
	DefaultPrivateNamespacePrefix = "user-"
)

const maxRequesterIDLen = 128

var requesterIDPattern = regexp.MustCompile(`^[A-Za-z0-9_.@:-]+$`)

// ValidateRequesterID checks the format of a requester id.
func ValidateRequesterID(id string) error {
	if id == "" {
		return ErrMissingRequester
	}
	if len(id) > maxRequesterIDLen {
		return fmt.Errorf("%w: exceeds %d characters", ErrInvalidRequester, maxRequesterIDLen)
	}
	if !requesterIDPattern.MatchString(id) {
		return fmt.Errorf("%w: %q contains invalid characters", ErrInvalidRequester, id)
	}
	return nil
}

// Resolver maps an access mode and requester to the partitions to query.
type Resolver struct {
	sharedNamespace string
	privatePrefix   string
}

// NewResolver creates a resolver. Empty arguments select the defaults.
func NewResolver(sharedNamespace, privatePrefix string) *Resolver {
	if sharedNamespace == "" {
		sharedNamespace = DefaultSharedNamespace
	}
	if privatePrefix == "" {
		privatePrefix = DefaultPrivateNamespacePrefix
	}
	return &Resolver{sharedNamespace: sharedNamespace, privatePrefix: privatePrefix}
}

// Resolve returns the ordered partitions for mode.
// Shared always precedes Private. A private partition is never built without a valid requester id.
func (r *Resolver) Resolve(mode AccessMode, requesterID string) ([]Partition, error) {
	requesterID = strings.TrimSpace(requesterID)

	switch mode {
	case AccessUnified:
		private, err := r.private(requesterID)
		if err != nil {
			return nil, err
		}
		return []Partition{r.shared(), private}, nil
	case AccessSharedOnly:
		return []Partition{r.shared()}, nil
	case AccessPrivateOnly:
		private, err := r.private(requesterID)
		if err != nil {
			return nil, err
		}
		return []Partition{private}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidAccessMode, mode)
	}
}

func (r *Resolver) shared() Partition {
	return Partition{
		Kind:      SourceShared,
		Namespace: r.sharedNamespace,
		Filter: map[string]string{
			MetaSourceType: string(SourceShared),
		},
	}
}

func (r *Resolver) private(requesterID string) (Partition, error) {
	if err := ValidateRequesterID(requesterID); err != nil {
		return Partition{}, err
	}
	return Partition{
		Kind:        SourcePrivate,
		Namespace:   r.privatePrefix + requesterID,
		RequesterID: requesterID,
		Filter: map[string]string{
			MetaSourceType:  string(SourcePrivate),
			MetaRequesterID: requesterID,
		},
	}, nil
}
