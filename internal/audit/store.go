package audit

import "context"

// Head is the tail of a tenant's chain. The zero Head is the genesis state.
type Head struct {
	Sequence int64
	Hash     string
}

// PreviousHash returns the hash the next entry must link to.
func (h Head) PreviousHash() string {
	if h.Hash == "" {
		return GenesisHash
	}
	return h.Hash
}

// BuildFunc creates the next entry from the current head.
type BuildFunc func(head Head) (*Entry, error)

// Store persists per-tenant chains. Append must read the head, call build and
// persist the result as the new head atomically for the tenant, so two
// appends never link to the same predecessor.
type Store interface {
	Append(ctx context.Context, tenantID string, build BuildFunc) (*Entry, error)
	// List returns entries ordered by sequence.
	List(ctx context.Context, tenantID string, filter Filter) ([]Entry, error)
}
