package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by stores when a record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrNotReady marks a fill whose dependencies (typically token
	// metadata) have not resolved yet. Recoverable; the fill is picked up
	// again on a later tick.
	ErrNotReady = errors.New("not ready")
	// ErrRateUnavailable means the historical price provider failed or had
	// no data for the requested bucket. Recoverable; retry next cycle.
	ErrRateUnavailable = errors.New("conversion rate unavailable")
	// ErrNotReplicated means a write matched zero documents, most likely
	// because the target row has not replicated yet. Retryable.
	ErrNotReplicated = errors.New("document not replicated yet")
	// ErrLockHeld means another process holds the distributed lock.
	ErrLockHeld = errors.New("lock already held")
)

// MetadataPlaceholder is echoed in diagnostics for metadata fields that were
// not supplied on the resolution call.
const MetadataPlaceholder = "(none)"

// DuplicateAttributionError reports an ambiguous catalog match: more than one
// mapping of the same attribution type matched a fill's metadata. The full
// metadata is echoed so an operator can locate the conflicting catalog
// entries.
type DuplicateAttributionError struct {
	Type                AttributionType
	AffiliateAddress    string
	FeeRecipientAddress string
	SenderAddress       string
	TakerAddress        string
}

func (e *DuplicateAttributionError) Error() string {
	return fmt.Sprintf(
		"duplicate %s attributions for affiliateAddress: %s, feeRecipientAddress: %s, senderAddress: %s, takerAddress: %s",
		e.Type,
		orPlaceholder(e.AffiliateAddress),
		orPlaceholder(e.FeeRecipientAddress),
		orPlaceholder(e.SenderAddress),
		orPlaceholder(e.TakerAddress),
	)
}

func orPlaceholder(s string) string {
	if s == "" {
		return MetadataPlaceholder
	}
	return s
}

// CatalogValidationError reports a malformed entity catalog. It is fatal at
// load time; the catalog data must be fixed by an operator.
type CatalogValidationError struct {
	EntityID string
	Reason   string
}

func (e *CatalogValidationError) Error() string {
	if e.EntityID == "" {
		return fmt.Sprintf("invalid entity catalog: %s", e.Reason)
	}
	return fmt.Sprintf("invalid entity catalog: entity %q: %s", e.EntityID, e.Reason)
}

// PreconditionError marks a fill that is in a state the valuation or pricing
// invariants forbid. It aborts processing of that fill only; sibling fills in
// the same batch continue.
type PreconditionError struct {
	FillID string
	Reason string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("fill %s: %s", e.FillID, e.Reason)
}
