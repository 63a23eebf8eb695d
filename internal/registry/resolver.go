package registry

import (
	"github.com/alanyoungcy/fillscope/internal/domain"
)

// Metadata is the fill metadata matched against catalog mappings. Empty
// fields are "not supplied"; a mapping only inspects the fields it declares.
type Metadata struct {
	AffiliateAddress    string
	FeeRecipientAddress string
	SenderAddress       string
	TakerAddress        string
}

// Resolver matches fill metadata against an entity catalog. It is a pure
// function over the in-memory catalog and is safe for concurrent use.
type Resolver struct {
	catalog   *Catalog
	overrides []RelayerOverride
}

// NewResolver creates a Resolver over the given catalog and ordered relayer
// override table. The override table may be nil.
func NewResolver(catalog *Catalog, overrides []RelayerOverride) *Resolver {
	return &Resolver{catalog: catalog, overrides: overrides}
}

// Resolve returns the attributions matching the given metadata: zero, one, or
// two entries, relayer before consumer. At most one match per attribution
// type is permitted; a second match of the same type means the catalog
// contains overlapping mappings and resolution fails with a
// DuplicateAttributionError echoing the full metadata.
func (r *Resolver) Resolve(md Metadata) ([]domain.Attribution, error) {
	md = md.normalized()

	var relayer, consumer []string
	for _, e := range r.catalog.Entities() {
		for _, m := range e.Mappings {
			if !mappingMatches(m, md) {
				continue
			}
			switch m.Type {
			case domain.AttributionRelayer:
				relayer = appendUnique(relayer, e.ID)
			case domain.AttributionConsumer:
				consumer = appendUnique(consumer, e.ID)
			}
		}
	}

	if len(relayer) > 1 {
		return nil, duplicateError(domain.AttributionRelayer, md)
	}
	if len(consumer) > 1 {
		return nil, duplicateError(domain.AttributionConsumer, md)
	}

	var out []domain.Attribution
	for _, id := range relayer {
		out = append(out, domain.Attribution{EntityID: id, Type: domain.AttributionRelayer})
	}
	for _, id := range consumer {
		out = append(out, domain.Attribution{EntityID: id, Type: domain.AttributionConsumer})
	}
	return out, nil
}

// ResolveRelayer returns the single relayer entity id for the metadata. The
// generic matcher runs first; when it yields no relayer match or an ambiguous
// result, the ordered override table is consulted. The boolean reports
// whether any relayer was resolved.
func (r *Resolver) ResolveRelayer(md Metadata) (string, bool, error) {
	attrs, err := r.Resolve(md)
	switch err.(type) {
	case nil:
		for _, a := range attrs {
			if a.Type == domain.AttributionRelayer {
				return a.EntityID, true, nil
			}
		}
	case *domain.DuplicateAttributionError:
		// Ambiguous catalog match: fall through to the override table.
	default:
		return "", false, err
	}

	if id, ok := matchOverride(r.overrides, md); ok {
		return id, true, nil
	}
	if err != nil {
		// Ambiguity with no override covering it stays an error.
		return "", false, err
	}
	return "", false, nil
}

// normalized lowercases every address field so matching is case-insensitive.
func (md Metadata) normalized() Metadata {
	return Metadata{
		AffiliateAddress:    normalizeAddress(md.AffiliateAddress),
		FeeRecipientAddress: normalizeAddress(md.FeeRecipientAddress),
		SenderAddress:       normalizeAddress(md.SenderAddress),
		TakerAddress:        normalizeAddress(md.TakerAddress),
	}
}

// mappingMatches reports whether every address field the mapping declares
// equals the corresponding metadata field. Undeclared fields are wildcards.
func mappingMatches(m domain.EntityMapping, md Metadata) bool {
	if m.AffiliateAddress != "" && normalizeAddress(m.AffiliateAddress) != md.AffiliateAddress {
		return false
	}
	if m.FeeRecipientAddress != "" && normalizeAddress(m.FeeRecipientAddress) != md.FeeRecipientAddress {
		return false
	}
	if m.SenderAddress != "" && normalizeAddress(m.SenderAddress) != md.SenderAddress {
		return false
	}
	if m.TakerAddress != "" && normalizeAddress(m.TakerAddress) != md.TakerAddress {
		return false
	}
	return true
}

func duplicateError(t domain.AttributionType, md Metadata) error {
	return &domain.DuplicateAttributionError{
		Type:                t,
		AffiliateAddress:    md.AffiliateAddress,
		FeeRecipientAddress: md.FeeRecipientAddress,
		SenderAddress:       md.SenderAddress,
		TakerAddress:        md.TakerAddress,
	}
}

// appendUnique guards against the same entity matching through two of its own
// mappings; only distinct entities count towards ambiguity.
func appendUnique(ids []string, id string) []string {
	for _, existing := range ids {
		if existing == id {
			return ids
		}
	}
	return append(ids, id)
}
