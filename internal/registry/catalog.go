// Package registry matches fill metadata against catalogs of entity
// address-mapping rules to attribute trades to the relayer or consumer app
// that originated them.
package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/fillscope/internal/domain"
)

// Catalog is an immutable, validated set of entity definitions loaded from
// disk at startup, indexed by id for O(1) lookups.
type Catalog struct {
	entities []domain.EntityDefinition
	byID     map[string]domain.EntityDefinition
}

// LoadCatalog reads JSON catalog files, validates them as one combined
// catalog, and returns the index. Validation failures are fatal; the catalog
// data must be fixed before the process can start.
func LoadCatalog(paths ...string) (*Catalog, error) {
	var entities []domain.EntityDefinition

	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("registry: read catalog %s: %w", path, err)
		}

		var defs []domain.EntityDefinition
		if err := json.Unmarshal(data, &defs); err != nil {
			return nil, fmt.Errorf("registry: parse catalog %s: %w", path, err)
		}
		entities = append(entities, defs...)
	}

	c := &Catalog{
		entities: entities,
		byID:     make(map[string]domain.EntityDefinition, len(entities)),
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// NewCatalog builds a validated catalog from in-memory definitions. Used by
// tests and by callers that source definitions elsewhere.
func NewCatalog(entities []domain.EntityDefinition) (*Catalog, error) {
	c := &Catalog{
		entities: entities,
		byID:     make(map[string]domain.EntityDefinition, len(entities)),
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// validate enforces the catalog invariants: globally-unique entity ids, at
// least one address field per mapping, and no two mappings anywhere in the
// catalog identical in (address fields, type). A duplicate mapping is a
// data-integrity defect, not a runtime condition to tolerate.
func (c *Catalog) validate() error {
	seenMappings := make(map[string]string) // mapping key -> entity id

	for _, e := range c.entities {
		if strings.TrimSpace(e.ID) == "" {
			return &domain.CatalogValidationError{Reason: "entity with empty id"}
		}
		if _, dup := c.byID[e.ID]; dup {
			return &domain.CatalogValidationError{EntityID: e.ID, Reason: "duplicate entity id"}
		}
		if strings.TrimSpace(e.Name) == "" {
			return &domain.CatalogValidationError{EntityID: e.ID, Reason: "entity has no name"}
		}

		for i, m := range e.Mappings {
			if m.Type != domain.AttributionRelayer && m.Type != domain.AttributionConsumer {
				return &domain.CatalogValidationError{
					EntityID: e.ID,
					Reason:   fmt.Sprintf("mapping %d has invalid type %q", i, m.Type),
				}
			}
			if !mappingHasAddress(m) {
				return &domain.CatalogValidationError{
					EntityID: e.ID,
					Reason:   fmt.Sprintf("mapping %d declares no address field", i),
				}
			}

			key := mappingKey(m)
			if owner, dup := seenMappings[key]; dup {
				return &domain.CatalogValidationError{
					EntityID: e.ID,
					Reason:   fmt.Sprintf("mapping %d duplicates a mapping of entity %q", i, owner),
				}
			}
			seenMappings[key] = e.ID
		}

		c.byID[e.ID] = e
	}

	return nil
}

// Entities returns the catalog's definitions in load order.
func (c *Catalog) Entities() []domain.EntityDefinition {
	return c.entities
}

// ByID looks up an entity definition by id.
func (c *Catalog) ByID(id string) (domain.EntityDefinition, bool) {
	e, ok := c.byID[id]
	return e, ok
}

func mappingHasAddress(m domain.EntityMapping) bool {
	return m.AffiliateAddress != "" ||
		m.FeeRecipientAddress != "" ||
		m.SenderAddress != "" ||
		m.TakerAddress != ""
}

// mappingKey canonicalizes a mapping's address fields and type so duplicate
// detection is insensitive to address casing.
func mappingKey(m domain.EntityMapping) string {
	return strings.Join([]string{
		string(m.Type),
		normalizeAddress(m.AffiliateAddress),
		normalizeAddress(m.FeeRecipientAddress),
		normalizeAddress(m.SenderAddress),
		normalizeAddress(m.TakerAddress),
	}, "|")
}

// normalizeAddress lowercases an Ethereum address, going through the checksum
// form for valid hex addresses so mixed-case inputs compare equal.
func normalizeAddress(s string) string {
	if s == "" {
		return ""
	}
	if common.IsHexAddress(s) {
		return strings.ToLower(common.HexToAddress(s).Hex())
	}
	return strings.ToLower(s)
}
