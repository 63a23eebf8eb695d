package domain

// EntityMapping is a single address predicate inside an entity definition.
// Every non-empty address field must equal the corresponding fill metadata
// field for the mapping to match; empty fields are wildcards. At least one
// address field must be set.
type EntityMapping struct {
	Type                AttributionType `json:"type"`
	AffiliateAddress    string          `json:"affiliateAddress,omitempty"`
	FeeRecipientAddress string          `json:"feeRecipientAddress,omitempty"`
	SenderAddress       string          `json:"senderAddress,omitempty"`
	TakerAddress        string          `json:"takerAddress,omitempty"`
}

// EntityDefinition describes one commercial entity (relayer or consumer app)
// in the attribution catalog.
type EntityDefinition struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Categories []string        `json:"categories"`
	Mappings   []EntityMapping `json:"mappings"`
	URLSlug    string          `json:"urlSlug"`
	WebsiteURL string          `json:"websiteUrl,omitempty"`
}
