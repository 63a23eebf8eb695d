package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// RelayerOverride forces relayer resolution for an affiliate address the
// catalog does not (or ambiguously) cover. Overrides are versioned
// configuration data, consulted only on no-match or ambiguous-match.
//
// TODO: retire entries here as the corresponding catalog definitions land;
// every override is a catalog gap.
type RelayerOverride struct {
	AffiliateAddress    string `json:"affiliateAddress"`
	FeeRecipientAddress string `json:"feeRecipientAddress,omitempty"`
	RelayerID           string `json:"relayerId"`
}

// LoadOverrides reads the ordered relayer override table from a JSON file.
// A missing path yields an empty table.
func LoadOverrides(path string) ([]RelayerOverride, error) {
	if strings.TrimSpace(path) == "" {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("registry: read overrides %s: %w", path, err)
	}

	var overrides []RelayerOverride
	if err := json.Unmarshal(data, &overrides); err != nil {
		return nil, fmt.Errorf("registry: parse overrides %s: %w", path, err)
	}

	for i, o := range overrides {
		if o.AffiliateAddress == "" || o.RelayerID == "" {
			return nil, fmt.Errorf("registry: overrides %s: entry %d missing affiliateAddress or relayerId", path, i)
		}
	}
	return overrides, nil
}

// matchOverride returns the first override whose keys match the metadata.
// The table is ordered; earlier entries win.
func matchOverride(overrides []RelayerOverride, md Metadata) (string, bool) {
	for _, o := range overrides {
		if normalizeAddress(o.AffiliateAddress) != md.AffiliateAddress {
			continue
		}
		if o.FeeRecipientAddress != "" && normalizeAddress(o.FeeRecipientAddress) != md.FeeRecipientAddress {
			continue
		}
		return o.RelayerID, true
	}
	return "", false
}
