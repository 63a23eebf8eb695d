package registry

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/alanyoungcy/fillscope/internal/domain"
)

func TestCatalogValidation(t *testing.T) {
	valid := domain.EntityMapping{Type: domain.AttributionRelayer, FeeRecipientAddress: addrB}

	tests := []struct {
		name     string
		entities []domain.EntityDefinition
		wantErr  bool
	}{
		{
			name: "valid",
			entities: []domain.EntityDefinition{
				{ID: "a", Name: "A", Mappings: []domain.EntityMapping{valid}},
			},
		},
		{
			name: "empty id",
			entities: []domain.EntityDefinition{
				{ID: " ", Name: "A", Mappings: []domain.EntityMapping{valid}},
			},
			wantErr: true,
		},
		{
			name: "duplicate id",
			entities: []domain.EntityDefinition{
				{ID: "a", Name: "A"},
				{ID: "a", Name: "Also A"},
			},
			wantErr: true,
		},
		{
			name: "missing name",
			entities: []domain.EntityDefinition{
				{ID: "a", Mappings: []domain.EntityMapping{valid}},
			},
			wantErr: true,
		},
		{
			name: "mapping with no address field",
			entities: []domain.EntityDefinition{
				{ID: "a", Name: "A", Mappings: []domain.EntityMapping{
					{Type: domain.AttributionRelayer},
				}},
			},
			wantErr: true,
		},
		{
			name: "mapping with invalid type",
			entities: []domain.EntityDefinition{
				{ID: "a", Name: "A", Mappings: []domain.EntityMapping{
					{Type: "sponsor", FeeRecipientAddress: addrB},
				}},
			},
			wantErr: true,
		},
		{
			name: "identical mapping across entities",
			entities: []domain.EntityDefinition{
				{ID: "a", Name: "A", Mappings: []domain.EntityMapping{valid}},
				{ID: "b", Name: "B", Mappings: []domain.EntityMapping{valid}},
			},
			wantErr: true,
		},
		{
			name: "identical mapping differing only in address case",
			entities: []domain.EntityDefinition{
				{ID: "a", Name: "A", Mappings: []domain.EntityMapping{valid}},
				{ID: "b", Name: "B", Mappings: []domain.EntityMapping{
					{Type: domain.AttributionRelayer, FeeRecipientAddress: "0x5DD835A893734B8d556ECCF87800B76dda5AEDC5"},
				}},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCatalog(tt.entities)
			if tt.wantErr {
				var ve *domain.CatalogValidationError
				if !errors.As(err, &ve) {
					t.Fatalf("got %v, want CatalogValidationError", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewCatalog: %v", err)
			}
		})
	}
}

func TestLoadCatalogMergesFiles(t *testing.T) {
	dir := t.TempDir()

	fileA := filepath.Join(dir, "relayers.json")
	fileB := filepath.Join(dir, "consumers.json")
	writeFile(t, fileA, `[{"id":"r1","name":"R1","mappings":[{"type":"relayer","feeRecipientAddress":"`+addrB+`"}]}]`)
	writeFile(t, fileB, `[{"id":"c1","name":"C1","mappings":[{"type":"consumer","affiliateAddress":"`+addrC+`"}]}]`)

	c, err := LoadCatalog(fileA, fileB)
	if err != nil {
		t.Fatalf("LoadCatalog: %v", err)
	}
	if len(c.Entities()) != 2 {
		t.Fatalf("got %d entities, want 2", len(c.Entities()))
	}
	if _, ok := c.ByID("c1"); !ok {
		t.Error("entity c1 not indexed")
	}
}

func TestLoadOverridesMissingFile(t *testing.T) {
	overrides, err := LoadOverrides(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("LoadOverrides: %v", err)
	}
	if overrides != nil {
		t.Fatalf("got %v, want nil", overrides)
	}
}

func TestLoadOverridesRejectsIncompleteEntry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "overrides.json")
	writeFile(t, path, `[{"affiliateAddress":"`+addrA+`"}]`)

	if _, err := LoadOverrides(path); err == nil {
		t.Fatal("expected error for entry without relayerId")
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
