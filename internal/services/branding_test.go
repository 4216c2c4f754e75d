package services

import (
	"os"
	"path/filepath"
	"testing"
)

const brandingYAML = `
default:
  brand_name: Mementolink
  support_email: support@mementolink.app
  color: "#4a6da7"
  greeting: Your memory page is ready.
tenants:
  storeA:
    brand_name: Store A Memories
    support_email: hello@store-a.example
    color: "#aa3344"
  storeB:
    brand_name: Store B
`

func writeBrandingFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "branding.yaml")
	if err := os.WriteFile(path, []byte(brandingYAML), 0o600); err != nil {
		t.Fatalf("write branding file: %v", err)
	}
	return path
}

func TestBrandingCatalogResolvesTenant(t *testing.T) {
	catalog, err := LoadBrandingCatalog(testLogger(t), writeBrandingFile(t))
	if err != nil {
		t.Fatalf("LoadBrandingCatalog: %v", err)
	}

	b := catalog.For("storeA")
	if b.BrandName != "Store A Memories" {
		t.Fatalf("brand name: want=%q got=%q", "Store A Memories", b.BrandName)
	}
	if b.SupportEmail != "hello@store-a.example" {
		t.Fatalf("support email: want=%q got=%q", "hello@store-a.example", b.SupportEmail)
	}
	// Unset fields inherit the default.
	if b.Greeting != "Your memory page is ready." {
		t.Fatalf("greeting: want default, got %q", b.Greeting)
	}
}

func TestBrandingCatalogPartialTenantInheritsDefaults(t *testing.T) {
	catalog, err := LoadBrandingCatalog(testLogger(t), writeBrandingFile(t))
	if err != nil {
		t.Fatalf("LoadBrandingCatalog: %v", err)
	}

	b := catalog.For("storeB")
	if b.BrandName != "Store B" {
		t.Fatalf("brand name: want=%q got=%q", "Store B", b.BrandName)
	}
	if b.SupportEmail != "support@mementolink.app" {
		t.Fatalf("support email: want default, got %q", b.SupportEmail)
	}
	if b.Color != "#4a6da7" {
		t.Fatalf("color: want default, got %q", b.Color)
	}
}

func TestBrandingCatalogUnknownTenantGetsDefault(t *testing.T) {
	catalog, err := LoadBrandingCatalog(testLogger(t), writeBrandingFile(t))
	if err != nil {
		t.Fatalf("LoadBrandingCatalog: %v", err)
	}

	b := catalog.For("unknown-shop")
	if b.BrandName != "Mementolink" {
		t.Fatalf("brand name: want default, got %q", b.BrandName)
	}
}

func TestBrandingCatalogTenantLookupIsCaseInsensitive(t *testing.T) {
	catalog, err := LoadBrandingCatalog(testLogger(t), writeBrandingFile(t))
	if err != nil {
		t.Fatalf("LoadBrandingCatalog: %v", err)
	}

	if b := catalog.For("STOREA"); b.BrandName != "Store A Memories" {
		t.Fatalf("brand name: want=%q got=%q", "Store A Memories", b.BrandName)
	}
}

func TestBrandingCatalogMissingFileUsesBuiltin(t *testing.T) {
	catalog, err := LoadBrandingCatalog(testLogger(t), filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("LoadBrandingCatalog: %v", err)
	}

	if b := catalog.For("anything"); b.BrandName != builtinDefaultBranding.BrandName {
		t.Fatalf("brand name: want builtin default, got %q", b.BrandName)
	}
}
