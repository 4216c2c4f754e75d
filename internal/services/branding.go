package services

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mementolink/mementolink-backend/internal/platform/logger"
)

// TenantBranding is the per-tenant content of outbound mail: sender name,
// support address, accent color and an optional custom greeting.
type TenantBranding struct {
	BrandName    string `yaml:"brand_name"`
	SupportEmail string `yaml:"support_email"`
	Color        string `yaml:"color"`
	Greeting     string `yaml:"greeting"`
}

type brandingFile struct {
	Default TenantBranding            `yaml:"default"`
	Tenants map[string]TenantBranding `yaml:"tenants"`
}

// BrandingCatalog selects branding by tenant id with a mandatory default
// for unrecognized tenants.
type BrandingCatalog struct {
	log      *logger.Logger
	defaults TenantBranding
	tenants  map[string]TenantBranding
}

var builtinDefaultBranding = TenantBranding{
	BrandName:    "Mementolink",
	SupportEmail: "support@mementolink.app",
	Color:        "#4a6da7",
	Greeting:     "Your memory page is ready.",
}

// LoadBrandingCatalog reads the YAML catalog at path. An empty path or a
// missing file yields the compiled-in default so mail never goes out
// unbranded.
func LoadBrandingCatalog(baseLog *logger.Logger, path string) (*BrandingCatalog, error) {
	log := baseLog.With("service", "BrandingCatalog")

	catalog := &BrandingCatalog{
		log:      log,
		defaults: builtinDefaultBranding,
		tenants:  map[string]TenantBranding{},
	}
	if strings.TrimSpace(path) == "" {
		return catalog, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Warn("branding config missing, using builtin default", "path", path)
			return catalog, nil
		}
		return nil, fmt.Errorf("read branding config: %w", err)
	}

	var file brandingFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse branding config: %w", err)
	}

	if file.Default.BrandName != "" {
		catalog.defaults = file.Default
	}
	for tenant, b := range file.Tenants {
		catalog.tenants[strings.TrimSpace(strings.ToLower(tenant))] = b
	}
	return catalog, nil
}

// For returns the branding for tenant, falling back to the default when the
// tenant is unrecognized.
func (bc *BrandingCatalog) For(tenant string) TenantBranding {
	if bc == nil {
		return builtinDefaultBranding
	}
	if b, ok := bc.tenants[strings.TrimSpace(strings.ToLower(tenant))]; ok {
		return fillBranding(b, bc.defaults)
	}
	return bc.defaults
}

func fillBranding(b, def TenantBranding) TenantBranding {
	if b.BrandName == "" {
		b.BrandName = def.BrandName
	}
	if b.SupportEmail == "" {
		b.SupportEmail = def.SupportEmail
	}
	if b.Color == "" {
		b.Color = def.Color
	}
	if b.Greeting == "" {
		b.Greeting = def.Greeting
	}
	return b
}
