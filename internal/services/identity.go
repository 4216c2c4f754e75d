package services

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/mementolink/mementolink-backend/internal/platform/logger"
	"github.com/mementolink/mementolink-backend/internal/repos"
)

// IdentityResolver maps any tenant identifier a caller may present (store
// document id, legacy `id` field, company id, display name gone stale) to
// the complete alias set usable in queries. Legacy records were written
// under whichever alias the writer had at hand, so a single-string filter
// silently returns empty result sets.
type IdentityResolver interface {
	// Resolve returns the alias set for the tenant identified by staffTenant.
	// A nil input means super-admin scope: the aliases of every known tenant.
	// An unresolvable input degrades to a singleton set holding the literal
	// value, logged as a warning, never an error.
	Resolve(ctx context.Context, staffTenant *string) ([]string, error)
	// Canonical maps any known alias to the tenant document id, so records
	// written from different entry points land under one tenant value. An
	// unresolvable handle comes back as the trimmed literal.
	Canonical(ctx context.Context, handle string) string
}

type identityResolver struct {
	db         *gorm.DB
	log        *logger.Logger
	tenantRepo repos.TenantRepo
}

func NewIdentityResolver(db *gorm.DB, baseLog *logger.Logger, tenantRepo repos.TenantRepo) IdentityResolver {
	return &identityResolver{
		db:         db,
		log:        baseLog.With("service", "IdentityResolver"),
		tenantRepo: tenantRepo,
	}
}

func (ir *identityResolver) Resolve(ctx context.Context, staffTenant *string) ([]string, error) {
	if ir == nil || ir.tenantRepo == nil {
		return nil, fmt.Errorf("identity resolver not configured")
	}

	if staffTenant == nil {
		return ir.resolveAll(ctx)
	}

	input := strings.TrimSpace(*staffTenant)
	if input == "" {
		return ir.resolveAll(ctx)
	}

	// Ordered strategy chain: document id, then legacy `id` field, then
	// company id. First match wins.
	lookups := []func(context.Context, *gorm.DB, string) (tenantRecord, error){
		ir.byID,
		ir.byLegacyID,
		ir.byCompanyID,
	}
	for _, lookup := range lookups {
		tenant, err := lookup(ctx, nil, input)
		if err != nil {
			return nil, err
		}
		if tenant != nil {
			return unionAliases(input, tenant.Aliases()), nil
		}
	}

	ir.log.Warn("tenant not resolvable, falling back to literal input", "tenant", input)
	return []string{input}, nil
}

func (ir *identityResolver) Canonical(ctx context.Context, handle string) string {
	input := strings.TrimSpace(handle)
	if ir == nil || ir.tenantRepo == nil || input == "" {
		return input
	}
	tenant, err := ir.tenantRepo.GetByID(ctx, nil, input)
	if err == nil && tenant == nil {
		tenant, err = ir.tenantRepo.GetByLegacyID(ctx, nil, input)
	}
	if err == nil && tenant == nil {
		tenant, err = ir.tenantRepo.GetByCompanyID(ctx, nil, input)
	}
	if err != nil {
		ir.log.Warn("tenant canonicalization failed, keeping literal", "tenant", input, "error", err)
		return input
	}
	if tenant == nil {
		return input
	}
	return tenant.ID
}

type tenantRecord interface {
	Aliases() []string
}

func (ir *identityResolver) byID(ctx context.Context, tx *gorm.DB, input string) (tenantRecord, error) {
	t, err := ir.tenantRepo.GetByID(ctx, tx, input)
	if err != nil {
		return nil, fmt.Errorf("tenant lookup by id: %w", err)
	}
	if t == nil {
		return nil, nil
	}
	return t, nil
}

func (ir *identityResolver) byLegacyID(ctx context.Context, tx *gorm.DB, input string) (tenantRecord, error) {
	t, err := ir.tenantRepo.GetByLegacyID(ctx, tx, input)
	if err != nil {
		return nil, fmt.Errorf("tenant lookup by legacy id: %w", err)
	}
	if t == nil {
		return nil, nil
	}
	return t, nil
}

func (ir *identityResolver) byCompanyID(ctx context.Context, tx *gorm.DB, input string) (tenantRecord, error) {
	t, err := ir.tenantRepo.GetByCompanyID(ctx, tx, input)
	if err != nil {
		return nil, fmt.Errorf("tenant lookup by company id: %w", err)
	}
	if t == nil {
		return nil, nil
	}
	return t, nil
}

func (ir *identityResolver) resolveAll(ctx context.Context) ([]string, error) {
	tenants, err := ir.tenantRepo.ListAll(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("tenant list: %w", err)
	}
	seen := map[string]struct{}{}
	out := []string{}
	for _, t := range tenants {
		for _, a := range t.Aliases() {
			if _, ok := seen[a]; ok {
				continue
			}
			seen[a] = struct{}{}
			out = append(out, a)
		}
	}
	return out, nil
}

func unionAliases(input string, aliases []string) []string {
	seen := map[string]struct{}{input: {}}
	out := []string{input}
	for _, a := range aliases {
		if _, ok := seen[a]; ok {
			continue
		}
		seen[a] = struct{}{}
		out = append(out, a)
	}
	return out
}
