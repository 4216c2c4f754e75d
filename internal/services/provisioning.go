package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/mementolink/mementolink-backend/internal/platform/apierr"
	"github.com/mementolink/mementolink-backend/internal/platform/logger"
	"github.com/mementolink/mementolink-backend/internal/repos"
	"github.com/mementolink/mementolink-backend/internal/types"
)

// ProvisionResult is the outcome of a successful first-time claim.
type ProvisionResult struct {
	MemoryID      uuid.UUID
	PublicPageID  uuid.UUID
	PublicPageURL string
}

// ProvisioningEngine creates the Memory + PublicPage pair for a claim.
//
// Every write is confirmed by an immediate re-read before the next step
// runs. On failure the operation aborts with no compensation: deleting a
// paid customer's partially created page is riskier than leaving an orphan
// for CRM cleanup.
type ProvisioningEngine interface {
	Provision(ctx context.Context, claim *types.ClaimRequest, ownerUID uuid.UUID, title, description string) (*ProvisionResult, error)
}

type provisioningEngine struct {
	db             *gorm.DB
	log            *logger.Logger
	memoryRepo     repos.MemoryRepo
	publicPageRepo repos.PublicPageRepo
	publicBaseURL  string
	now            func() time.Time
}

func NewProvisioningEngine(
	db *gorm.DB,
	baseLog *logger.Logger,
	memoryRepo repos.MemoryRepo,
	publicPageRepo repos.PublicPageRepo,
	publicBaseURL string,
) ProvisioningEngine {
	return &provisioningEngine{
		db:             db,
		log:            baseLog.With("service", "ProvisioningEngine"),
		memoryRepo:     memoryRepo,
		publicPageRepo: publicPageRepo,
		publicBaseURL:  strings.TrimRight(publicBaseURL, "/"),
		now:            time.Now,
	}
}

func (pe *provisioningEngine) Provision(ctx context.Context, claim *types.ClaimRequest, ownerUID uuid.UUID, title, description string) (*ProvisionResult, error) {
	if pe == nil || pe.memoryRepo == nil || pe.publicPageRepo == nil {
		return nil, fmt.Errorf("provisioning engine not configured")
	}
	if claim == nil {
		return nil, apierr.Validation(fmt.Errorf("missing claim request"))
	}
	if ownerUID == uuid.Nil {
		return nil, apierr.Validation(fmt.Errorf("missing owner uid"))
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, apierr.Validation(fmt.Errorf("title is required"))
	}

	now := pe.now().UTC()

	// Step 1: create the Memory.
	memory := &types.Memory{
		ID:          uuid.New(),
		OwnerUID:    ownerUID,
		Tenant:      claim.Tenant,
		Title:       title,
		Description: strings.TrimSpace(description),
		Status:      types.MemoryStatusDraft,
		Blocks:      datatypes.JSON([]byte("[]")),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if _, err := pe.memoryRepo.Create(ctx, nil, []*types.Memory{memory}); err != nil {
		return nil, fmt.Errorf("create memory: %w", err)
	}

	// Step 2: always create a fresh PublicPage. The paid claim is the
	// authoritative trigger for URL commitment; a pre-existing page id on
	// the claim is never reused.
	publishedAt := now
	page := &types.PublicPage{
		ID:             uuid.New(),
		Tenant:         claim.Tenant,
		OwnerUID:       ownerUID,
		MemoryID:       memory.ID,
		Title:          title,
		About:          strings.TrimSpace(description),
		PublishStatus:  types.PublishStatusPublished,
		PublishVersion: 1,
		PublishedAt:    &publishedAt,
		AccessPublic:   true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if _, err := pe.publicPageRepo.Create(ctx, nil, []*types.PublicPage{page}); err != nil {
		return nil, fmt.Errorf("create public page: %w", err)
	}

	// Step 3: confirm the page is readable before linking anything to it.
	readBack, err := pe.publicPageRepo.GetByIDs(ctx, nil, []uuid.UUID{page.ID})
	if err != nil {
		return nil, apierr.ProvisioningIntegrity(fmt.Errorf("public page read-back (page %s): %w", page.ID, err))
	}
	if len(readBack) == 0 {
		return nil, apierr.ProvisioningIntegrity(fmt.Errorf("public page %s not readable after create", page.ID))
	}

	// Step 4: link Memory -> PublicPage, then verify the write landed.
	if err := pe.memoryRepo.UpdateFields(ctx, nil, memory.ID, map[string]any{
		"public_page_id": page.ID,
		"updated_at":     pe.now().UTC(),
	}); err != nil {
		return nil, apierr.ProvisioningIntegrity(fmt.Errorf("link memory %s to page %s: %w", memory.ID, page.ID, err))
	}
	memories, err := pe.memoryRepo.GetByIDs(ctx, nil, []uuid.UUID{memory.ID})
	if err != nil {
		return nil, apierr.ProvisioningIntegrity(fmt.Errorf("memory read-back (memory %s): %w", memory.ID, err))
	}
	if len(memories) == 0 || memories[0].PublicPageID == nil || *memories[0].PublicPageID != page.ID {
		return nil, apierr.ProvisioningIntegrity(fmt.Errorf("memory %s public_page_id did not verify against page %s", memory.ID, page.ID))
	}

	// Step 5: the canonical public URL.
	url := pe.PublicPageURL(claim.Tenant, page.ID)

	pe.log.Info("claim provisioned",
		"memory_id", memory.ID.String(),
		"public_page_id", page.ID.String(),
		"tenant", claim.Tenant,
	)

	return &ProvisionResult{
		MemoryID:      memory.ID,
		PublicPageID:  page.ID,
		PublicPageURL: url,
	}, nil
}

// PublicPageURL computes the tenant-qualified canonical URL for a page.
func (pe *provisioningEngine) PublicPageURL(tenant string, pageID uuid.UUID) string {
	tenant = strings.TrimSpace(tenant)
	if tenant == "" {
		return fmt.Sprintf("%s/p/%s", pe.publicBaseURL, pageID)
	}
	return fmt.Sprintf("%s/p/%s/%s", pe.publicBaseURL, tenant, pageID)
}
