package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mementolink/mementolink-backend/internal/platform/apierr"
	"github.com/mementolink/mementolink-backend/internal/platform/logger"
	"github.com/mementolink/mementolink-backend/internal/repos"
	"github.com/mementolink/mementolink-backend/internal/types"
)

// ReconcileInput identifies the claim request and the values to commit onto
// it. Email and Tenant feed the fallback lookup when the id is stale.
type ReconcileInput struct {
	ClaimRequestID uuid.UUID
	Email          string
	Tenant         string
	PublicPageID   uuid.UUID
	PublicPageURL  string
	LoginURL       string
	ClaimedByUID   uuid.UUID
}

// ReconcileResult reports whether the claim request was actually updated.
// Reconciled=false with no error is the documented degradation: no claim
// request could be resolved, the page stays live, no email follows.
type ReconcileResult struct {
	Reconciled     bool
	ClaimRequestID uuid.UUID
}

// ClaimReconciler writes the provisioned URLs and claiming identity back
// onto the originating ClaimRequest. The write is verified by an immediate
// re-read: a silent failure here means "customer paid but the system never
// learns the page is claimable", the worst failure mode this system has.
type ClaimReconciler interface {
	Reconcile(ctx context.Context, in ReconcileInput) (*ReconcileResult, error)
}

type claimReconciler struct {
	db               *gorm.DB
	log              *logger.Logger
	claimRequestRepo repos.ClaimRequestRepo
	resolver         IdentityResolver
	now              func() time.Time
}

func NewClaimReconciler(
	db *gorm.DB,
	baseLog *logger.Logger,
	claimRequestRepo repos.ClaimRequestRepo,
	resolver IdentityResolver,
) ClaimReconciler {
	return &claimReconciler{
		db:               db,
		log:              baseLog.With("service", "ClaimReconciler"),
		claimRequestRepo: claimRequestRepo,
		resolver:         resolver,
		now:              time.Now,
	}
}

func (rc *claimReconciler) Reconcile(ctx context.Context, in ReconcileInput) (*ReconcileResult, error) {
	if rc == nil || rc.claimRequestRepo == nil {
		return nil, fmt.Errorf("claim reconciler not configured")
	}
	if in.PublicPageID == uuid.Nil || strings.TrimSpace(in.PublicPageURL) == "" {
		return nil, apierr.Validation(fmt.Errorf("public page id and url are required together"))
	}

	record, err := rc.locate(ctx, in)
	if err != nil {
		return nil, err
	}
	if record == nil {
		// Accepted degradation: the page exists and works, but no claim
		// request will carry its URL and no confirmation email fires via
		// this path.
		rc.log.Warn("no claim request resolvable for reconciliation, skipping",
			"claim_request_id", in.ClaimRequestID.String(),
			"tenant", in.Tenant,
		)
		return &ReconcileResult{Reconciled: false}, nil
	}

	now := rc.now().UTC()
	fields := map[string]any{
		"public_page_id":  in.PublicPageID,
		"public_page_url": in.PublicPageURL,
		"login_url":       in.LoginURL,
		"claimed_by_uid":  in.ClaimedByUID,
		"claimed_at":      &now,
		"status":          types.ClaimStatusClaimed,
		"updated_at":      now,
	}
	if err := rc.claimRequestRepo.UpdateFields(ctx, nil, record.ID, fields); err != nil {
		return nil, fmt.Errorf("write claim request %s: %w", record.ID, err)
	}

	// Verify the write actually persisted before declaring success.
	after, err := rc.claimRequestRepo.GetByIDs(ctx, nil, []uuid.UUID{record.ID})
	if err != nil {
		return nil, apierr.ReconciliationVerification(fmt.Errorf("claim request %s re-read: %w", record.ID, err))
	}
	if len(after) == 0 {
		return nil, apierr.ReconciliationVerification(fmt.Errorf("claim request %s vanished after write", record.ID))
	}
	got := after[0]
	if got.PublicPageID == nil || *got.PublicPageID != in.PublicPageID ||
		got.PublicPageURL == nil || *got.PublicPageURL != in.PublicPageURL ||
		got.ClaimedByUID == nil || *got.ClaimedByUID != in.ClaimedByUID {
		return nil, apierr.ReconciliationVerification(
			fmt.Errorf("claim request %s re-read does not match written values", record.ID))
	}

	rc.log.Info("claim request reconciled",
		"claim_request_id", record.ID.String(),
		"public_page_id", in.PublicPageID.String(),
	)
	return &ReconcileResult{Reconciled: true, ClaimRequestID: record.ID}, nil
}

// locate finds the claim request by id, then falls back to the most recent
// request for (email, tenant aliases). The id captured earlier in a session
// can be stale or lost, e.g. cleared client-side storage.
func (rc *claimReconciler) locate(ctx context.Context, in ReconcileInput) (*types.ClaimRequest, error) {
	if in.ClaimRequestID != uuid.Nil {
		records, err := rc.claimRequestRepo.GetByIDs(ctx, nil, []uuid.UUID{in.ClaimRequestID})
		if err != nil {
			return nil, fmt.Errorf("claim request lookup by id: %w", err)
		}
		if len(records) > 0 {
			return records[0], nil
		}
	}

	email := strings.TrimSpace(in.Email)
	tenant := strings.TrimSpace(in.Tenant)
	if email == "" {
		return nil, nil
	}

	aliases := []string{tenant}
	if rc.resolver != nil && tenant != "" {
		resolved, err := rc.resolver.Resolve(ctx, &tenant)
		if err == nil && len(resolved) > 0 {
			aliases = resolved
		}
	}

	records, err := rc.claimRequestRepo.GetLatestByEmailTenants(ctx, nil, email, aliases)
	if err != nil {
		return nil, fmt.Errorf("claim request lookup by email: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}
	return records[0], nil
}
