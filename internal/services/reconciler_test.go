package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mementolink/mementolink-backend/internal/platform/apierr"
	"github.com/mementolink/mementolink-backend/internal/types"
)

func newReconcilerFixture(t *testing.T) (ClaimReconciler, *fakeClaimRequestRepo) {
	t.Helper()
	claims := &fakeClaimRequestRepo{}
	resolver := &fakeResolver{aliases: map[string][]string{
		"storeA": {"storeA", "t123", "store-a-official"},
	}}
	return NewClaimReconciler(nil, testLogger(t), claims, resolver), claims
}

func validReconcileInput(claimID uuid.UUID) ReconcileInput {
	return ReconcileInput{
		ClaimRequestID: claimID,
		Email:          "jane@example.com",
		Tenant:         "storeA",
		PublicPageID:   uuid.New(),
		PublicPageURL:  "https://pages.example.com/p/storeA/abc",
		LoginURL:       "https://app.example.com/login/storeA",
		ClaimedByUID:   uuid.New(),
	}
}

func TestReconcileWritesClaimFieldsByID(t *testing.T) {
	reconciler, claims := newReconcilerFixture(t)
	record := seedClaim(claims, "jane@example.com", "storeA", types.ClaimStatusSent)

	in := validReconcileInput(record.ID)
	result, err := reconciler.Reconcile(context.Background(), in)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if !result.Reconciled {
		t.Fatalf("Reconcile: want reconciled")
	}
	if result.ClaimRequestID != record.ID {
		t.Fatalf("claim id: want=%s got=%s", record.ID, result.ClaimRequestID)
	}
	if record.Status != types.ClaimStatusClaimed {
		t.Fatalf("status: want=%q got=%q", types.ClaimStatusClaimed, record.Status)
	}
	if record.PublicPageURL == nil || *record.PublicPageURL != in.PublicPageURL {
		t.Fatalf("public page url: want=%q got=%v", in.PublicPageURL, record.PublicPageURL)
	}
	if record.ClaimedByUID == nil || *record.ClaimedByUID != in.ClaimedByUID {
		t.Fatalf("claimed by uid: want=%s got=%v", in.ClaimedByUID, record.ClaimedByUID)
	}
}

func TestReconcileRequiresPageIDAndURLTogether(t *testing.T) {
	reconciler, _ := newReconcilerFixture(t)

	in := validReconcileInput(uuid.New())
	in.PublicPageID = uuid.Nil
	if _, err := reconciler.Reconcile(context.Background(), in); !apierr.HasCode(err, apierr.CodeValidation) {
		t.Fatalf("Reconcile: want validation_error for missing page id, got %v", err)
	}

	in = validReconcileInput(uuid.New())
	in.PublicPageURL = " "
	if _, err := reconciler.Reconcile(context.Background(), in); !apierr.HasCode(err, apierr.CodeValidation) {
		t.Fatalf("Reconcile: want validation_error for missing url, got %v", err)
	}
}

func TestReconcileFallsBackToEmailTenantLookup(t *testing.T) {
	reconciler, claims := newReconcilerFixture(t)
	// Record stored under a tenant alias, looked up with a stale id.
	record := seedClaim(claims, "jane@example.com", "t123", types.ClaimStatusSent)

	in := validReconcileInput(uuid.New())
	result, err := reconciler.Reconcile(context.Background(), in)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if !result.Reconciled {
		t.Fatalf("Reconcile: want reconciled via email fallback")
	}
	if result.ClaimRequestID != record.ID {
		t.Fatalf("claim id: want=%s got=%s", record.ID, result.ClaimRequestID)
	}
}

func TestReconcileSkipsWhenNothingResolves(t *testing.T) {
	reconciler, claims := newReconcilerFixture(t)

	in := validReconcileInput(uuid.New())
	result, err := reconciler.Reconcile(context.Background(), in)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if result.Reconciled {
		t.Fatalf("Reconcile: want skipped when no record resolves")
	}
	if claims.updateCalls != 0 {
		t.Fatalf("update calls: want=0 got=%d", claims.updateCalls)
	}
}

func TestReconcileFailsVerificationWhenWriteDoesNotStick(t *testing.T) {
	reconciler, claims := newReconcilerFixture(t)
	record := seedClaim(claims, "jane@example.com", "storeA", types.ClaimStatusSent)

	rc := reconciler.(*claimReconciler)
	rc.claimRequestRepo = &droppingClaimRepo{fakeClaimRequestRepo: claims}

	_, err := reconciler.Reconcile(context.Background(), validReconcileInput(record.ID))
	if !apierr.HasCode(err, apierr.CodeReconciliationVerification) {
		t.Fatalf("Reconcile: want reconciliation_verification, got %v", err)
	}
}

// droppingClaimRepo accepts UpdateFields but never applies it, so the
// re-read comes back with stale values.
type droppingClaimRepo struct {
	*fakeClaimRequestRepo
}

func (d *droppingClaimRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, fields map[string]any) error {
	return nil
}
