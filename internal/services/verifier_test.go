package services

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"

	"github.com/mementolink/mementolink-backend/internal/platform/apierr"
	"github.com/mementolink/mementolink-backend/internal/types"
)

func newVerifierFixture(t *testing.T) (ClaimVerifier, CredentialIssuer, *fakeClaimRequestRepo) {
	t.Helper()
	issuer, err := NewCredentialIssuer(testLogger(t), "test-secret")
	if err != nil {
		t.Fatalf("NewCredentialIssuer: %v", err)
	}
	claims := &fakeClaimRequestRepo{}
	resolver := &fakeResolver{aliases: map[string][]string{
		"storeA": {"storeA", "t123", "store-a-official"},
	}}
	return NewClaimVerifier(nil, testLogger(t), issuer, claims, resolver), issuer, claims
}

func seedClaim(claims *fakeClaimRequestRepo, email, tenant, status string) *types.ClaimRequest {
	record := &types.ClaimRequest{
		ID:     uuid.New(),
		Email:  email,
		Tenant: tenant,
		Status: status,
		Source: types.ClaimSourceManualEntry,
	}
	claims.records = append(claims.records, record)
	return record
}

func TestVerifyAcceptsValidToken(t *testing.T) {
	verifier, issuer, claims := newVerifierFixture(t)
	record := seedClaim(claims, "jane@example.com", "storeA", types.ClaimStatusSent)

	token, err := issuer.Issue(record.ID, record.Email, record.Tenant, "", DefaultClaimTokenTTL)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	result, err := verifier.Verify(context.Background(), token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if result.ClaimRequest.ID != record.ID {
		t.Fatalf("claim id: want=%s got=%s", record.ID, result.ClaimRequest.ID)
	}
	if result.Degraded {
		t.Fatalf("Verify: unexpected degraded result")
	}
}

func TestVerifyRejectsEmptyAndGarbageTokens(t *testing.T) {
	verifier, _, _ := newVerifierFixture(t)

	for _, token := range []string{"", "   ", "not-a-jwt", "a.b.c"} {
		_, err := verifier.Verify(context.Background(), token)
		if !apierr.HasCode(err, apierr.CodeMalformedCredential) {
			t.Fatalf("Verify(%q): want malformed_credential, got %v", token, err)
		}
	}
}

func TestVerifyRejectsUnknownClaimRequest(t *testing.T) {
	verifier, issuer, _ := newVerifierFixture(t)

	token, err := issuer.Issue(uuid.New(), "jane@example.com", "storeA", "", DefaultClaimTokenTTL)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	_, err = verifier.Verify(context.Background(), token)
	if !apierr.HasCode(err, apierr.CodeNotFound) {
		t.Fatalf("Verify: want not_found, got %v", err)
	}
}

func TestVerifyRejectsEmailMismatch(t *testing.T) {
	verifier, issuer, claims := newVerifierFixture(t)
	record := seedClaim(claims, "jane@example.com", "storeA", types.ClaimStatusSent)

	token, err := issuer.Issue(record.ID, "mallory@example.com", record.Tenant, "", DefaultClaimTokenTTL)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	_, err = verifier.Verify(context.Background(), token)
	if !apierr.HasCode(err, apierr.CodeIntegrityViolation) {
		t.Fatalf("Verify: want integrity_violation, got %v", err)
	}
}

func TestVerifyAcceptsTenantAlias(t *testing.T) {
	verifier, issuer, claims := newVerifierFixture(t)
	// Legacy record stored under the numeric alias of the same tenant.
	record := seedClaim(claims, "jane@example.com", "t123", types.ClaimStatusSent)

	token, err := issuer.Issue(record.ID, record.Email, "storeA", "", DefaultClaimTokenTTL)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := verifier.Verify(context.Background(), token); err != nil {
		t.Fatalf("Verify: %v", err)
	}
}

func TestVerifyRejectsForeignTenant(t *testing.T) {
	verifier, issuer, claims := newVerifierFixture(t)
	record := seedClaim(claims, "jane@example.com", "storeB", types.ClaimStatusSent)

	token, err := issuer.Issue(record.ID, record.Email, "storeA", "", DefaultClaimTokenTTL)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	_, err = verifier.Verify(context.Background(), token)
	if !apierr.HasCode(err, apierr.CodeIntegrityViolation) {
		t.Fatalf("Verify: want integrity_violation, got %v", err)
	}
}

func TestVerifyRejectsExpiredClaimRequest(t *testing.T) {
	verifier, issuer, claims := newVerifierFixture(t)
	record := seedClaim(claims, "jane@example.com", "storeA", types.ClaimStatusExpired)

	token, err := issuer.Issue(record.ID, record.Email, record.Tenant, "", DefaultClaimTokenTTL)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	_, err = verifier.Verify(context.Background(), token)
	if !apierr.HasCode(err, apierr.CodeCredentialExpired) {
		t.Fatalf("Verify: want credential_expired, got %v", err)
	}
}

func TestVerifyAcceptsAlreadyClaimedRequest(t *testing.T) {
	verifier, issuer, claims := newVerifierFixture(t)
	record := seedClaim(claims, "jane@example.com", "storeA", types.ClaimStatusClaimed)

	token, err := issuer.Issue(record.ID, record.Email, record.Tenant, "", DefaultClaimTokenTTL)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	result, err := verifier.Verify(context.Background(), token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if result.ClaimRequest.Status != types.ClaimStatusClaimed {
		t.Fatalf("status: want=%q got=%q", types.ClaimStatusClaimed, result.ClaimRequest.Status)
	}
}

func TestVerifyDegradesOnStoreFailure(t *testing.T) {
	verifier, issuer, claims := newVerifierFixture(t)
	claims.getErr = fmt.Errorf("connection refused")

	requestID := uuid.New()
	token, err := issuer.Issue(requestID, "jane@example.com", "storeA", "lp-3", DefaultClaimTokenTTL)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	result, err := verifier.Verify(context.Background(), token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !result.Degraded {
		t.Fatalf("Verify: want degraded result on store failure")
	}
	if result.ClaimRequest.ID != requestID {
		t.Fatalf("claim id: want=%s got=%s", requestID, result.ClaimRequest.ID)
	}
	if result.ClaimRequest.Email != "jane@example.com" {
		t.Fatalf("email: want=%q got=%q", "jane@example.com", result.ClaimRequest.Email)
	}
	if result.ClaimRequest.LpID != "lp-3" {
		t.Fatalf("lp id: want=%q got=%q", "lp-3", result.ClaimRequest.LpID)
	}
}
