package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mementolink/mementolink-backend/internal/platform/apierr"
	"github.com/mementolink/mementolink-backend/internal/platform/logger"
	"github.com/mementolink/mementolink-backend/internal/repos"
	"github.com/mementolink/mementolink-backend/internal/types"
)

// VerifyResult carries the claim request a valid credential resolves to.
// Degraded means the store lookup failed and the record was reconstructed
// from the token payload alone; downstream treats it as valid input but the
// store-only fields (order id, provenance) are absent.
type VerifyResult struct {
	ClaimRequest *types.ClaimRequest
	Claims       *ClaimTokenClaims
	Degraded     bool
}

// ClaimVerifier validates inbound claim credentials. A credential for an
// already-claimed request is still valid: the same link re-authenticates a
// customer who comes back to add another page. Whether to provision again
// is the caller's decision, never the verifier's.
type ClaimVerifier interface {
	Verify(ctx context.Context, token string) (*VerifyResult, error)
}

type claimVerifier struct {
	db               *gorm.DB
	log              *logger.Logger
	issuer           CredentialIssuer
	claimRequestRepo repos.ClaimRequestRepo
	resolver         IdentityResolver
}

func NewClaimVerifier(
	db *gorm.DB,
	baseLog *logger.Logger,
	issuer CredentialIssuer,
	claimRequestRepo repos.ClaimRequestRepo,
	resolver IdentityResolver,
) ClaimVerifier {
	return &claimVerifier{
		db:               db,
		log:              baseLog.With("service", "ClaimVerifier"),
		issuer:           issuer,
		claimRequestRepo: claimRequestRepo,
		resolver:         resolver,
	}
}

func (cv *claimVerifier) Verify(ctx context.Context, token string) (*VerifyResult, error) {
	if cv == nil || cv.issuer == nil || cv.claimRequestRepo == nil {
		return nil, fmt.Errorf("claim verifier not configured")
	}
	if strings.TrimSpace(token) == "" {
		return nil, apierr.MalformedCredential(fmt.Errorf("missing claim token"))
	}

	claims, err := cv.issuer.Parse(token)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, apierr.CredentialExpired(fmt.Errorf("claim token expired"))
		}
		return nil, apierr.MalformedCredential(fmt.Errorf("claim token invalid: %w", err))
	}

	requestID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, apierr.MalformedCredential(fmt.Errorf("claim token subject invalid: %w", err))
	}

	records, lookupErr := cv.claimRequestRepo.GetByIDs(ctx, nil, []uuid.UUID{requestID})
	if lookupErr != nil {
		// Deliberate fallback: the token itself carries enough identity to
		// continue when the store is unavailable. Surfaced as Degraded, never
		// swallowed.
		cv.log.Warn("claim request lookup failed, degrading to token payload",
			"request_id", requestID.String(), "error", lookupErr)
		return &VerifyResult{
			ClaimRequest: cv.degradedRecord(requestID, claims),
			Claims:       claims,
			Degraded:     true,
		}, nil
	}
	if len(records) == 0 {
		return nil, apierr.NotFound(fmt.Errorf("claim request not found"))
	}
	record := records[0]

	if !strings.EqualFold(strings.TrimSpace(record.Email), strings.TrimSpace(claims.Email)) {
		cv.log.Warn("claim token email mismatch", "request_id", requestID.String())
		return nil, apierr.IntegrityViolation(fmt.Errorf("claim token does not match request"))
	}
	if !cv.tenantMatches(ctx, record.Tenant, claims.Tenant) {
		cv.log.Warn("claim token tenant mismatch", "request_id", requestID.String(),
			"record_tenant", record.Tenant)
		return nil, apierr.IntegrityViolation(fmt.Errorf("claim token does not match request"))
	}

	if record.Status == types.ClaimStatusExpired {
		return nil, apierr.CredentialExpired(fmt.Errorf("claim request expired"))
	}

	// Status claimed is not an error: re-presenting a claimed link supports
	// "log in again and add another memory page".
	return &VerifyResult{ClaimRequest: record, Claims: claims}, nil
}

func (cv *claimVerifier) tenantMatches(ctx context.Context, recordTenant, tokenTenant string) bool {
	recordTenant = strings.TrimSpace(recordTenant)
	tokenTenant = strings.TrimSpace(tokenTenant)
	if strings.EqualFold(recordTenant, tokenTenant) {
		return true
	}
	if cv.resolver == nil {
		return false
	}
	// Legacy records may carry a different alias of the same tenant.
	aliases, err := cv.resolver.Resolve(ctx, &tokenTenant)
	if err != nil {
		return false
	}
	for _, a := range aliases {
		if strings.EqualFold(a, recordTenant) {
			return true
		}
	}
	return false
}

func (cv *claimVerifier) degradedRecord(requestID uuid.UUID, claims *ClaimTokenClaims) *types.ClaimRequest {
	record := &types.ClaimRequest{
		ID:     requestID,
		Email:  claims.Email,
		Tenant: claims.Tenant,
		LpID:   claims.LpID,
		Status: types.ClaimStatusSent,
	}
	if claims.IssuedAt != nil {
		record.CreatedAt = claims.IssuedAt.Time
	}
	return record
}
