package services

import (
	"context"
	"fmt"
	"net/mail"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mementolink/mementolink-backend/internal/platform/apierr"
	"github.com/mementolink/mementolink-backend/internal/platform/logger"
	"github.com/mementolink/mementolink-backend/internal/repos"
	"github.com/mementolink/mementolink-backend/internal/types"
)

// IntakeInput is a landing-page claim submission plus its provenance.
type IntakeInput struct {
	Email          string
	Tenant         string
	LpID           string
	Product        string
	ProductType    string
	OrderID        string
	Origin         string
	IP             string
	UA             string
	RecaptchaScore float64
}

// IntakeResult is returned to the landing page. The token itself is only
// ever delivered by email; the result carries delivery state, not the token.
type IntakeResult struct {
	ClaimRequestID uuid.UUID
	Status         string
	Email          SendResult
}

// ClaimIntakeService records a landing-page submission, mints the claim
// token and dispatches the claim link.
type ClaimIntakeService interface {
	Submit(ctx context.Context, input IntakeInput) (*IntakeResult, error)
	// ListForStaff returns recent claim requests scoped to the staff
	// member's tenant aliases; a nil tenant lists across all tenants.
	ListForStaff(ctx context.Context, staffTenant *string, limit int) ([]*types.ClaimRequest, error)
}

type claimIntakeService struct {
	db           *gorm.DB
	log          *logger.Logger
	claims       repos.ClaimRequestRepo
	identity     IdentityResolver
	credentials  CredentialIssuer
	notifier     NotificationDispatcher
	claimBaseURL string
	now          func() time.Time
}

func NewClaimIntakeService(
	db *gorm.DB,
	baseLog *logger.Logger,
	claims repos.ClaimRequestRepo,
	identity IdentityResolver,
	credentials CredentialIssuer,
	notifier NotificationDispatcher,
	claimBaseURL string,
) ClaimIntakeService {
	return &claimIntakeService{
		db:           db,
		log:          baseLog.With("service", "ClaimIntakeService"),
		claims:       claims,
		identity:     identity,
		credentials:  credentials,
		notifier:     notifier,
		claimBaseURL: strings.TrimRight(claimBaseURL, "/"),
		now:          time.Now,
	}
}

func (cs *claimIntakeService) Submit(ctx context.Context, input IntakeInput) (*IntakeResult, error) {
	if cs == nil || cs.db == nil {
		return nil, fmt.Errorf("claim intake service not configured")
	}

	email := strings.ToLower(strings.TrimSpace(input.Email))
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, apierr.Validation(fmt.Errorf("invalid email address"))
	}
	tenant := strings.TrimSpace(input.Tenant)
	if tenant == "" {
		return nil, apierr.Validation(fmt.Errorf("tenant is required"))
	}
	// Landing pages address tenants by whichever alias they were configured
	// with; the stored record uses the canonical id.
	tenant = cs.identity.Canonical(ctx, tenant)

	created, err := cs.claims.Create(ctx, nil, []*types.ClaimRequest{{
		ID:             uuid.New(),
		Email:          email,
		Tenant:         tenant,
		LpID:           input.LpID,
		Product:        input.Product,
		ProductType:    input.ProductType,
		OrderID:        input.OrderID,
		Origin:         input.Origin,
		IP:             input.IP,
		UA:             input.UA,
		RecaptchaScore: input.RecaptchaScore,
		Source:         types.ClaimSourceManualEntry,
		Status:         types.ClaimStatusPending,
	}})
	if err != nil {
		return nil, fmt.Errorf("create claim request: %w", err)
	}
	record := created[0]

	token, err := cs.credentials.Issue(record.ID, email, tenant, input.LpID, DefaultClaimTokenTTL)
	if err != nil {
		return nil, fmt.Errorf("issue claim token: %w", err)
	}

	result := &IntakeResult{ClaimRequestID: record.ID, Status: record.Status}
	result.Email = cs.notifier.Send(ctx, SendInput{
		Kind:     NotificationClaimLink,
		Tenant:   tenant,
		Email:    email,
		ClaimURL: cs.claimURL(token),
	})
	if result.Email.Delivered {
		now := cs.now()
		if err := cs.claims.UpdateFields(ctx, nil, record.ID, map[string]any{
			"status":  types.ClaimStatusSent,
			"sent_at": now,
		}); err != nil {
			cs.log.Warn("mark claim request sent failed", "error", err)
		} else {
			result.Status = types.ClaimStatusSent
		}
	}
	return result, nil
}

func (cs *claimIntakeService) ListForStaff(ctx context.Context, staffTenant *string, limit int) ([]*types.ClaimRequest, error) {
	if cs == nil || cs.db == nil {
		return nil, fmt.Errorf("claim intake service not configured")
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if staffTenant == nil {
		return cs.claims.ListAll(ctx, nil, limit)
	}
	aliases, err := cs.identity.Resolve(ctx, staffTenant)
	if err != nil {
		return nil, err
	}
	return cs.claims.ListByTenants(ctx, nil, aliases, limit)
}

func (cs *claimIntakeService) claimURL(token string) string {
	return fmt.Sprintf("%s/claim?token=%s", cs.claimBaseURL, url.QueryEscape(token))
}
