package services

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
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

const (
	paymentProvider          = "stripe"
	signatureTolerance       = 5 * time.Minute
	secretKeyCollisionTries  = 3
	EventPaymentSucceeded    = "payment_intent.succeeded"
	EventCheckoutCompleted   = "checkout.session.completed"
	EventPaymentFailed       = "payment_intent.payment_failed"
	signatureTimestampPrefix = "t="
	signatureV1Prefix        = "v1="
)

// PaymentEvent is the parsed webhook body. Metadata carries the merchant
// fields set at checkout time (tenant, lp_id, product).
type PaymentEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object struct {
			ID       string            `json:"id"`
			Amount   int64             `json:"amount"`
			Currency string            `json:"currency"`
			Receipt  string            `json:"receipt_email"`
			Customer struct {
				Email string `json:"email"`
			} `json:"customer_details"`
			Metadata map[string]string `json:"metadata"`
		} `json:"object"`
	} `json:"data"`
}

// HandleResult reports what the webhook did. Duplicate=true means the event
// was seen before and nothing changed.
type HandleResult struct {
	EventID   string
	OrderID   string
	Duplicate bool
	Handled   bool
	Email     SendResult
}

// PaymentEventHandler verifies, deduplicates and applies provider webhook
// events. Signature verification happens before any side effect, including
// the dedup insert.
type PaymentEventHandler interface {
	Handle(ctx context.Context, payload []byte, signatureHeader string) (*HandleResult, error)
}

type paymentEventHandler struct {
	db            *gorm.DB
	log           *logger.Logger
	webhookSecret string
	events        repos.WebhookEventRepo
	orders        repos.OrderRepo
	claims        repos.ClaimRequestRepo
	identity      IdentityResolver
	credentials   CredentialIssuer
	notifier      NotificationDispatcher
	now           func() time.Time
}

func NewPaymentEventHandler(
	db *gorm.DB,
	baseLog *logger.Logger,
	webhookSecret string,
	events repos.WebhookEventRepo,
	orders repos.OrderRepo,
	claims repos.ClaimRequestRepo,
	identity IdentityResolver,
	credentials CredentialIssuer,
	notifier NotificationDispatcher,
) (PaymentEventHandler, error) {
	if strings.TrimSpace(webhookSecret) == "" {
		return nil, fmt.Errorf("payment webhook secret is required")
	}
	return &paymentEventHandler{
		db:            db,
		log:           baseLog.With("service", "PaymentEventHandler"),
		webhookSecret: webhookSecret,
		events:        events,
		orders:        orders,
		claims:        claims,
		identity:      identity,
		credentials:   credentials,
		notifier:      notifier,
		now:           time.Now,
	}, nil
}

func (ph *paymentEventHandler) Handle(ctx context.Context, payload []byte, signatureHeader string) (*HandleResult, error) {
	if ph == nil || ph.db == nil {
		return nil, fmt.Errorf("payment event handler not configured")
	}

	if err := ph.verifySignature(payload, signatureHeader); err != nil {
		ph.log.Warn("webhook signature rejected", "error", err)
		return nil, err
	}

	var event PaymentEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, apierr.Validation(fmt.Errorf("parse webhook payload: %w", err))
	}
	if event.ID == "" || event.Type == "" {
		return nil, apierr.Validation(fmt.Errorf("webhook event missing id or type"))
	}

	inserted, err := ph.events.InsertIfNew(ctx, nil, &types.WebhookEvent{
		EventID:         event.ID,
		Provider:        paymentProvider,
		ProviderEventID: event.ID,
		EventType:       event.Type,
		Payload:         datatypes.JSON(payload),
		SignatureValid:  true,
	})
	if err != nil {
		return nil, fmt.Errorf("record webhook event: %w", err)
	}
	if !inserted {
		// Only a successfully processed prior delivery makes the replay a
		// no-op. A row with a processing error (or none at all yet) means
		// the provider is retrying a delivery we failed to apply, and the
		// event must run again.
		prior, err := ph.events.GetByEventID(ctx, nil, event.ID)
		if err != nil {
			return nil, fmt.Errorf("load webhook event: %w", err)
		}
		if prior != nil && prior.ProcessedAt != nil && prior.ProcessingError == "" {
			ph.log.Info("webhook replay ignored", "event_type", event.Type)
			return &HandleResult{EventID: event.ID, Duplicate: true}, nil
		}
		ph.log.Warn("retrying webhook event that previously failed", "event_type", event.Type)
	}

	result := &HandleResult{EventID: event.ID, OrderID: event.Data.Object.ID}

	switch event.Type {
	case EventPaymentSucceeded:
		err = ph.handlePaymentSucceeded(ctx, &event, result)
	case EventCheckoutCompleted:
		err = ph.handleCheckoutCompleted(ctx, &event, result)
	case EventPaymentFailed:
		err = ph.handlePaymentFailed(ctx, &event, result)
	default:
		ph.log.Info("webhook event type not handled", "event_type", event.Type)
	}

	if err != nil {
		if markErr := ph.events.MarkProcessed(ctx, nil, event.ID, err.Error()); markErr != nil {
			ph.log.Error("mark webhook event failed", "error", markErr)
		}
		return nil, err
	}
	if markErr := ph.events.MarkProcessed(ctx, nil, event.ID, ""); markErr != nil {
		ph.log.Error("mark webhook event processed failed", "error", markErr)
	}
	return result, nil
}

// verifySignature checks the t=...,v1=... header scheme: v1 is the hex HMAC
// SHA-256 of "<timestamp>.<payload>" under the shared secret, and the
// timestamp must be within tolerance of the current clock.
func (ph *paymentEventHandler) verifySignature(payload []byte, header string) error {
	var ts int64
	var sigs []string
	for _, part := range strings.Split(header, ",") {
		part = strings.TrimSpace(part)
		switch {
		case strings.HasPrefix(part, signatureTimestampPrefix):
			parsed, err := strconv.ParseInt(part[len(signatureTimestampPrefix):], 10, 64)
			if err != nil {
				return apierr.SignatureVerification(fmt.Errorf("malformed signature timestamp"))
			}
			ts = parsed
		case strings.HasPrefix(part, signatureV1Prefix):
			sigs = append(sigs, part[len(signatureV1Prefix):])
		}
	}
	if ts == 0 || len(sigs) == 0 {
		return apierr.SignatureVerification(fmt.Errorf("signature header missing timestamp or v1 entry"))
	}

	age := ph.now().Sub(time.Unix(ts, 0))
	if age > signatureTolerance || age < -signatureTolerance {
		return apierr.SignatureVerification(fmt.Errorf("signature timestamp outside tolerance"))
	}

	mac := hmac.New(sha256.New, []byte(ph.webhookSecret))
	mac.Write([]byte(strconv.FormatInt(ts, 10)))
	mac.Write([]byte("."))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	for _, sig := range sigs {
		if hmac.Equal([]byte(expected), []byte(sig)) {
			return nil
		}
	}
	return apierr.SignatureVerification(fmt.Errorf("no signature matched"))
}

// SignPayload produces the signature header for payload at ts. Exported for
// webhook senders in tests and the reconcile CLI.
func SignPayload(secret string, ts time.Time, payload []byte) string {
	unix := strconv.FormatInt(ts.Unix(), 10)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(unix))
	mac.Write([]byte("."))
	mac.Write(payload)
	return fmt.Sprintf("t=%s,v1=%s", unix, hex.EncodeToString(mac.Sum(nil)))
}

func (ph *paymentEventHandler) handlePaymentSucceeded(ctx context.Context, event *PaymentEvent, result *HandleResult) error {
	obj := event.Data.Object
	email := obj.Receipt
	if email == "" {
		email = obj.Customer.Email
	}
	if email == "" {
		return apierr.Validation(fmt.Errorf("payment event has no customer email"))
	}
	tenant := obj.Metadata["tenant"]
	if tenant == "" {
		tenant = "default"
	}
	// Checkout metadata may carry any alias; store the canonical id so the
	// order and the later manual-entry claim land under one tenant value.
	tenant = ph.identity.Canonical(ctx, tenant)

	key, err := ph.mintUniqueSecretKey(ctx)
	if err != nil {
		return err
	}
	keyExpiry := ph.now().Add(SecretKeyTTL)

	var claimID uuid.UUID
	err = ph.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := ph.orders.GetByOrderIDs(ctx, tx, []string{obj.ID})
		if err != nil {
			return err
		}
		if len(existing) == 0 {
			_, err = ph.orders.Create(ctx, tx, []*types.Order{{
				ID:                 uuid.New(),
				OrderID:            obj.ID,
				Email:              email,
				Tenant:             tenant,
				LpID:               obj.Metadata["lp_id"],
				Product:            obj.Metadata["product"],
				ProductType:        obj.Metadata["product_type"],
				SecretKey:          &key,
				SecretKeyExpiresAt: &keyExpiry,
				PaymentStatus:      types.PaymentStatusCompleted,
				Status:             types.OrderStatusPaid,
			}})
			if err != nil {
				return err
			}
		} else {
			if err := ph.orders.UpdateFieldsByOrderID(ctx, tx, obj.ID, map[string]any{
				"payment_status":        types.PaymentStatusCompleted,
				"status":                types.OrderStatusPaid,
				"secret_key":            key,
				"secret_key_expires_at": keyExpiry,
			}); err != nil {
				return err
			}
		}

		claims, err := ph.claims.GetByOrderID(ctx, tx, obj.ID)
		if err != nil {
			return err
		}
		if len(claims) > 0 {
			claimID = claims[0].ID
			return nil
		}
		created, err := ph.claims.Create(ctx, tx, []*types.ClaimRequest{{
			ID:          uuid.New(),
			Email:       email,
			Tenant:      tenant,
			LpID:        obj.Metadata["lp_id"],
			Product:     obj.Metadata["product"],
			ProductType: obj.Metadata["product_type"],
			OrderID:     obj.ID,
			Source:      types.ClaimSourceWebhook,
			Status:      types.ClaimStatusPending,
		}})
		if err != nil {
			return err
		}
		claimID = created[0].ID
		return nil
	})
	if err != nil {
		return fmt.Errorf("apply payment event: %w", err)
	}

	result.Handled = true
	result.Email = ph.notifier.Send(ctx, SendInput{
		Kind:      NotificationSecretKey,
		Tenant:    tenant,
		Email:     email,
		SecretKey: key,
	})
	if result.Email.Delivered {
		now := ph.now()
		if err := ph.claims.UpdateFields(ctx, nil, claimID, map[string]any{
			"status":  types.ClaimStatusSent,
			"sent_at": now,
		}); err != nil {
			ph.log.Warn("mark claim request sent failed", "error", err)
		}
	}
	return nil
}

// handleCheckoutCompleted only advances order status. No key is minted here;
// the key belongs to payment success.
func (ph *paymentEventHandler) handleCheckoutCompleted(ctx context.Context, event *PaymentEvent, result *HandleResult) error {
	obj := event.Data.Object
	existing, err := ph.orders.GetByOrderIDs(ctx, nil, []string{obj.ID})
	if err != nil {
		return err
	}
	if len(existing) == 0 {
		email := obj.Receipt
		if email == "" {
			email = obj.Customer.Email
		}
		_, err = ph.orders.Create(ctx, nil, []*types.Order{{
			ID:            uuid.New(),
			OrderID:       obj.ID,
			Email:         email,
			Tenant:        ph.identity.Canonical(ctx, obj.Metadata["tenant"]),
			LpID:          obj.Metadata["lp_id"],
			Product:       obj.Metadata["product"],
			ProductType:   obj.Metadata["product_type"],
			PaymentStatus: types.PaymentStatusPending,
			Status:        types.OrderStatusDraft,
		}})
		if err != nil {
			return fmt.Errorf("create order from checkout: %w", err)
		}
		result.Handled = true
		return nil
	}

	// A completed checkout settles an existing draft. Orders already paid
	// (or further along) are never moved backwards.
	if existing[0].Status == types.OrderStatusDraft {
		if err := ph.orders.UpdateFieldsByOrderID(ctx, nil, obj.ID, map[string]any{
			"status":         types.OrderStatusPaid,
			"payment_status": types.PaymentStatusCompleted,
		}); err != nil {
			return fmt.Errorf("advance order from checkout: %w", err)
		}
	}
	result.Handled = true
	return nil
}

func (ph *paymentEventHandler) handlePaymentFailed(ctx context.Context, event *PaymentEvent, result *HandleResult) error {
	obj := event.Data.Object
	existing, err := ph.orders.GetByOrderIDs(ctx, nil, []string{obj.ID})
	if err != nil {
		return err
	}
	if len(existing) == 0 {
		ph.log.Info("payment failure for unknown order", "event_type", event.Type)
		return nil
	}
	if err := ph.orders.UpdateFieldsByOrderID(ctx, nil, obj.ID, map[string]any{
		"payment_status": types.PaymentStatusFailed,
	}); err != nil {
		return err
	}
	result.Handled = true
	return nil
}

// mintUniqueSecretKey retries on collision against the unique index. Three
// misses in a 36^16 space means something else is wrong.
func (ph *paymentEventHandler) mintUniqueSecretKey(ctx context.Context) (string, error) {
	for i := 0; i < secretKeyCollisionTries; i++ {
		key, err := ph.credentials.NewSecretKey()
		if err != nil {
			return "", err
		}
		existing, err := ph.orders.GetBySecretKey(ctx, nil, key)
		if err != nil {
			return "", err
		}
		if existing == nil {
			return key, nil
		}
		ph.log.Warn("secret key collision, retrying")
	}
	return "", fmt.Errorf("secret key generation exhausted retries")
}
