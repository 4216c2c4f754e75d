package services

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/mementolink/mementolink-backend/internal/platform/apierr"
	"github.com/mementolink/mementolink-backend/internal/repos"
	"github.com/mementolink/mementolink-backend/internal/repos/testutil"
	"github.com/mementolink/mementolink-backend/internal/types"
)

const testWebhookSecret = "whsec_test"

type paymentFixture struct {
	handler  PaymentEventHandler
	notifier *fakeNotifier
	orders   repos.OrderRepo
	claims   repos.ClaimRequestRepo
	events   repos.WebhookEventRepo
}

func newPaymentFixture(t *testing.T) *paymentFixture {
	t.Helper()
	log := testutil.Logger(t)
	db := testutil.DB(t)

	events := repos.NewWebhookEventRepo(db, log)
	orders := repos.NewOrderRepo(db, log)
	claims := repos.NewClaimRequestRepo(db, log)

	issuer, err := NewCredentialIssuer(log, "test-secret")
	if err != nil {
		t.Fatalf("NewCredentialIssuer: %v", err)
	}
	notifier := &fakeNotifier{result: SendResult{Delivered: true, Attempts: 1}}
	resolver := &fakeResolver{
		aliases:   map[string][]string{"storeA": {"storeA", "t123"}},
		canonical: map[string]string{"t123": "storeA", "storeA": "storeA"},
	}

	handler, err := NewPaymentEventHandler(db, log, testWebhookSecret, events, orders, claims, resolver, issuer, notifier)
	if err != nil {
		t.Fatalf("NewPaymentEventHandler: %v", err)
	}
	return &paymentFixture{handler: handler, notifier: notifier, orders: orders, claims: claims, events: events}
}

func paymentEventPayload(t *testing.T, eventID, eventType, orderID, email string) []byte {
	t.Helper()
	payload, err := json.Marshal(map[string]any{
		"id":   eventID,
		"type": eventType,
		"data": map[string]any{
			"object": map[string]any{
				"id":            orderID,
				"amount":        4900,
				"currency":      "usd",
				"receipt_email": email,
				"metadata": map[string]string{
					"tenant":  "storeA",
					"lp_id":   "lp-1",
					"product": "nfc-frame",
				},
			},
		},
	})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return payload
}

func signedHeader(payload []byte) string {
	return SignPayload(testWebhookSecret, time.Now(), payload)
}

func TestPaymentHandleRejectsBadSignature(t *testing.T) {
	fx := newPaymentFixture(t)
	payload := paymentEventPayload(t, "evt_1", EventPaymentSucceeded, "pi_1", "jane@example.com")

	cases := []string{
		"",
		"t=123,v1=deadbeef",
		SignPayload("wrong-secret", time.Now(), payload),
		SignPayload(testWebhookSecret, time.Now().Add(-10*time.Minute), payload),
	}
	for _, header := range cases {
		_, err := fx.handler.Handle(context.Background(), payload, header)
		if !apierr.HasCode(err, apierr.CodeSignatureVerification) {
			t.Fatalf("Handle(header=%q): want signature_verification, got %v", header, err)
		}
	}

	// Nothing was recorded: signature runs before all side effects.
	event, err := fx.events.GetByEventID(context.Background(), nil, "evt_1")
	if err != nil {
		t.Fatalf("GetByEventID: %v", err)
	}
	if event != nil {
		t.Fatalf("webhook event recorded despite bad signature")
	}
}

func TestPaymentSucceededMintsKeyAndNotifies(t *testing.T) {
	fx := newPaymentFixture(t)
	payload := paymentEventPayload(t, "evt_2", EventPaymentSucceeded, "pi_2", "jane@example.com")

	result, err := fx.handler.Handle(context.Background(), payload, signedHeader(payload))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if !result.Handled || result.Duplicate {
		t.Fatalf("Handle: want handled non-duplicate, got %+v", result)
	}

	orders, err := fx.orders.GetByOrderIDs(context.Background(), nil, []string{"pi_2"})
	if err != nil {
		t.Fatalf("GetByOrderIDs: %v", err)
	}
	if len(orders) != 1 {
		t.Fatalf("order count: want=1 got=%d", len(orders))
	}
	order := orders[0]
	if order.PaymentStatus != types.PaymentStatusCompleted {
		t.Fatalf("payment status: want=%q got=%q", types.PaymentStatusCompleted, order.PaymentStatus)
	}
	if order.Status != types.OrderStatusPaid {
		t.Fatalf("order status: want=%q got=%q", types.OrderStatusPaid, order.Status)
	}
	if order.SecretKey == nil || !ValidSecretKeyFormat(*order.SecretKey) {
		t.Fatalf("secret key: want valid 16-char key, got %v", order.SecretKey)
	}
	if order.SecretKeyExpiresAt == nil {
		t.Fatalf("secret key expiry: want set")
	}
	wantExpiry := time.Now().Add(SecretKeyTTL)
	if diff := order.SecretKeyExpiresAt.Sub(wantExpiry); diff > time.Minute || diff < -time.Minute {
		t.Fatalf("secret key expiry: want ~%v got %v", wantExpiry, order.SecretKeyExpiresAt)
	}

	claims, err := fx.claims.GetByOrderID(context.Background(), nil, "pi_2")
	if err != nil {
		t.Fatalf("GetByOrderID: %v", err)
	}
	if len(claims) != 1 {
		t.Fatalf("claim count: want=1 got=%d", len(claims))
	}
	if claims[0].Source != types.ClaimSourceWebhook {
		t.Fatalf("claim source: want=%q got=%q", types.ClaimSourceWebhook, claims[0].Source)
	}
	if claims[0].Status != types.ClaimStatusSent {
		t.Fatalf("claim status: want=%q got=%q", types.ClaimStatusSent, claims[0].Status)
	}

	if len(fx.notifier.inputs) != 1 {
		t.Fatalf("notifications: want=1 got=%d", len(fx.notifier.inputs))
	}
	sent := fx.notifier.inputs[0]
	if sent.Kind != NotificationSecretKey {
		t.Fatalf("notification kind: want=%q got=%q", NotificationSecretKey, sent.Kind)
	}
	if sent.SecretKey != *order.SecretKey {
		t.Fatalf("notification key: want=%q got=%q", *order.SecretKey, sent.SecretKey)
	}
}

func TestPaymentReplayIsNoOp(t *testing.T) {
	fx := newPaymentFixture(t)
	payload := paymentEventPayload(t, "evt_3", EventPaymentSucceeded, "pi_3", "jane@example.com")

	if _, err := fx.handler.Handle(context.Background(), payload, signedHeader(payload)); err != nil {
		t.Fatalf("Handle first delivery: %v", err)
	}
	firstNotifies := len(fx.notifier.inputs)

	result, err := fx.handler.Handle(context.Background(), payload, signedHeader(payload))
	if err != nil {
		t.Fatalf("Handle replay: %v", err)
	}
	if !result.Duplicate {
		t.Fatalf("Handle replay: want duplicate, got %+v", result)
	}
	if len(fx.notifier.inputs) != firstNotifies {
		t.Fatalf("replay sent another notification")
	}
}

func TestCheckoutCompletedCreatesDraftWithoutKey(t *testing.T) {
	fx := newPaymentFixture(t)
	payload := paymentEventPayload(t, "evt_4", EventCheckoutCompleted, "cs_4", "jane@example.com")

	result, err := fx.handler.Handle(context.Background(), payload, signedHeader(payload))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if !result.Handled {
		t.Fatalf("Handle: want handled")
	}

	orders, err := fx.orders.GetByOrderIDs(context.Background(), nil, []string{"cs_4"})
	if err != nil {
		t.Fatalf("GetByOrderIDs: %v", err)
	}
	if len(orders) != 1 {
		t.Fatalf("order count: want=1 got=%d", len(orders))
	}
	order := orders[0]
	if order.Status != types.OrderStatusDraft {
		t.Fatalf("order status: want=%q got=%q", types.OrderStatusDraft, order.Status)
	}
	if order.SecretKey != nil {
		t.Fatalf("secret key: want none on checkout, got %q", *order.SecretKey)
	}
	if len(fx.notifier.inputs) != 0 {
		t.Fatalf("notifications: want=0 got=%d", len(fx.notifier.inputs))
	}
}

func TestPaymentFailedMarksOrder(t *testing.T) {
	fx := newPaymentFixture(t)

	checkout := paymentEventPayload(t, "evt_5", EventCheckoutCompleted, "pi_5", "jane@example.com")
	if _, err := fx.handler.Handle(context.Background(), checkout, signedHeader(checkout)); err != nil {
		t.Fatalf("Handle checkout: %v", err)
	}

	failed := paymentEventPayload(t, "evt_6", EventPaymentFailed, "pi_5", "jane@example.com")
	if _, err := fx.handler.Handle(context.Background(), failed, signedHeader(failed)); err != nil {
		t.Fatalf("Handle failure: %v", err)
	}

	orders, err := fx.orders.GetByOrderIDs(context.Background(), nil, []string{"pi_5"})
	if err != nil {
		t.Fatalf("GetByOrderIDs: %v", err)
	}
	if orders[0].PaymentStatus != types.PaymentStatusFailed {
		t.Fatalf("payment status: want=%q got=%q", types.PaymentStatusFailed, orders[0].PaymentStatus)
	}
}

func TestPaymentRejectsMalformedPayload(t *testing.T) {
	fx := newPaymentFixture(t)

	payload := []byte(`{"type":"payment_intent.succeeded"}`)
	_, err := fx.handler.Handle(context.Background(), payload, signedHeader(payload))
	if !apierr.HasCode(err, apierr.CodeValidation) {
		t.Fatalf("Handle: want validation_error for missing id, got %v", err)
	}

	payload = []byte(`not json`)
	_, err = fx.handler.Handle(context.Background(), payload, signedHeader(payload))
	if !apierr.HasCode(err, apierr.CodeValidation) {
		t.Fatalf("Handle: want validation_error for bad json, got %v", err)
	}
}

// flakyOrderRepo fails GetBySecretKey a set number of times before passing
// through, simulating a transient store outage during event handling.
type flakyOrderRepo struct {
	repos.OrderRepo
	failures int
}

func (f *flakyOrderRepo) GetBySecretKey(ctx context.Context, tx *gorm.DB, key string) (*types.Order, error) {
	if f.failures > 0 {
		f.failures--
		return nil, fmt.Errorf("transient store failure")
	}
	return f.OrderRepo.GetBySecretKey(ctx, tx, key)
}

func TestPaymentRetryAfterFailedHandlingReprocesses(t *testing.T) {
	log := testutil.Logger(t)
	db := testutil.DB(t)

	events := repos.NewWebhookEventRepo(db, log)
	orders := repos.NewOrderRepo(db, log)
	claims := repos.NewClaimRequestRepo(db, log)
	flaky := &flakyOrderRepo{OrderRepo: orders, failures: 1}

	issuer, err := NewCredentialIssuer(log, "test-secret")
	if err != nil {
		t.Fatalf("NewCredentialIssuer: %v", err)
	}
	notifier := &fakeNotifier{result: SendResult{Delivered: true, Attempts: 1}}
	resolver := &fakeResolver{}

	handler, err := NewPaymentEventHandler(db, log, testWebhookSecret, events, flaky, claims, resolver, issuer, notifier)
	if err != nil {
		t.Fatalf("NewPaymentEventHandler: %v", err)
	}

	payload := paymentEventPayload(t, "evt_7", EventPaymentSucceeded, "pi_7", "jane@example.com")

	if _, err := handler.Handle(context.Background(), payload, signedHeader(payload)); err == nil {
		t.Fatalf("Handle: want error while store is down")
	}
	existing, err := orders.GetByOrderIDs(context.Background(), nil, []string{"pi_7"})
	if err != nil {
		t.Fatalf("GetByOrderIDs: %v", err)
	}
	if len(existing) != 0 {
		t.Fatalf("order count after failed handling: want=0 got=%d", len(existing))
	}

	// The provider redelivers the identical event once the store is healthy.
	// The recorded row carries a processing error, so this is not a no-op.
	result, err := handler.Handle(context.Background(), payload, signedHeader(payload))
	if err != nil {
		t.Fatalf("Handle retry: %v", err)
	}
	if result.Duplicate {
		t.Fatalf("Handle retry: failed event classified as duplicate no-op")
	}
	if !result.Handled {
		t.Fatalf("Handle retry: want handled")
	}
	existing, err = orders.GetByOrderIDs(context.Background(), nil, []string{"pi_7"})
	if err != nil {
		t.Fatalf("GetByOrderIDs: %v", err)
	}
	if len(existing) != 1 || existing[0].SecretKey == nil {
		t.Fatalf("retry did not apply the payment: orders=%d", len(existing))
	}
	if len(notifier.inputs) != 1 {
		t.Fatalf("notifications: want=1 got=%d", len(notifier.inputs))
	}

	// A further replay of the now-processed event is a duplicate again.
	result, err = handler.Handle(context.Background(), payload, signedHeader(payload))
	if err != nil {
		t.Fatalf("Handle replay: %v", err)
	}
	if !result.Duplicate {
		t.Fatalf("Handle replay after success: want duplicate")
	}
	if len(notifier.inputs) != 1 {
		t.Fatalf("replay sent another notification")
	}
}

func TestPaymentSucceededCanonicalizesTenant(t *testing.T) {
	fx := newPaymentFixture(t)

	payload, err := json.Marshal(map[string]any{
		"id":   "evt_8",
		"type": EventPaymentSucceeded,
		"data": map[string]any{
			"object": map[string]any{
				"id":            "pi_8",
				"receipt_email": "jane@example.com",
				"metadata":      map[string]string{"tenant": "t123"},
			},
		},
	})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}

	if _, err := fx.handler.Handle(context.Background(), payload, signedHeader(payload)); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	orders, err := fx.orders.GetByOrderIDs(context.Background(), nil, []string{"pi_8"})
	if err != nil {
		t.Fatalf("GetByOrderIDs: %v", err)
	}
	if len(orders) != 1 || orders[0].Tenant != "storeA" {
		t.Fatalf("order tenant: want canonical %q, got %+v", "storeA", orders)
	}
	claims, err := fx.claims.GetByOrderID(context.Background(), nil, "pi_8")
	if err != nil {
		t.Fatalf("GetByOrderID: %v", err)
	}
	if len(claims) != 1 || claims[0].Tenant != "storeA" {
		t.Fatalf("claim tenant: want canonical %q, got %+v", "storeA", claims)
	}
}

func TestCheckoutCompletedAdvancesExistingDraft(t *testing.T) {
	fx := newPaymentFixture(t)

	first := paymentEventPayload(t, "evt_9", EventCheckoutCompleted, "cs_9", "jane@example.com")
	if _, err := fx.handler.Handle(context.Background(), first, signedHeader(first)); err != nil {
		t.Fatalf("Handle first checkout: %v", err)
	}

	second := paymentEventPayload(t, "evt_10", EventCheckoutCompleted, "cs_9", "jane@example.com")
	if _, err := fx.handler.Handle(context.Background(), second, signedHeader(second)); err != nil {
		t.Fatalf("Handle second checkout: %v", err)
	}

	orders, err := fx.orders.GetByOrderIDs(context.Background(), nil, []string{"cs_9"})
	if err != nil {
		t.Fatalf("GetByOrderIDs: %v", err)
	}
	order := orders[0]
	if order.Status != types.OrderStatusPaid {
		t.Fatalf("order status: want=%q got=%q", types.OrderStatusPaid, order.Status)
	}
	if order.PaymentStatus != types.PaymentStatusCompleted {
		t.Fatalf("payment status: want=%q got=%q", types.PaymentStatusCompleted, order.PaymentStatus)
	}
	if order.SecretKey != nil {
		t.Fatalf("secret key: want none from checkout, got %q", *order.SecretKey)
	}
}

func TestCheckoutCompletedNeverDowngradesPaidOrder(t *testing.T) {
	fx := newPaymentFixture(t)

	paid := paymentEventPayload(t, "evt_11", EventPaymentSucceeded, "pi_11", "jane@example.com")
	if _, err := fx.handler.Handle(context.Background(), paid, signedHeader(paid)); err != nil {
		t.Fatalf("Handle payment: %v", err)
	}
	before, err := fx.orders.GetByOrderIDs(context.Background(), nil, []string{"pi_11"})
	if err != nil {
		t.Fatalf("GetByOrderIDs: %v", err)
	}

	checkout := paymentEventPayload(t, "evt_12", EventCheckoutCompleted, "pi_11", "jane@example.com")
	if _, err := fx.handler.Handle(context.Background(), checkout, signedHeader(checkout)); err != nil {
		t.Fatalf("Handle checkout: %v", err)
	}

	after, err := fx.orders.GetByOrderIDs(context.Background(), nil, []string{"pi_11"})
	if err != nil {
		t.Fatalf("GetByOrderIDs: %v", err)
	}
	if after[0].Status != types.OrderStatusPaid {
		t.Fatalf("order status: want=%q got=%q", types.OrderStatusPaid, after[0].Status)
	}
	if before[0].SecretKey == nil || after[0].SecretKey == nil || *before[0].SecretKey != *after[0].SecretKey {
		t.Fatalf("secret key changed by checkout event")
	}
}

func TestSignPayloadVerifiesRoundTrip(t *testing.T) {
	fx := newPaymentFixture(t)
	ph := fx.handler.(*paymentEventHandler)

	payload := []byte(`{"id":"evt_x","type":"noop"}`)
	header := SignPayload(testWebhookSecret, time.Now(), payload)
	if err := ph.verifySignature(payload, header); err != nil {
		t.Fatalf("verifySignature: %v", err)
	}

	// Tampered body fails against the same header.
	if err := ph.verifySignature([]byte(`{"id":"evt_y"}`), header); err == nil {
		t.Fatalf("verifySignature: want failure for tampered payload")
	}
}
