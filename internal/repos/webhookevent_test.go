package repos

import (
	"context"
	"testing"

	"gorm.io/datatypes"

	"github.com/mementolink/mementolink-backend/internal/repos/testutil"
	"github.com/mementolink/mementolink-backend/internal/types"
)

func TestWebhookEventInsertIfNewDeduplicates(t *testing.T) {
	log := testutil.Logger(t)
	db := testutil.DB(t)
	repo := NewWebhookEventRepo(db, log)
	ctx := context.Background()

	event := func() *types.WebhookEvent {
		return &types.WebhookEvent{
			EventID:         "evt_1",
			Provider:        "stripe",
			ProviderEventID: "evt_1",
			EventType:       "payment_intent.succeeded",
			Payload:         datatypes.JSON([]byte(`{"id":"evt_1"}`)),
			SignatureValid:  true,
		}
	}

	inserted, err := repo.InsertIfNew(ctx, nil, event())
	if err != nil {
		t.Fatalf("InsertIfNew: %v", err)
	}
	if !inserted {
		t.Fatalf("InsertIfNew: want first insert to land")
	}

	replay, err := repo.InsertIfNew(ctx, nil, event())
	if err != nil {
		t.Fatalf("InsertIfNew replay: %v", err)
	}
	if replay {
		t.Fatalf("InsertIfNew replay: want duplicate not inserted")
	}
}

func TestWebhookEventInsertIfNewIgnoresEmptyEvent(t *testing.T) {
	log := testutil.Logger(t)
	db := testutil.DB(t)
	repo := NewWebhookEventRepo(db, log)
	ctx := context.Background()

	if inserted, err := repo.InsertIfNew(ctx, nil, nil); err != nil || inserted {
		t.Fatalf("InsertIfNew(nil): want no-op, got %v %v", inserted, err)
	}
	if inserted, err := repo.InsertIfNew(ctx, nil, &types.WebhookEvent{}); err != nil || inserted {
		t.Fatalf("InsertIfNew(empty): want no-op, got %v %v", inserted, err)
	}
}

func TestWebhookEventMarkProcessed(t *testing.T) {
	log := testutil.Logger(t)
	db := testutil.DB(t)
	repo := NewWebhookEventRepo(db, log)
	ctx := context.Background()

	if _, err := repo.InsertIfNew(ctx, nil, &types.WebhookEvent{
		EventID:         "evt_2",
		Provider:        "stripe",
		ProviderEventID: "evt_2",
		EventType:       "checkout.session.completed",
	}); err != nil {
		t.Fatalf("InsertIfNew: %v", err)
	}

	if err := repo.MarkProcessed(ctx, nil, "evt_2", ""); err != nil {
		t.Fatalf("MarkProcessed: %v", err)
	}
	event, err := repo.GetByEventID(ctx, nil, "evt_2")
	if err != nil {
		t.Fatalf("GetByEventID: %v", err)
	}
	if event == nil || event.ProcessedAt == nil {
		t.Fatalf("processed_at: want set, got %+v", event)
	}
	if event.ProcessingError != "" {
		t.Fatalf("processing_error: want empty, got %q", event.ProcessingError)
	}

	if err := repo.MarkProcessed(ctx, nil, "evt_2", "downstream failed"); err != nil {
		t.Fatalf("MarkProcessed error: %v", err)
	}
	event, err = repo.GetByEventID(ctx, nil, "evt_2")
	if err != nil {
		t.Fatalf("GetByEventID: %v", err)
	}
	if event.ProcessingError != "downstream failed" {
		t.Fatalf("processing_error: want recorded, got %q", event.ProcessingError)
	}
}
