package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"backend/internal/worker/tasks"

	"github.com/hibiken/asynq"
	"go.uber.org/zap/zaptest"
)

type fakeDeliverer struct {
	called  bool
	payload tasks.DeliverNotificationPayload
	retErr  error
}

func (f *fakeDeliverer) Deliver(ctx context.Context, payload tasks.DeliverNotificationPayload) error {
	f.called = true
	f.payload = payload
	return f.retErr
}

func TestNotificationHandlerHandleDeliverNotification_Success(t *testing.T) {
	deliverer := &fakeDeliverer{}
	h := NewNotificationHandler(deliverer, zaptest.NewLogger(t))
	ctx := context.Background()
	payload, _ := json.Marshal(tasks.DeliverNotificationPayload{
		UserIDs:     []string{"user-1"},
		Type:        "APPROVAL_REQUIRED",
		ReferenceID: "approval-1",
	})
	task := asynq.NewTask(tasks.TypeDeliverNotification, payload)
	if err := h.HandleDeliverNotification(ctx, task); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !deliverer.called || deliverer.payload.ReferenceID != "approval-1" {
		t.Fatalf("deliverer not invoked correctly: called=%v ref=%s", deliverer.called, deliverer.payload.ReferenceID)
	}
}

func TestNotificationHandlerHandleDeliverNotification_DeliverError(t *testing.T) {
	expectedErr := errors.New("boom")
	deliverer := &fakeDeliverer{retErr: expectedErr}
	h := NewNotificationHandler(deliverer, zaptest.NewLogger(t))
	ctx := context.Background()
	payload, _ := json.Marshal(tasks.DeliverNotificationPayload{UserIDs: []string{"user-1"}})
	task := asynq.NewTask(tasks.TypeDeliverNotification, payload)
	if err := h.HandleDeliverNotification(ctx, task); !errors.Is(err, expectedErr) {
		t.Fatalf("expected error %v, got %v", expectedErr, err)
	}
}

func TestNotificationHandlerHandleDeliverNotification_InvalidPayload(t *testing.T) {
	deliverer := &fakeDeliverer{}
	h := NewNotificationHandler(deliverer, zaptest.NewLogger(t))
	ctx := context.Background()
	task := asynq.NewTask(tasks.TypeDeliverNotification, []byte("not-json"))
	if err := h.HandleDeliverNotification(ctx, task); err == nil {
		t.Fatalf("expected error for invalid payload")
	}
	if deliverer.called {
		t.Fatalf("deliverer should not be called when payload invalid")
	}
}
