package push

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"firebase.google.com/go/v4/messaging"
	"go.uber.org/zap/zaptest"

	"github.com/ArsPalazzz/memora-api-sub000/internal/core/domain"
)

func TestIsInvalidTokenError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "not registered", err: errors.New("registration-token-not-registered"), want: true},
		{name: "invalid registration", err: errors.New("messaging/invalid-registration-token: bad token"), want: true},
		{name: "entity not found", err: errors.New("Requested entity was not found."), want: true},
		{name: "not a valid token", err: errors.New("The registration token is not a valid FCM registration token"), want: true},
		{name: "unregistered code", err: errors.New("UNREGISTERED"), want: true},
		{name: "sender mismatch", err: errors.New("SENDER_ID_MISMATCH"), want: true},
		{name: "wrapped", err: fmt.Errorf("send: %w", errors.New("registration-token-not-registered")), want: true},
		{name: "quota", err: errors.New("QUOTA_EXCEEDED"), want: false},
		{name: "unavailable", err: errors.New("service unavailable"), want: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsInvalidTokenError(tc.err); got != tc.want {
				t.Fatalf("IsInvalidTokenError(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}

type fakeMessaging struct {
	errs     map[string]error
	messages []*messaging.Message
}

func (f *fakeMessaging) Send(_ context.Context, message *messaging.Message) (string, error) {
	f.messages = append(f.messages, message)
	if err, ok := f.errs[message.Token]; ok {
		return "", err
	}
	return "projects/memora/messages/" + message.Token, nil
}

func TestFCMSender_ClassifiesResults(t *testing.T) {
	client := &fakeMessaging{errs: map[string]error{
		"dead-token":  errors.New("registration-token-not-registered"),
		"flaky-token": errors.New("internal error"),
	}}
	sender := newFCMSender(client, 1000, 10, zaptest.NewLogger(t))

	msg := domain.PushMessage{
		Title: "Time to review",
		Body:  "You have 4 cards ready for review",
		Data:  map[string]string{"type": "review_reminder", "batch_sub": "batch-1", "action": "open_review"},
	}

	ok := sender.Send(context.Background(), "good-token", msg)
	if !ok.Success || ok.Err != nil || ok.MessageID == "" {
		t.Fatalf("expected success, got %+v", ok)
	}

	dead := sender.Send(context.Background(), "dead-token", msg)
	if dead.Success || !dead.InvalidToken || dead.Err == nil {
		t.Fatalf("expected invalid token failure, got %+v", dead)
	}

	flaky := sender.Send(context.Background(), "flaky-token", msg)
	if flaky.Success || flaky.InvalidToken {
		t.Fatalf("expected transient failure, got %+v", flaky)
	}

	sent := client.messages[0]
	if sent.Notification == nil || sent.Notification.Title != msg.Title {
		t.Fatalf("expected notification title to be set")
	}
	if sent.Data["batch_sub"] != "batch-1" || sent.Data["action"] != "open_review" {
		t.Fatalf("unexpected data payload %v", sent.Data)
	}
}

func TestFCMSender_CancelledContext(t *testing.T) {
	client := &fakeMessaging{}
	sender := newFCMSender(client, 1, 1, zaptest.NewLogger(t))

	// drain the single burst token so the next Wait has to block
	sender.Send(context.Background(), "t-1", domain.PushMessage{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := sender.Send(ctx, "t-2", domain.PushMessage{})
	if res.Success || res.Err == nil {
		t.Fatalf("expected throttled send to fail on cancelled context, got %+v", res)
	}
	if len(client.messages) != 1 {
		t.Fatalf("expected only the first message to reach FCM, got %d", len(client.messages))
	}
}

func TestLoggingSender(t *testing.T) {
	sender := NewLoggingSender(zaptest.NewLogger(t))

	res := sender.Send(context.Background(), "token-123456789", domain.PushMessage{Title: "hi"})
	if !res.Success {
		t.Fatalf("expected logging sender to report success")
	}
}
