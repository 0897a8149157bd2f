package notify

import (
	"context"
	"testing"
)

func TestNewSendGridSender_NilWithoutAPIKey(t *testing.T) {
	sender := NewSendGridSender(SendGridConfig{
		APIKey:    "",
		FromEmail: "test@example.com",
	}, nil)

	if sender != nil {
		t.Error("expected nil sender when API key is empty")
	}
}

func TestNewSendGridSender_DefaultFromName(t *testing.T) {
	sender := NewSendGridSender(SendGridConfig{
		APIKey:    "test-key",
		FromEmail: "test@example.com",
		FromName:  "",
	}, nil)

	if sender == nil {
		t.Fatal("expected non-nil sender")
	}
	if sender.fromName != "ClinicFlow" {
		t.Errorf("expected default from name 'ClinicFlow', got %q", sender.fromName)
	}
}

func TestNewSendGridSender_CustomFromName(t *testing.T) {
	sender := NewSendGridSender(SendGridConfig{
		APIKey:    "test-key",
		FromEmail: "test@example.com",
		FromName:  "Front Desk",
	}, nil)

	if sender == nil {
		t.Fatal("expected non-nil sender")
	}
	if sender.fromName != "Front Desk" {
		t.Errorf("expected from name 'Front Desk', got %q", sender.fromName)
	}
}

func TestSendGridSender_Send_NilClient(t *testing.T) {
	sender := &SendGridSender{
		client: nil,
	}

	err := sender.Send(context.Background(), EmailMessage{
		To:      "recipient@example.com",
		Subject: "Test",
		Body:    "Test body",
	})

	if err == nil {
		t.Error("expected error when client is nil")
	}
}

func TestStubEmailSender_Send(t *testing.T) {
	sender := NewStubEmailSender(nil)

	err := sender.Send(context.Background(), EmailMessage{
		To:      "recipient@example.com",
		Subject: "Test Subject",
		Body:    "Test body",
	})

	if err != nil {
		t.Errorf("stub sender should not return error, got: %v", err)
	}
}

func TestSimpleSMSSender_UsesConfiguredFrom(t *testing.T) {
	var gotTo, gotFrom, gotBody string
	sender := NewSimpleSMSSender("+15550100", func(ctx context.Context, to, from, body string) error {
		gotTo, gotFrom, gotBody = to, from, body
		return nil
	}, nil)

	if err := sender.SendSMS(context.Background(), "+15550199", "hello"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotTo != "+15550199" || gotFrom != "+15550100" || gotBody != "hello" {
		t.Errorf("unexpected send args: to=%q from=%q body=%q", gotTo, gotFrom, gotBody)
	}
}

func TestSimpleSMSSender_NilFuncIsNoop(t *testing.T) {
	sender := NewSimpleSMSSender("+15550100", nil, nil)
	if err := sender.SendSMS(context.Background(), "+15550199", "hello"); err != nil {
		t.Errorf("expected nil error from unconfigured sender, got: %v", err)
	}
}

func TestStubSMSSender_Send(t *testing.T) {
	sender := NewStubSMSSender(nil)
	if err := sender.SendSMS(context.Background(), "+15550199", "a high risk appointment needs attention"); err != nil {
		t.Errorf("stub sender should not return error, got: %v", err)
	}
}
