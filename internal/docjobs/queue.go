package docjobs

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Queue moves render requests between the API and the worker pool.
type Queue interface {
	Send(ctx context.Context, body string) error
	Receive(ctx context.Context, maxMessages int, waitSeconds int) ([]Message, error)
	Delete(ctx context.Context, receiptHandle string) error
}

// Message is one queued render request envelope.
type Message struct {
	ID            string
	Body          string
	ReceiptHandle string
}

type jobPayload struct {
	ID           string            `json:"id"`
	TemplateName string            `json:"template_name"`
	PatientID    string            `json:"patient_id,omitempty"`
	Fields       map[string]string `json:"fields,omitempty"`
}

func encodePayload(payload jobPayload) (jobPayload, string, error) {
	if payload.ID == "" {
		payload.ID = uuid.NewString()
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return jobPayload{}, "", fmt.Errorf("docjobs: failed to encode payload: %w", err)
	}
	return payload, string(body), nil
}
