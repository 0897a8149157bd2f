package docjobs

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/clinicflow/insight-engine/pkg/logging"
)

func TestDynamoJobStore_PutPendingPersistsDefaults(t *testing.T) {
	mock := &mockDynamo{}
	store := NewDynamoJobStore(mock, "document_jobs", logging.Default())

	job := &Job{
		ID:           "job-123",
		TemplateName: "referral_letter",
		Fields:       map[string]string{"patient_name": "Ada"},
	}

	if err := store.PutPending(context.Background(), job); err != nil {
		t.Fatalf("PutPending returned error: %v", err)
	}

	if mock.putInput == nil {
		t.Fatalf("expected PutItem to be called")
	}

	var stored Job
	if err := attributevalue.UnmarshalMap(mock.putInput.Item, &stored); err != nil {
		t.Fatalf("failed to unmarshal stored job: %v", err)
	}

	if stored.Status != JobStatusPending {
		t.Fatalf("expected status pending, got %s", stored.Status)
	}
	if stored.CreatedAt == "" || stored.UpdatedAt == "" {
		t.Fatal("expected timestamps to be populated")
	}
	if stored.ExpiresAt <= time.Now().Unix() {
		t.Fatal("expected TTL to be in the future")
	}
	if stored.Fields["patient_name"] != "Ada" {
		t.Fatalf("expected fields to round-trip, got %v", stored.Fields)
	}

	if expr := mock.putInput.ConditionExpression; expr == nil || *expr != "attribute_not_exists(job_id)" {
		t.Fatalf("expected condition expression to prevent overwrites, got %v", expr)
	}
}

func TestDynamoJobStore_PutPendingNilJob(t *testing.T) {
	store := NewDynamoJobStore(&mockDynamo{}, "document_jobs", logging.Default())
	if err := store.PutPending(context.Background(), nil); err == nil {
		t.Fatal("expected error when job is nil")
	}
}

func TestDynamoJobStore_MarkCompleted_AliasesReservedNames(t *testing.T) {
	mock := &mockDynamo{}
	store := NewDynamoJobStore(mock, "document_jobs", logging.Default())

	if err := store.MarkCompleted(context.Background(), "job-123", "Dear Dr. Shah, ..."); err != nil {
		t.Fatalf("MarkCompleted returned error: %v", err)
	}

	if len(mock.updateInputs) != 1 {
		t.Fatalf("expected 1 update call, got %d", len(mock.updateInputs))
	}

	update := mock.updateInputs[0]

	names := update.ExpressionAttributeNames
	if names["#status"] != "status" || names["#error"] != "error_message" {
		t.Fatalf("expected reserved attribute names to be aliased, got %v", names)
	}
	if expr := update.ConditionExpression; expr == nil || *expr != "attribute_exists(job_id)" {
		t.Fatalf("expected update to require an existing row, got %v", expr)
	}

	values := update.ExpressionAttributeValues
	status := values[":status"].(*types.AttributeValueMemberS).Value
	if status != string(JobStatusCompleted) {
		t.Fatalf("expected completed status, got %s", status)
	}
	document := values[":document"].(*types.AttributeValueMemberS).Value
	if document != "Dear Dr. Shah, ..." {
		t.Fatalf("expected rendered document, got %q", document)
	}
	if errVal := values[":error"].(*types.AttributeValueMemberS).Value; errVal != "" {
		t.Fatalf("expected error message cleared, got %q", errVal)
	}
}

func TestDynamoJobStore_MarkFailed_SetsNullDocument(t *testing.T) {
	mock := &mockDynamo{}
	store := NewDynamoJobStore(mock, "document_jobs", logging.Default())

	if err := store.MarkFailed(context.Background(), "job-123", "template render failed"); err != nil {
		t.Fatalf("MarkFailed returned error: %v", err)
	}

	update := mock.updateInputs[0]
	if _, ok := update.ExpressionAttributeValues[":document"].(*types.AttributeValueMemberNULL); !ok {
		t.Fatalf("expected document to be set to NULL, got %T", update.ExpressionAttributeValues[":document"])
	}
	errVal := update.ExpressionAttributeValues[":error"].(*types.AttributeValueMemberS).Value
	if errVal != "template render failed" {
		t.Fatalf("expected error message persisted, got %q", errVal)
	}
}

func TestDynamoJobStore_UpdateMissingJob(t *testing.T) {
	mock := &mockDynamo{updateErr: &types.ConditionalCheckFailedException{}}
	store := NewDynamoJobStore(mock, "document_jobs", logging.Default())

	if err := store.MarkRunning(context.Background(), "job-404"); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
}

func TestDynamoJobStore_MarkCompleted_PropagatesError(t *testing.T) {
	mock := &mockDynamo{updateErr: errors.New("dynamo failed")}
	store := NewDynamoJobStore(mock, "document_jobs", logging.Default())

	err := store.MarkCompleted(context.Background(), "job-1", "doc")
	if err == nil || !strings.Contains(err.Error(), "dynamo failed") {
		t.Fatalf("expected dynamo error, got %v", err)
	}
}

func TestDynamoJobStore_Get_Success(t *testing.T) {
	mock := &mockDynamo{
		getOutput: &dynamodb.GetItemOutput{
			Item: map[string]types.AttributeValue{
				"job_id":        &types.AttributeValueMemberS{Value: "job-42"},
				"status":        &types.AttributeValueMemberS{Value: string(JobStatusCompleted)},
				"template_name": &types.AttributeValueMemberS{Value: "no_show_outreach"},
				"document":      &types.AttributeValueMemberS{Value: "Hi Ada, we missed you."},
			},
		},
	}
	store := NewDynamoJobStore(mock, "document_jobs", logging.Default())

	job, err := store.Get(context.Background(), "job-42")
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if job.ID != "job-42" || job.Status != JobStatusCompleted {
		t.Fatalf("unexpected job result: %#v", job)
	}
	if job.Document != "Hi Ada, we missed you." {
		t.Fatalf("unexpected document: %q", job.Document)
	}
}

func TestDynamoJobStore_Get_NotFound(t *testing.T) {
	mock := &mockDynamo{getOutput: &dynamodb.GetItemOutput{}}
	store := NewDynamoJobStore(mock, "document_jobs", logging.Default())

	_, err := store.Get(context.Background(), "job-42")
	if !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
}

func TestDynamoJobStore_Get_EmptyID(t *testing.T) {
	store := NewDynamoJobStore(&mockDynamo{}, "document_jobs", logging.Default())
	if _, err := store.Get(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty jobID")
	}
}

type mockDynamo struct {
	putInput     *dynamodb.PutItemInput
	putErr       error
	updateInputs []*dynamodb.UpdateItemInput
	updateErr    error
	getOutput    *dynamodb.GetItemOutput
	getErr       error
}

func (m *mockDynamo) PutItem(ctx context.Context, input *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	m.putInput = input
	return &dynamodb.PutItemOutput{}, m.putErr
}

func (m *mockDynamo) UpdateItem(ctx context.Context, input *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	m.updateInputs = append(m.updateInputs, input)
	if m.updateErr != nil {
		return nil, m.updateErr
	}
	return &dynamodb.UpdateItemOutput{}, nil
}

func (m *mockDynamo) GetItem(ctx context.Context, input *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	if m.getOutput == nil {
		return &dynamodb.GetItemOutput{}, nil
	}
	return m.getOutput, nil
}
