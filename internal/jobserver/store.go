package jobserver

import (
	"context"
	"crypto/rand"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/oklog/ulid/v2"
)

// JobStatus represents the state of a dialogue generation job.
type JobStatus string

const (
	JobStatusSubmitted  JobStatus = "submitted"
	JobStatusIngesting  JobStatus = "ingesting"
	JobStatusExtracting JobStatus = "extracting"
	JobStatusGenerating JobStatus = "generating"
	JobStatusValidating JobStatus = "validating"
	JobStatusComplete   JobStatus = "complete"
	JobStatusFailed     JobStatus = "failed"
)

// DialogueItem is the DynamoDB record for one generated dialogue.
type DialogueItem struct {
	PK              string  `dynamodbav:"PK"`
	SK              string  `dynamodbav:"SK"`
	GSI1PK          string  `dynamodbav:"GSI1PK"`
	GSI1SK          string  `dynamodbav:"GSI1SK"`
	DialogueID      string  `dynamodbav:"dialogueId"`
	Title           string  `dynamodbav:"title,omitempty"`
	Summary         string  `dynamodbav:"summary,omitempty"`
	Owner           string  `dynamodbav:"owner"`
	SourceURL       string  `dynamodbav:"sourceUrl,omitempty"`
	Topic           string  `dynamodbav:"topic,omitempty"`
	Status          string  `dynamodbav:"status"`
	ProgressPercent float64 `dynamodbav:"progressPercent,omitempty"`
	StageMessage    string  `dynamodbav:"stageMessage,omitempty"`
	ErrorMessage    string  `dynamodbav:"errorMessage,omitempty"`
	Model           string  `dynamodbav:"model,omitempty"`
	Tone            string  `dynamodbav:"tone,omitempty"`
	Speakers        int     `dynamodbav:"speakers,omitempty"`
	TurnCount       int     `dynamodbav:"turnCount,omitempty"`
	QualityScore    int     `dynamodbav:"qualityScore,omitempty"`
	Passed          bool    `dynamodbav:"passed,omitempty"`
	Duration        string  `dynamodbav:"duration,omitempty"`
	FileSizeMB      float64 `dynamodbav:"fileSizeMB,omitempty"`
	TranscriptKey   string  `dynamodbav:"transcriptKey,omitempty"`
	TranscriptURL   string  `dynamodbav:"transcriptUrl,omitempty"`
	TranscriptJSON  string  `dynamodbav:"transcriptJson,omitempty"`
	CreatedAt       string  `dynamodbav:"createdAt"`

	// Usage tracking fields (set after job completion)
	UserID           string  `dynamodbav:"userId,omitempty"`
	InputCharCount   int     `dynamodbav:"inputCharCount,omitempty"`
	OutputCharCount  int     `dynamodbav:"outputCharCount,omitempty"`
	EstimatedCostUSD float64 `dynamodbav:"estimatedCostUSD,omitempty"`
}

// JobResult carries the final metadata written when a job completes.
type JobResult struct {
	Title          string
	Summary        string
	TranscriptKey  string
	TranscriptURL  string
	TranscriptJSON string
	Duration       string
	TurnCount      int
	Score          int
	Passed         bool
	SizeMB         float64
}

// Store handles DynamoDB operations for dialogue jobs.
type Store struct {
	client    *dynamodb.Client
	tableName string
}

// NewStore creates a DynamoDB store.
func NewStore(client *dynamodb.Client, tableName string) *Store {
	return &Store{client: client, tableName: tableName}
}

// NewDialogueID generates a ULID for a new dialogue job.
func NewDialogueID() (string, error) {
	id, err := ulid.New(ulid.Timestamp(time.Now()), rand.Reader)
	if err != nil {
		return "", fmt.Errorf("generate ulid: %w", err)
	}
	return id.String(), nil
}

// CreateJob inserts a new dialogue job with status=submitted.
func (s *Store) CreateJob(ctx context.Context, id, owner, sourceURL, topic, model, tone string, speakers int) error {
	now := time.Now().UTC().Format(time.RFC3339)
	item := DialogueItem{
		PK:         "DIALOGUE#" + id,
		SK:         "METADATA",
		GSI1PK:     "DIALOGUES",
		GSI1SK:     now + "#" + id,
		DialogueID: id,
		Owner:      owner,
		SourceURL:  sourceURL,
		Topic:      topic,
		Status:     string(JobStatusSubmitted),
		Model:      model,
		Tone:       tone,
		Speakers:   speakers,
		CreatedAt:  now,
	}

	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("marshal job item: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           &s.tableName,
		Item:                av,
		ConditionExpression: aws.String("attribute_not_exists(PK)"),
	})
	if err != nil {
		return fmt.Errorf("put job item: %w", err)
	}
	return nil
}

// UpdateProgress updates the job's status, progress percent, and stage message.
func (s *Store) UpdateProgress(ctx context.Context, id string, status JobStatus, percent float64, message string) error {
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: &s.tableName,
		Key:       dialogueKey(id),
		UpdateExpression: aws.String("SET #status = :status, progressPercent = :pct, stageMessage = :msg"),
		ExpressionAttributeNames: map[string]string{
			"#status": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":status": &types.AttributeValueMemberS{Value: string(status)},
			":pct":    &types.AttributeValueMemberN{Value: fmt.Sprintf("%.2f", percent)},
			":msg":    &types.AttributeValueMemberS{Value: message},
		},
	})
	if err != nil {
		return fmt.Errorf("update progress: %w", err)
	}
	return nil
}

// CompleteJob marks the job as complete with final metadata.
func (s *Store) CompleteJob(ctx context.Context, id string, res JobResult) error {
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: &s.tableName,
		Key:       dialogueKey(id),
		UpdateExpression: aws.String("SET #status = :status, progressPercent = :pct, stageMessage = :msg, " +
			"title = :title, summary = :summary, transcriptKey = :tkey, transcriptUrl = :turl, " +
			"#dur = :dur, turnCount = :turns, qualityScore = :score, passed = :passed, " +
			"fileSizeMB = :sz, transcriptJson = :tj"),
		ExpressionAttributeNames: map[string]string{
			"#status": "status",
			"#dur":    "duration",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":status": &types.AttributeValueMemberS{Value: string(JobStatusComplete)},
			":pct":    &types.AttributeValueMemberN{Value: "1.00"},
			":msg":    &types.AttributeValueMemberS{Value: "Complete"},
			":title":  &types.AttributeValueMemberS{Value: res.Title},
			":summary": &types.AttributeValueMemberS{Value: res.Summary},
			":tkey":   &types.AttributeValueMemberS{Value: res.TranscriptKey},
			":turl":   &types.AttributeValueMemberS{Value: res.TranscriptURL},
			":dur":    &types.AttributeValueMemberS{Value: res.Duration},
			":turns":  &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", res.TurnCount)},
			":score":  &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", res.Score)},
			":passed": &types.AttributeValueMemberBOOL{Value: res.Passed},
			":sz":     &types.AttributeValueMemberN{Value: fmt.Sprintf("%.2f", res.SizeMB)},
			":tj":     &types.AttributeValueMemberS{Value: res.TranscriptJSON},
		},
	})
	if err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	return nil
}

// FailJob marks the job as failed with an error message.
func (s *Store) FailJob(ctx context.Context, id, errMsg string) error {
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: &s.tableName,
		Key:       dialogueKey(id),
		UpdateExpression: aws.String("SET #status = :status, errorMessage = :err, stageMessage = :msg"),
		ExpressionAttributeNames: map[string]string{
			"#status": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":status": &types.AttributeValueMemberS{Value: string(JobStatusFailed)},
			":err":    &types.AttributeValueMemberS{Value: errMsg},
			":msg":    &types.AttributeValueMemberS{Value: "Failed: " + errMsg},
		},
	})
	if err != nil {
		return fmt.Errorf("fail job: %w", err)
	}
	return nil
}

// GetDialogue retrieves a single dialogue by ID. Returns nil when absent.
func (s *Store) GetDialogue(ctx context.Context, id string) (*DialogueItem, error) {
	var item DialogueItem
	found, err := s.getRecord(ctx, dialogueKey(id), &item)
	if err != nil {
		return nil, fmt.Errorf("get dialogue: %w", err)
	}
	if !found {
		return nil, nil
	}
	return &item, nil
}

// ListDialogues returns dialogues ordered by creation time (newest first) via GSI1.
func (s *Store) ListDialogues(ctx context.Context, limit int, cursor string) ([]DialogueItem, string, error) {
	if limit <= 0 {
		limit = 20
	}

	input := &dynamodb.QueryInput{
		TableName:              &s.tableName,
		IndexName:              aws.String("GSI1"),
		KeyConditionExpression: aws.String("GSI1PK = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: "DIALOGUES"},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(int32(limit)),
	}

	if cursor != "" {
		startKey, err := cursorStartKey(cursor)
		if err != nil {
			return nil, "", err
		}
		input.ExclusiveStartKey = startKey
	}

	result, err := s.client.Query(ctx, input)
	if err != nil {
		return nil, "", fmt.Errorf("list dialogues: %w", err)
	}

	var items []DialogueItem
	if err := attributevalue.UnmarshalListOfMaps(result.Items, &items); err != nil {
		return nil, "", fmt.Errorf("unmarshal dialogue list: %w", err)
	}

	var nextCursor string
	if result.LastEvaluatedKey != nil {
		if gsi1sk, ok := result.LastEvaluatedKey["GSI1SK"].(*types.AttributeValueMemberS); ok {
			nextCursor = gsi1sk.Value
		}
	}

	return items, nextCursor, nil
}

// ListUserDialogues returns dialogues for a specific user.
func (s *Store) ListUserDialogues(ctx context.Context, userID string, limit int) ([]DialogueItem, error) {
	if limit <= 0 {
		limit = 20
	}

	// Scan with filter on userId (acceptable for small dataset)
	result, err := s.client.Scan(ctx, &dynamodb.ScanInput{
		TableName:        &s.tableName,
		FilterExpression: aws.String("begins_with(PK, :prefix) AND userId = :uid"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":prefix": &types.AttributeValueMemberS{Value: "DIALOGUE#"},
			":uid":    &types.AttributeValueMemberS{Value: userID},
		},
		Limit: aws.Int32(int32(limit)),
	})
	if err != nil {
		return nil, fmt.Errorf("list user dialogues: %w", err)
	}

	var items []DialogueItem
	if err := attributevalue.UnmarshalListOfMaps(result.Items, &items); err != nil {
		return nil, fmt.Errorf("unmarshal dialogues: %w", err)
	}
	return items, nil
}

func dialogueKey(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: "DIALOGUE#" + id},
		"SK": &types.AttributeValueMemberS{Value: "METADATA"},
	}
}

// getRecord loads a single item into out. The bool reports whether the
// item exists; out is untouched when it does not.
func (s *Store) getRecord(ctx context.Context, key map[string]types.AttributeValue, out any) (bool, error) {
	res, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: &s.tableName,
		Key:       key,
	})
	if err != nil {
		return false, err
	}
	if res.Item == nil {
		return false, nil
	}
	if err := attributevalue.UnmarshalMap(res.Item, out); err != nil {
		return false, err
	}
	return true, nil
}

// scanAll runs a filtered scan to completion, following pagination.
func (s *Store) scanAll(ctx context.Context, filter string, values map[string]types.AttributeValue) ([]map[string]types.AttributeValue, error) {
	var items []map[string]types.AttributeValue
	var startKey map[string]types.AttributeValue
	for {
		res, err := s.client.Scan(ctx, &dynamodb.ScanInput{
			TableName:                 &s.tableName,
			FilterExpression:          aws.String(filter),
			ExpressionAttributeValues: values,
			ExclusiveStartKey:         startKey,
		})
		if err != nil {
			return nil, err
		}
		items = append(items, res.Items...)
		if res.LastEvaluatedKey == nil {
			return items, nil
		}
		startKey = res.LastEvaluatedKey
	}
}

// cursorStartKey rebuilds the GSI1 exclusive start key from a list cursor.
// The cursor is the full GSI1SK value ({timestamp}#{id}).
func cursorStartKey(cursor string) (map[string]types.AttributeValue, error) {
	parts := strings.SplitN(cursor, "#", 2)
	if len(parts) != 2 || parts[1] == "" {
		return nil, fmt.Errorf("invalid cursor format")
	}
	return map[string]types.AttributeValue{
		"PK":     &types.AttributeValueMemberS{Value: "DIALOGUE#" + parts[1]},
		"SK":     &types.AttributeValueMemberS{Value: "METADATA"},
		"GSI1PK": &types.AttributeValueMemberS{Value: "DIALOGUES"},
		"GSI1SK": &types.AttributeValueMemberS{Value: cursor},
	}, nil
}
