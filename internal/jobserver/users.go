package jobserver

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Accounts gate access to the MCP surface. A new account sits in pending
// and can generate nothing until an operator approves it.
const (
	userStatusPending   = "pending"
	userStatusActive    = "active"
	userStatusSuspended = "suspended"

	roleAdmin = "admin"
	roleUser  = "user"
)

// UserRecord is the stored account profile.
type UserRecord struct {
	PK         string `dynamodbav:"PK"` // USER#{userId}
	SK         string `dynamodbav:"SK"` // PROFILE
	Email      string `dynamodbav:"email"`
	Name       string `dynamodbav:"name"`
	Status     string `dynamodbav:"status"`
	Role       string `dynamodbav:"role"`
	CreatedAt  string `dynamodbav:"createdAt"`
	ApprovedAt string `dynamodbav:"approvedAt,omitempty"`
}

// UsageRecord rolls up one user's generation volume for one month.
type UsageRecord struct {
	PK            string  `dynamodbav:"PK"` // USER#{userId}
	SK            string  `dynamodbav:"SK"` // USAGE#{YYYY-MM}
	DialogueCount int     `dynamodbav:"dialogueCount"`
	TotalTurns    int     `dynamodbav:"totalTurns"`
	TotalTokens   int     `dynamodbav:"totalTokens"`
	TotalCostUSD  float64 `dynamodbav:"totalCostUSD"`
}

func userKey(userID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: "USER#" + userID},
		"SK": &types.AttributeValueMemberS{Value: "PROFILE"},
	}
}

func usageKey(userID, month string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: "USER#" + userID},
		"SK": &types.AttributeValueMemberS{Value: "USAGE#" + month},
	}
}

// CreateUser inserts a pending account. Fails when the ID is taken.
func (s *Store) CreateUser(ctx context.Context, userID, email, name string) error {
	record := UserRecord{
		PK:        "USER#" + userID,
		SK:        "PROFILE",
		Email:     email,
		Name:      name,
		Status:    userStatusPending,
		Role:      roleUser,
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
	}
	av, err := attributevalue.MarshalMap(record)
	if err != nil {
		return fmt.Errorf("marshal user record: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           &s.tableName,
		Item:                av,
		ConditionExpression: aws.String("attribute_not_exists(PK)"),
	})
	if err != nil {
		return fmt.Errorf("create user %s: %w", userID, err)
	}
	return nil
}

// GetUser returns the profile for userID, or nil when absent.
func (s *Store) GetUser(ctx context.Context, userID string) (*UserRecord, error) {
	var user UserRecord
	found, err := s.getRecord(ctx, userKey(userID), &user)
	if err != nil {
		return nil, fmt.Errorf("get user %s: %w", userID, err)
	}
	if !found {
		return nil, nil
	}
	return &user, nil
}

// GetUserByEmail finds the account holding email, or nil when none does.
// Scan-backed; account lookups are rare and the table is small.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*UserRecord, error) {
	items, err := s.scanAll(ctx, "begins_with(PK, :kind) AND email = :email", map[string]types.AttributeValue{
		":kind":  &types.AttributeValueMemberS{Value: "USER#"},
		":email": &types.AttributeValueMemberS{Value: email},
	})
	if err != nil {
		return nil, fmt.Errorf("scan user by email: %w", err)
	}
	if len(items) == 0 {
		return nil, nil
	}

	var user UserRecord
	if err := attributevalue.UnmarshalMap(items[0], &user); err != nil {
		return nil, fmt.Errorf("decode user record: %w", err)
	}
	return &user, nil
}

// ApproveUser activates a pending account and stamps approvedAt.
func (s *Store) ApproveUser(ctx context.Context, userID string) error {
	return s.setUserStatus(ctx, userID, userStatusActive, true)
}

// SuspendUser cuts an account off without touching its keys; every key
// check re-reads the profile, so suspension takes effect immediately.
func (s *Store) SuspendUser(ctx context.Context, userID string) error {
	return s.setUserStatus(ctx, userID, userStatusSuspended, false)
}

func (s *Store) setUserStatus(ctx context.Context, userID, status string, stampApproval bool) error {
	expr := "SET #status = :status"
	values := map[string]types.AttributeValue{
		":status": &types.AttributeValueMemberS{Value: status},
	}
	if stampApproval {
		expr += ", approvedAt = :at"
		values[":at"] = &types.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339)}
	}

	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 &s.tableName,
		Key:                       userKey(userID),
		UpdateExpression:          aws.String(expr),
		ExpressionAttributeNames:  map[string]string{"#status": "status"},
		ExpressionAttributeValues: values,
	})
	if err != nil {
		return fmt.Errorf("set user %s %s: %w", userID, status, err)
	}
	return nil
}

// ListUsers returns every account profile.
func (s *Store) ListUsers(ctx context.Context) ([]UserRecord, error) {
	items, err := s.scanAll(ctx, "begins_with(PK, :kind) AND SK = :sk", map[string]types.AttributeValue{
		":kind": &types.AttributeValueMemberS{Value: "USER#"},
		":sk":   &types.AttributeValueMemberS{Value: "PROFILE"},
	})
	if err != nil {
		return nil, fmt.Errorf("scan users: %w", err)
	}

	var users []UserRecord
	if err := attributevalue.UnmarshalListOfMaps(items, &users); err != nil {
		return nil, fmt.Errorf("decode user records: %w", err)
	}
	return users, nil
}

// charsPerToken matches the rough estimate the generation side uses.
const charsPerToken = 4

// modelRates holds USD prices per million tokens.
var modelRates = map[string]struct{ input, output float64 }{
	"haiku":        {0.80, 4.00},
	"sonnet":       {3.00, 15.00},
	"nova-lite":    {0.06, 0.24},
	"gemini-flash": {0.075, 0.30},
	"gemini-pro":   {1.25, 10.00},
}

// EstimateCost prices a generation from raw character counts. Unknown
// models price at zero.
func EstimateCost(model string, inputChars, outputChars int) float64 {
	rate, ok := modelRates[model]
	if !ok {
		return 0
	}
	inTokens := float64(inputChars) / charsPerToken
	outTokens := float64(outputChars) / charsPerToken
	return (inTokens*rate.input + outTokens*rate.output) / 1_000_000
}

// RecordUsage stamps the dialogue item with its character counts and cost,
// then folds the run into the owner's monthly rollup.
func (s *Store) RecordUsage(ctx context.Context, dialogueID, userID, model string, inputChars, outputChars, turnCount int) error {
	cost := strconv.FormatFloat(EstimateCost(model, inputChars, outputChars), 'f', 6, 64)

	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:        &s.tableName,
		Key:              dialogueKey(dialogueID),
		UpdateExpression: aws.String("SET userId = :uid, inputCharCount = :in, outputCharCount = :out, estimatedCostUSD = :cost"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":uid":  &types.AttributeValueMemberS{Value: userID},
			":in":   &types.AttributeValueMemberN{Value: strconv.Itoa(inputChars)},
			":out":  &types.AttributeValueMemberN{Value: strconv.Itoa(outputChars)},
			":cost": &types.AttributeValueMemberN{Value: cost},
		},
	})
	if err != nil {
		return fmt.Errorf("stamp dialogue usage: %w", err)
	}

	month := time.Now().UTC().Format("2006-01")
	tokens := (inputChars + outputChars) / charsPerToken
	_, err = s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:        &s.tableName,
		Key:              usageKey(userID, month),
		UpdateExpression: aws.String("ADD dialogueCount :one, totalTurns :turns, totalTokens :tok, totalCostUSD :cost"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":one":   &types.AttributeValueMemberN{Value: "1"},
			":turns": &types.AttributeValueMemberN{Value: strconv.Itoa(turnCount)},
			":tok":   &types.AttributeValueMemberN{Value: strconv.Itoa(tokens)},
			":cost":  &types.AttributeValueMemberN{Value: cost},
		},
	})
	if err != nil {
		return fmt.Errorf("roll up monthly usage: %w", err)
	}
	return nil
}

// GetMonthlyUsage reads one month's rollup. Months with no activity come
// back zero-valued.
func (s *Store) GetMonthlyUsage(ctx context.Context, userID, month string) (*UsageRecord, error) {
	var usage UsageRecord
	if _, err := s.getRecord(ctx, usageKey(userID, month), &usage); err != nil {
		return nil, fmt.Errorf("get usage %s %s: %w", userID, month, err)
	}
	return &usage, nil
}
