package jobserver

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// API keys are pk_{64 hex} strings. The first keyPrefixLen hex chars after
// pk_ double as the DynamoDB lookup key; only a SHA-256 of the full key is
// ever stored.
const (
	keyPrefixLen = 8

	keyStatusActive  = "active"
	keyStatusRevoked = "revoked"
)

// lastUsedGranularity bounds how often a key's lastUsedAt gets rewritten.
const lastUsedGranularity = time.Minute

// AuthResult identifies the caller behind a validated API key.
type AuthResult struct {
	Authenticated bool
	UserID        string
	Role          string // roleAdmin or roleUser
	KeyID         string // key prefix, safe to log
}

type authContextKey struct{}

// WithAuthResult attaches the auth result to ctx for downstream handlers.
func WithAuthResult(ctx context.Context, result AuthResult) context.Context {
	return context.WithValue(ctx, authContextKey{}, result)
}

// AuthFromContext returns the auth result, or an unauthenticated zero value.
func AuthFromContext(ctx context.Context) AuthResult {
	if result, ok := ctx.Value(authContextKey{}).(AuthResult); ok {
		return result
	}
	return AuthResult{}
}

// APIKeyRecord is the stored form of an issued key.
type APIKeyRecord struct {
	PK         string `dynamodbav:"PK"` // APIKEY#{prefix}
	SK         string `dynamodbav:"SK"` // METADATA
	UserID     string `dynamodbav:"userId"`
	KeyHash    string `dynamodbav:"keyHash"`
	Name       string `dynamodbav:"name"`
	Status     string `dynamodbav:"status"`
	CreatedAt  string `dynamodbav:"createdAt"`
	LastUsedAt string `dynamodbav:"lastUsedAt,omitempty"`
}

func apiKeyKey(prefix string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: "APIKEY#" + prefix},
		"SK": &types.AttributeValueMemberS{Value: "METADATA"},
	}
}

// parseAPIKey derives the lookup prefix and SHA-256 hex digest of a raw key.
func parseAPIKey(token string) (prefix, keyHash string, err error) {
	rest, ok := strings.CutPrefix(token, "pk_")
	if !ok {
		return "", "", errors.New("unrecognized API key format")
	}
	if len(rest) < keyPrefixLen {
		return "", "", errors.New("API key too short")
	}
	digest := sha256.Sum256([]byte(token))
	return rest[:keyPrefixLen], hex.EncodeToString(digest[:]), nil
}

// ValidateAPIKey resolves a bearer token to its owning user. The stored hash
// is compared in constant time; a matching key still fails when the key or
// its owner is not active.
func (s *Store) ValidateAPIKey(ctx context.Context, bearerToken string) (*AuthResult, error) {
	token := strings.TrimSpace(strings.TrimPrefix(bearerToken, "Bearer "))
	if token == "" {
		return nil, errors.New("empty API key")
	}
	prefix, keyHash, err := parseAPIKey(token)
	if err != nil {
		return nil, err
	}

	var key APIKeyRecord
	found, err := s.getRecord(ctx, apiKeyKey(prefix), &key)
	if err != nil {
		return nil, fmt.Errorf("api key lookup: %w", err)
	}
	if !found {
		return nil, errors.New("unknown API key")
	}
	if subtle.ConstantTimeCompare([]byte(key.KeyHash), []byte(keyHash)) != 1 {
		return nil, errors.New("invalid API key")
	}
	if key.Status != keyStatusActive {
		return nil, fmt.Errorf("API key is %s", key.Status)
	}

	var user UserRecord
	found, err = s.getRecord(ctx, userKey(key.UserID), &user)
	if err != nil {
		return nil, fmt.Errorf("key owner lookup: %w", err)
	}
	if !found {
		return nil, errors.New("API key has no owner")
	}
	if user.Status != userStatusActive {
		return nil, fmt.Errorf("user account is %s", user.Status)
	}

	// Best-effort; auth never blocks on the timestamp write.
	go s.touchKey(context.WithoutCancel(ctx), prefix)

	return &AuthResult{
		Authenticated: true,
		UserID:        key.UserID,
		Role:          user.Role,
		KeyID:         prefix,
	}, nil
}

// touchKey advances lastUsedAt unless the stamp is already fresher than
// lastUsedGranularity.
func (s *Store) touchKey(ctx context.Context, prefix string) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	now := time.Now().UTC()
	_, _ = s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           &s.tableName,
		Key:                 apiKeyKey(prefix),
		UpdateExpression:    aws.String("SET lastUsedAt = :now"),
		ConditionExpression: aws.String("attribute_not_exists(lastUsedAt) OR lastUsedAt < :floor"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":now":   &types.AttributeValueMemberS{Value: now.Format(time.RFC3339)},
			":floor": &types.AttributeValueMemberS{Value: now.Add(-lastUsedGranularity).Format(time.RFC3339)},
		},
	})
}

// CreateAPIKey mints a key for userID and stores only its hash. The
// plaintext is returned exactly once and cannot be recovered.
func (s *Store) CreateAPIKey(ctx context.Context, userID, keyName string) (plaintext, prefix string, err error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", "", fmt.Errorf("read random: %w", err)
	}
	plaintext = "pk_" + hex.EncodeToString(raw)

	// Run the new key through the same derivation validation uses.
	prefix, keyHash, err := parseAPIKey(plaintext)
	if err != nil {
		return "", "", err
	}

	record := APIKeyRecord{
		PK:        "APIKEY#" + prefix,
		SK:        "METADATA",
		UserID:    userID,
		KeyHash:   keyHash,
		Name:      keyName,
		Status:    keyStatusActive,
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
	}
	av, err := attributevalue.MarshalMap(record)
	if err != nil {
		return "", "", fmt.Errorf("marshal key record: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           &s.tableName,
		Item:                av,
		ConditionExpression: aws.String("attribute_not_exists(PK)"),
	})
	if err != nil {
		return "", "", fmt.Errorf("store key record: %w", err)
	}
	return plaintext, prefix, nil
}

// RevokeAPIKey flips a key to revoked. The record stays in the table so the
// prefix cannot be reissued.
func (s *Store) RevokeAPIKey(ctx context.Context, prefix string) error {
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                &s.tableName,
		Key:                      apiKeyKey(prefix),
		UpdateExpression:         aws.String("SET #status = :revoked"),
		ExpressionAttributeNames: map[string]string{"#status": "status"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":revoked": &types.AttributeValueMemberS{Value: keyStatusRevoked},
		},
	})
	if err != nil {
		return fmt.Errorf("revoke key %s: %w", prefix, err)
	}
	return nil
}

// ListAPIKeys returns every key issued to userID, revoked ones included.
func (s *Store) ListAPIKeys(ctx context.Context, userID string) ([]APIKeyRecord, error) {
	items, err := s.scanAll(ctx, "begins_with(PK, :kind) AND userId = :uid", map[string]types.AttributeValue{
		":kind": &types.AttributeValueMemberS{Value: "APIKEY#"},
		":uid":  &types.AttributeValueMemberS{Value: userID},
	})
	if err != nil {
		return nil, fmt.Errorf("scan api keys: %w", err)
	}

	var keys []APIKeyRecord
	if err := attributevalue.UnmarshalListOfMaps(items, &keys); err != nil {
		return nil, fmt.Errorf("decode api keys: %w", err)
	}
	return keys, nil
}
