package jobserver

import (
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDialogueID(t *testing.T) {
	a, err := NewDialogueID()
	require.NoError(t, err)
	b, err := NewDialogueID()
	require.NoError(t, err)

	assert.Len(t, a, 26)
	assert.NotEqual(t, a, b)
}

func TestCursorStartKey(t *testing.T) {
	cursor := "2026-08-01T10:00:00Z#01J4LDJ0FRT5W8ZX2Q9K7M3NCB"
	key, err := cursorStartKey(cursor)
	require.NoError(t, err)

	pk := key["PK"].(*types.AttributeValueMemberS)
	assert.Equal(t, "DIALOGUE#01J4LDJ0FRT5W8ZX2Q9K7M3NCB", pk.Value)
	sk := key["SK"].(*types.AttributeValueMemberS)
	assert.Equal(t, "METADATA", sk.Value)
	gsi1sk := key["GSI1SK"].(*types.AttributeValueMemberS)
	assert.Equal(t, cursor, gsi1sk.Value)
}

func TestCursorStartKeyRejectsMalformed(t *testing.T) {
	for _, cursor := range []string{"no-separator", "trailing#", ""} {
		_, err := cursorStartKey(cursor)
		assert.Error(t, err, "cursor %q", cursor)
	}
}
