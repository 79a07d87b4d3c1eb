package attrs

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtract(t *testing.T) {
	kv := []any{"user_id", "acct-1", "boost", 50, 7, "ignored", "user_id", "acct-2", "dangling"}

	assert.Equal(t, "acct-2", ExtractString(kv, "user_id"))
	assert.Equal(t, "", ExtractString(kv, "boost"))
	assert.Equal(t, "", ExtractString(kv, "dangling"))

	boost, ok := Extract[int](kv, "boost")
	assert.True(t, ok)
	assert.Equal(t, 50, boost)

	_, ok = Extract[int](kv, "missing")
	assert.False(t, ok)
}
