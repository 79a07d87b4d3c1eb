package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHasCodeFollowsWrapChain(t *testing.T) {
	base := New(CodeInvalidSession, "invalid verification session")
	wrapped := fmt.Errorf("verify: %w", base)

	assert.True(t, HasCode(wrapped, CodeInvalidSession))
	assert.False(t, HasCode(wrapped, CodeAlreadyVerified))
	assert.Equal(t, CodeInvalidSession, CodeOf(wrapped))
	assert.Equal(t, "invalid verification session", MessageOf(wrapped))
}

func TestCodeOfDefaultsToInternal(t *testing.T) {
	assert.Equal(t, CodeInternal, CodeOf(errors.New("boom")))
	assert.Empty(t, MessageOf(errors.New("boom")))
}

func TestErrorsIsComparesCodeAndMessage(t *testing.T) {
	err := Wrap(errors.New("db down"), CodeInternal, "failed to load account")

	assert.ErrorIs(t, err, New(CodeInternal, "failed to load account"))
	assert.NotErrorIs(t, err, New(CodeInternal, "something else"))
	assert.Equal(t, "failed to load account: db down", err.Error())
}
