package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodeOfWrapped(t *testing.T) {
	err := fmt.Errorf("collect leg: %w", New(CodeInsufficientShares, "asset %s: want %d have %d", "0xabc", 5, 3))

	assert.Equal(t, CodeInsufficientShares, CodeOf(err))
	assert.True(t, stderrors.Is(err, ErrInsufficientShares))
	assert.False(t, stderrors.Is(err, ErrZeroAmount))
}

func TestCodeOfPlainError(t *testing.T) {
	assert.Equal(t, Code(""), CodeOf(nil))
	assert.Equal(t, CodeUnknown, CodeOf(stderrors.New("boom")))
}

func TestWrapKeepsCause(t *testing.T) {
	cause := stderrors.New("rpc timeout")
	err := Wrap(CodePriceUnavailable, cause, "price %s", "dai")

	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, ErrPriceUnavailable)
	assert.Equal(t, "price dai: rpc timeout", err.Error())
}
