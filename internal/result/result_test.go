package result_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sawpanic/mdgateway/internal/result"
)

func TestErrorFormatting(t *testing.T) {
	e := result.New(result.KindParseError, "bad json")
	assert.Equal(t, "parse_error: bad json", e.Error())

	wrapped := result.Wrap(result.KindTransportError, "dial failed", errors.New("refused"))
	assert.Equal(t, "transport_error: dial failed: refused", wrapped.Error())
	assert.Equal(t, errors.New("refused").Error(), wrapped.Unwrap().Error())
}

func TestIsMatchesKind(t *testing.T) {
	e := result.New(result.KindQueueFull, "full")
	assert.True(t, result.Is(e, result.KindQueueFull))
	assert.False(t, result.Is(e, result.KindParseError))
	assert.False(t, result.Is(errors.New("plain"), result.KindQueueFull))
}

func TestResultOkAndErr(t *testing.T) {
	ok := result.Ok(42)
	assert.True(t, ok.IsOk())
	v, err := ok.Unwrap()
	assert.NoError(t, err)
	assert.Equal(t, 42, v)

	failed := result.Err[int](result.New(result.KindStateConflict, "conflict"))
	assert.False(t, failed.IsOk())
	_, err = failed.Unwrap()
	assert.Error(t, err)
}
