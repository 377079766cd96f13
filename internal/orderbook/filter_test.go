package orderbook

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseIntPredicate(t *testing.T) {
	f, err := Parse("Price GT 65000")
	require.NoError(t, err)
	assert.Equal(t, FieldPrice, f.Field)
	assert.Equal(t, OpGT, f.Op)
	assert.True(t, f.compareInt(65001))
	assert.False(t, f.compareInt(65000))
}

func TestParseStringPredicate(t *testing.T) {
	f, err := Parse(`QuoteType EQ "Bid"`)
	require.NoError(t, err)
	assert.True(t, f.compareString("Bid"))
	assert.False(t, f.compareString("Offer"))
}

func TestParseINSet(t *testing.T) {
	f, err := Parse("Key IN {1,2,3}")
	require.NoError(t, err)
	assert.True(t, f.compareInt(2))
	assert.False(t, f.compareInt(4))
}

func TestParseNISet(t *testing.T) {
	f, err := Parse("Key NI {1,2,3}")
	require.NoError(t, err)
	assert.False(t, f.compareInt(2))
	assert.True(t, f.compareInt(4))
}

func TestParseRejectsUnknownField(t *testing.T) {
	_, err := Parse("Bogus EQ 1")
	assert.Error(t, err)
}

func TestParseRejectsUnknownOp(t *testing.T) {
	_, err := Parse("Price XX 1")
	assert.Error(t, err)
}

func TestParseRejectsShortPredicate(t *testing.T) {
	_, err := Parse("Price GT")
	assert.Error(t, err)
}

func TestParseSetWithoutBracesFails(t *testing.T) {
	_, err := Parse("Key IN 1,2,3")
	assert.Error(t, err)
}

func TestEvalLevelEQStopsAfterMatch(t *testing.T) {
	f, err := Parse("Level EQ 2")
	require.NoError(t, err)
	res := f.evalLevel(2)
	assert.True(t, res.Accept)
	assert.True(t, res.Last)

	res = f.evalLevel(1)
	assert.False(t, res.Accept)
	assert.False(t, res.Last)
}

func TestEvalAggregateVolumeOpenUntilThreshold(t *testing.T) {
	f, err := Parse("AggregateVolume GE 20")
	require.NoError(t, err)

	below := f.evalAggregateVolume(10)
	assert.True(t, below.Open, "below threshold, the group stays open for more accumulation")
	assert.False(t, below.Accept)

	atThreshold := f.evalAggregateVolume(20)
	assert.False(t, atThreshold.Open, "reaching the threshold closes the group")
	assert.True(t, atThreshold.Accept)
}

func TestEvalLevelLEStopsWhenExceeded(t *testing.T) {
	f, err := Parse("Level LE 2")
	require.NoError(t, err)
	assert.True(t, f.evalLevel(1).Accept)
	res := f.evalLevel(3)
	assert.False(t, res.Accept)
	assert.True(t, res.Last, "LE stops once level exceeds the bound")
}
