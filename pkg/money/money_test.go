package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundIsHalfUp(t *testing.T) {
	assert.Equal(t, "10.13", Round(decimal.RequireFromString("10.125")).StringFixed(2))
	assert.Equal(t, "10.12", Round(decimal.RequireFromString("10.124")).StringFixed(2))
	assert.Equal(t, "0.01", Round(decimal.RequireFromString("0.005")).StringFixed(2))
}

func TestMinorUnits(t *testing.T) {
	assert.Equal(t, int64(2200), ToMinorUnits(decimal.RequireFromString("22")))
	assert.Equal(t, int64(1999), ToMinorUnits(decimal.RequireFromString("19.99")))
	assert.Equal(t, int64(1000), ToMinorUnits(decimal.RequireFromString("9.995")))
	assert.True(t, FromMinorUnits(1999).Equal(decimal.RequireFromString("19.99")))
}

func TestParse(t *testing.T) {
	d, err := Parse("49.90")
	require.NoError(t, err)
	assert.True(t, d.Equal(decimal.RequireFromString("49.9")))

	_, err = Parse("0")
	require.Error(t, err)
	_, err = Parse("abc")
	require.Error(t, err)
}

func TestMinMax(t *testing.T) {
	a := decimal.NewFromInt(3)
	b := decimal.NewFromInt(5)
	assert.True(t, Min(a, b).Equal(a))
	assert.True(t, Max(a, b).Equal(b))
}
