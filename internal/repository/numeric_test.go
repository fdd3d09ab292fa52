package repository

import (
	"math"
	"math/big"
	"testing"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Divyesh172/SmartProctor-FullStack/internal/domain"
)

func TestScoreNumeric_RoundTrip(t *testing.T) {
	for _, s := range []domain.Score{0, 1, 40000, 180000, -25000, 999_999_999} {
		v, err := NumericToScore(ScoreToNumeric(s))
		require.NoError(t, err)
		assert.Equal(t, s, v)
	}
}

func TestNumericToScore_FromPostgresShapes(t *testing.T) {
	tests := []struct {
		name string
		n    pgtype.Numeric
		want domain.Score
	}{
		// 18.0000 as returned for numeric(14,4)
		{"scale four", pgtype.Numeric{Int: big.NewInt(180000), Exp: -4, Valid: true}, 180000},
		// 18 with trailing zeros stripped
		{"integer", pgtype.Numeric{Int: big.NewInt(18), Exp: 0, Valid: true}, 180000},
		// 4.5
		{"one decimal", pgtype.Numeric{Int: big.NewInt(45), Exp: -1, Valid: true}, 45000},
		// 1.5e2
		{"positive exponent", pgtype.Numeric{Int: big.NewInt(15), Exp: 1, Valid: true}, 1_500_000},
		// 0.00001 truncates below one unit
		{"finer than a unit", pgtype.Numeric{Int: big.NewInt(1), Exp: -5, Valid: true}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := NumericToScore(tt.n)
			require.NoError(t, err)
			assert.Equal(t, tt.want, v)
		})
	}
}

func TestNumericToScaled_NullReturnsError(t *testing.T) {
	_, err := NumericToScaled(pgtype.Numeric{Valid: false}, 0)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "NULL")
}

func TestNumericToScaled_NaNReturnsError(t *testing.T) {
	_, err := NumericToScaled(pgtype.Numeric{NaN: true, Valid: true}, 0)
	assert.Error(t, err)
}

func TestNumericToScaled_Overflow(t *testing.T) {
	huge := new(big.Int).Mul(big.NewInt(math.MaxInt64), big.NewInt(10))
	_, err := NumericToScaled(pgtype.Numeric{Int: huge, Exp: 0, Valid: true}, 0)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "overflows")
}

func TestScaledToNumeric(t *testing.T) {
	n := ScaledToNumeric(42, -4)
	assert.True(t, n.Valid)
	assert.Equal(t, int32(-4), n.Exp)
	assert.Equal(t, int64(42), n.Int.Int64())
}
