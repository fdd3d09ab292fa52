package repository

import (
	"fmt"
	"math/big"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/Divyesh172/SmartProctor-FullStack/internal/domain"
)

// NumericToScaled converts a pgtype.Numeric to an integer count of 10^exp units.
// Digits finer than 10^exp are truncated. Returns an error for NULL, NaN or
// values that overflow int64.
func NumericToScaled(n pgtype.Numeric, exp int32) (int64, error) {
	if !n.Valid {
		return 0, fmt.Errorf("numeric value is NULL")
	}
	if n.NaN || n.InfinityModifier != pgtype.Finite {
		return 0, fmt.Errorf("numeric value is not finite")
	}

	// pgtype.Numeric stores value as Int * 10^Exp.
	bi := new(big.Int)
	if n.Int != nil {
		bi.Set(n.Int)
	}

	shift := n.Exp - exp
	if shift > 0 {
		multiplier := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(shift)), nil)
		bi.Mul(bi, multiplier)
	} else if shift < 0 {
		divisor := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(-shift)), nil)
		bi.Quo(bi, divisor)
	}

	if !bi.IsInt64() {
		return 0, fmt.Errorf("numeric value %s overflows int64", bi.String())
	}
	return bi.Int64(), nil
}

// ScaledToNumeric builds a numeric equal to v * 10^exp.
func ScaledToNumeric(v int64, exp int32) pgtype.Numeric {
	return pgtype.Numeric{
		Int:              big.NewInt(v),
		Exp:              exp,
		InfinityModifier: pgtype.Finite,
		Valid:            true,
	}
}

// ScoreToNumeric converts a score to the numeric(14,4) suspicion_score column.
func ScoreToNumeric(s domain.Score) pgtype.Numeric {
	return ScaledToNumeric(int64(s), domain.ScoreExponent)
}

// NumericToScore reads a numeric(14,4) suspicion_score column.
func NumericToScore(n pgtype.Numeric) (domain.Score, error) {
	v, err := NumericToScaled(n, domain.ScoreExponent)
	if err != nil {
		return 0, err
	}
	return domain.Score(v), nil
}
