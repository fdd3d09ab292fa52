package domain

import (
	"encoding/json"
	"math"
	"strconv"
)

// ScoreScale is the number of stored units per suspicion point.
// Scores are kept as integers so an applied penalty reverts exactly.
const ScoreScale = 10000

// ScoreExponent is the decimal exponent matching ScoreScale (10^-4).
const ScoreExponent = -4

// Score is a suspicion score in 1/10000 point units. Precision is fixed
// at four decimals: a penalty of weight x confidence is rounded half away
// from zero when it is computed (5 x 0.77777 is stored as 3.8889), and the
// same rounded value is what adjudication later reverts.
type Score int64

// ScoreFromPoints converts a point value to units, rounding half away from zero.
func ScoreFromPoints(points float64) Score {
	return Score(math.Round(points * ScoreScale))
}

// Points returns the score as a point value.
func (s Score) Points() float64 {
	return float64(s) / ScoreScale
}

func (s Score) String() string {
	return strconv.FormatFloat(s.Points(), 'f', -1, 64)
}

// MarshalJSON encodes the score as a JSON number in points.
func (s Score) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Points())
}

// UnmarshalJSON decodes a JSON number in points.
func (s *Score) UnmarshalJSON(data []byte) error {
	var points float64
	if err := json.Unmarshal(data, &points); err != nil {
		return err
	}
	*s = ScoreFromPoints(points)
	return nil
}

// Penalty is the signed change an incident applies to a student's counters.
type Penalty struct {
	Score   Score `json:"score"`
	Strikes int   `json:"strikes"`
}

// Inverse returns the penalty that undoes p.
func (p Penalty) Inverse() Penalty {
	return Penalty{Score: -p.Score, Strikes: -p.Strikes}
}

// IsZero reports whether p changes nothing.
func (p Penalty) IsZero() bool {
	return p.Score == 0 && p.Strikes == 0
}
