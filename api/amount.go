package api

import (
	"bytes"
	"encoding/json"
	"math"

	"github.com/shopspring/decimal"
)

// Amount accepts a JSON number or a numeric string. Anything else decodes to
// NaN so the ledger keeps the expense and counts it as zero.
type Amount struct {
	Value float64
	// Valid is false when the amount was missing, null or not a number.
	Valid bool
}

func (a *Amount) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*a = Amount{}
		return nil
	}

	raw := string(b)
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		raw = s
	}

	d, err := decimal.NewFromString(raw)
	if err != nil {
		*a = Amount{Value: math.NaN()}
		return nil
	}
	*a = Amount{Value: d.InexactFloat64(), Valid: true}
	return nil
}

// jsonAmount renders non-finite amounts as null.
func jsonAmount(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}
