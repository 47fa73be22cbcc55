// README: Money value object and price parsing shared across modules.
package types

import (
	"errors"
	"math"
	"strconv"
	"strings"
)

const DefaultCurrency = "CNY"

var ErrInvalidPrice = errors.New("invalid price")

// Money holds an amount in minor units (fen, cents).
type Money struct {
	Amount   int64
	Currency string
}

// ParseMoney accepts prices as scraped from order listings: "88", "88.5",
// "¥88", "88元". At most two fraction digits are kept.
func ParseMoney(raw string) (Money, error) {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "¥")
	s = strings.TrimPrefix(s, "￥")
	s = strings.TrimSuffix(s, "元")
	s = strings.TrimSpace(s)
	if s == "" {
		return Money{}, ErrInvalidPrice
	}

	whole, frac, _ := strings.Cut(s, ".")
	if (whole == "" && frac == "") || !digits(whole) || !digits(frac) {
		return Money{}, ErrInvalidPrice
	}
	if whole == "" {
		whole = "0"
	}
	units, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return Money{}, ErrInvalidPrice
	}
	if len(frac) > 2 {
		frac = frac[:2]
	}
	for len(frac) < 2 {
		frac += "0"
	}
	cents, err := strconv.ParseInt(frac, 10, 64)
	if err != nil {
		return Money{}, ErrInvalidPrice
	}
	return Money{Amount: units*100 + cents, Currency: DefaultCurrency}, nil
}

// digits reports whether s holds only ASCII digits; ParseInt alone would
// accept a sign.
func digits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// FromMajor converts a whole-currency amount (e.g. a configured profit floor).
func FromMajor(v float64) Money {
	return Money{Amount: int64(math.Round(v * 100)), Currency: DefaultCurrency}
}

func (m Money) Less(o Money) bool {
	return m.Amount < o.Amount
}

func (m Money) String() string {
	if m.Amount%100 == 0 {
		return strconv.FormatInt(m.Amount/100, 10)
	}
	return strconv.FormatFloat(float64(m.Amount)/100, 'f', 2, 64)
}
