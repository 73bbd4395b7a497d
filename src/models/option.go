package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// OptionRight is the contract right encoded in an option symbol.
type OptionRight string

const (
	Call OptionRight = "C"
	Put  OptionRight = "P"
)

// OptionContract is the decoded form of an OCC-style option symbol, e.g.
// "QQQ 250829C00628000": underlying, yymmdd expiry, right, strike*1000.
type OptionContract struct {
	Underlying string
	Expiry     time.Time
	Right      OptionRight
	Strike     decimal.Decimal
}

// ExpiryDate returns the expiry as a YYYY-MM-DD string.
func (c OptionContract) ExpiryDate() string {
	return c.Expiry.Format("2006-01-02")
}

// ParseOptionSymbol decodes an OCC-style symbol. The broker pads the
// underlying to six characters; exports trimmed to a single interior space
// are accepted too. Returns ok=false for anything that is not an option
// symbol (plain stock tickers in particular).
func ParseOptionSymbol(symbol string) (OptionContract, bool) {
	fields := strings.Fields(symbol)
	if len(fields) != 2 {
		return OptionContract{}, false
	}
	body := fields[1]
	// yymmdd + right + 8-digit strike
	if len(body) != 15 {
		return OptionContract{}, false
	}
	expiry, err := time.Parse("060102", body[:6])
	if err != nil {
		return OptionContract{}, false
	}
	right := OptionRight(body[6:7])
	if right != Call && right != Put {
		return OptionContract{}, false
	}
	thousandths, err := decimal.NewFromString(body[7:])
	if err != nil {
		return OptionContract{}, false
	}
	return OptionContract{
		Underlying: fields[0],
		Expiry:     expiry,
		Right:      right,
		Strike:     thousandths.Div(decimal.NewFromInt(1000)),
	}, true
}

// FormatOptionSymbol is the inverse of ParseOptionSymbol, used when
// synthesizing settlement descriptions.
func FormatOptionSymbol(c OptionContract) string {
	return fmt.Sprintf("%s %s%s%08d",
		c.Underlying,
		c.Expiry.Format("060102"),
		c.Right,
		c.Strike.Mul(decimal.NewFromInt(1000)).IntPart(),
	)
}
