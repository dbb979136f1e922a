// Package format converts on-chain encodings (wei, unix seconds, addresses)
// into display strings and back.
package format

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/agis/medbook/internal/timeparse"
	"github.com/dustin/go-humanize"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

const weiDecimals = 18

const DateLayout = "Mon, Jan 2, 2006, 03:04 PM"

var (
	ErrNegativeAmount = errors.New("amount must not be negative")
	ErrTooPrecise     = errors.New("amount has more than 18 decimal places")
)

// FormatCurrency renders wei as ETH with four fixed decimals. Zero and nil render as "0".
func FormatCurrency(wei *big.Int) string {
	if wei == nil || wei.Sign() == 0 {
		return "0"
	}
	return decimal.NewFromBigInt(wei, -weiDecimals).StringFixed(4)
}

// ExactCurrency renders wei as ETH without rounding, so that
// ParseCurrency(ExactCurrency(x)) == x.
func ExactCurrency(wei *big.Int) string {
	if wei == nil {
		return "0"
	}
	return decimal.NewFromBigInt(wei, -weiDecimals).String()
}

// ParseCurrency converts an ETH amount such as "0.05" into wei.
func ParseCurrency(eth string) (*big.Int, error) {
	s := strings.TrimSpace(eth)
	if s == "" {
		return nil, fmt.Errorf("empty amount")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", eth, err)
	}
	if d.IsNegative() {
		return nil, ErrNegativeAmount
	}
	wei := d.Shift(weiDecimals)
	if !wei.IsInteger() {
		return nil, ErrTooPrecise
	}
	return wei.BigInt(), nil
}

func FormatAddress(addr string) string {
	s := strings.TrimSpace(addr)
	if s == "" {
		return ""
	}
	if common.IsHexAddress(s) {
		s = common.HexToAddress(s).Hex()
	}
	if len(s) < 10 {
		return s
	}
	return s[:6] + "..." + s[len(s)-4:]
}

func FormatDate(ts uint64, loc *time.Location) string {
	if ts == 0 {
		return ""
	}
	return FromUnix(ts, loc).Format(DateLayout)
}

func FromUnix(ts uint64, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	return time.Unix(int64(ts), 0).In(loc)
}

// ToUnix parses a date/time string in loc and returns unix seconds.
func ToUnix(input string, now time.Time, loc *time.Location) (uint64, error) {
	t, err := timeparse.ParseDateTime(input, now, loc)
	if err != nil {
		return 0, err
	}
	if t.Unix() < 0 {
		return 0, fmt.Errorf("time before unix epoch: %s", input)
	}
	return uint64(t.Unix()), nil
}

func Relative(t, now time.Time) string {
	if t.IsZero() {
		return ""
	}
	return humanize.RelTime(t, now, "ago", "from now")
}
