package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"
)

// EtherDecimals is the number of fractional digits an Amount can carry.
const EtherDecimals = 18

var (
	ErrInvalidAmount  = errors.New("invalid amount")
	ErrNegativeAmount = errors.New("amount must not be negative")

	weiPerEther = new(big.Int).Exp(big.NewInt(10), big.NewInt(EtherDecimals), nil)
)

// Amount is an ether-denominated value held as an integer number of wei.
// The zero value is 0.
type Amount struct {
	wei *big.Int
}

// ParseAmount parses a non-negative decimal ether string such as "1", "0.1" or "2.500".
func ParseAmount(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Amount{}, fmt.Errorf("%w: empty", ErrInvalidAmount)
	}
	if strings.HasPrefix(s, "-") {
		return Amount{}, ErrNegativeAmount
	}
	s = strings.TrimPrefix(s, "+")

	whole, frac, hasDot := strings.Cut(s, ".")
	if whole == "" && frac == "" {
		return Amount{}, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	if hasDot && frac == "" {
		return Amount{}, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	if len(frac) > EtherDecimals {
		return Amount{}, fmt.Errorf("%w: more than %d decimals", ErrInvalidAmount, EtherDecimals)
	}
	if !digitsOnly(whole) || !digitsOnly(frac) {
		return Amount{}, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	if whole == "" {
		whole = "0"
	}

	digits := whole + frac + strings.Repeat("0", EtherDecimals-len(frac))
	wei, ok := new(big.Int).SetString(digits, 10)
	if !ok {
		return Amount{}, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	return Amount{wei: wei}, nil
}

// MustParseAmount is ParseAmount for constants and tests.
func MustParseAmount(s string) Amount {
	a, err := ParseAmount(s)
	if err != nil {
		panic(err)
	}
	return a
}

func AmountFromWei(wei *big.Int) Amount {
	if wei == nil {
		return Amount{}
	}
	return Amount{wei: new(big.Int).Set(wei)}
}

func digitsOnly(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Wei returns a copy of the underlying wei value.
func (a Amount) Wei() *big.Int {
	if a.wei == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(a.wei)
}

func (a Amount) Sign() int {
	if a.wei == nil {
		return 0
	}
	return a.wei.Sign()
}

func (a Amount) Cmp(b Amount) int {
	return a.Wei().Cmp(b.Wei())
}

func (a Amount) Equal(b Amount) bool {
	return a.Cmp(b) == 0
}

// Percent returns p percent of a, truncated to whole wei.
func (a Amount) Percent(p int64) Amount {
	v := new(big.Int).Mul(a.Wei(), big.NewInt(p))
	return Amount{wei: v.Quo(v, big.NewInt(100))}
}

// String renders the amount in ether without trailing zeros ("1", "0.1").
func (a Amount) String() string {
	wei := a.Wei()
	q, r := new(big.Int).QuoRem(wei, weiPerEther, new(big.Int))
	if r.Sign() == 0 {
		return q.String()
	}
	frac := r.String()
	frac = strings.Repeat("0", EtherDecimals-len(frac)) + frac
	return q.String() + "." + strings.TrimRight(frac, "0")
}

func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON accepts both "1.5" and 1.5.
func (a *Amount) UnmarshalJSON(b []byte) error {
	var s string
	if len(b) > 0 && b[0] == '"' {
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
	} else {
		var n json.Number
		if err := json.Unmarshal(b, &n); err != nil {
			return fmt.Errorf("%w: %s", ErrInvalidAmount, string(b))
		}
		s = n.String()
	}
	v, err := ParseAmount(s)
	if err != nil {
		return err
	}
	*a = v
	return nil
}

// Value stores the amount as a decimal ether string.
func (a Amount) Value() (driver.Value, error) {
	return a.String(), nil
}

func (a *Amount) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*a = Amount{}
		return nil
	case string:
		p, err := ParseAmount(v)
		if err != nil {
			return err
		}
		*a = p
		return nil
	case []byte:
		return a.Scan(string(v))
	case int64:
		return a.Scan(fmt.Sprintf("%d", v))
	case float64:
		return a.Scan(big.NewFloat(v).Text('f', -1))
	default:
		return fmt.Errorf("%w: unsupported type %T", ErrInvalidAmount, src)
	}
}
