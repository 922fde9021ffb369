package indicator

import (
	"fmt"
	"strings"
)

// Call is a categorical trading recommendation.
type Call int

const (
	VeryStrongSell Call = -3
	StrongSell     Call = -2
	Sell           Call = -1
	Hold           Call = 0
	Buy            Call = 1
	StrongBuy      Call = 2
	VeryStrongBuy  Call = 3
)

var callNames = map[Call]string{
	VeryStrongSell: "Very Strong Sell",
	StrongSell:     "Strong Sell",
	Sell:           "Sell",
	Hold:           "Hold",
	Buy:            "Buy",
	StrongBuy:      "Strong Buy",
	VeryStrongBuy:  "Very Strong Buy",
}

func (c Call) String() string {
	if s, ok := callNames[c]; ok {
		return s
	}
	return fmt.Sprintf("Call(%d)", int(c))
}

// Weight is the categorical vote of a call: strong ±2, plain ±1, hold 0.
// Very-strong calls only come out of continuous aggregation and vote as strong.
func (c Call) Weight() int {
	switch {
	case c >= StrongBuy:
		return 2
	case c <= StrongSell:
		return -2
	default:
		return int(c)
	}
}

// IsBuy reports whether the call opens or extends long exposure.
func (c Call) IsBuy() bool { return c > Hold }

// IsSell reports whether the call reduces long or opens short exposure.
func (c Call) IsSell() bool { return c < Hold }

func (c Call) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *Call) UnmarshalText(b []byte) error {
	parsed, err := ParseCall(string(b))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// ParseCall accepts "Strong Buy", "strong_buy" or "STRONG-BUY".
func ParseCall(s string) (Call, error) {
	norm := strings.ToLower(strings.NewReplacer("_", " ", "-", " ").Replace(strings.TrimSpace(s)))
	for c, name := range callNames {
		if strings.ToLower(name) == norm {
			return c, nil
		}
	}
	return Hold, fmt.Errorf("unknown call %q", s)
}
