package instrument

import (
	"fmt"
	"strings"
)

// Kind classifies an instrument identifier so the resolver knows which
// upstream source can price it.
type Kind string

const (
	// KindStock is priced via the real-time quote endpoint, one ticker per request.
	KindStock Kind = "stock"
	// KindFund is priced via the bulk end-of-day NAV file, all schemes per download.
	KindFund Kind = "fund"
)

// ParseKind maps a user-supplied kind string onto a Kind.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "stock", "equity", "ticker":
		return KindStock, nil
	case "fund", "mf", "scheme":
		return KindFund, nil
	}
	return "", fmt.Errorf("unknown instrument kind %q", s)
}

// Ref is an instrument identifier tagged with its kind: a ticker for stocks,
// a scheme code for funds.
type Ref struct {
	ID   string `json:"id"`
	Kind Kind   `json:"kind"`
}
