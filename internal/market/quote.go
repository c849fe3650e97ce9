package market

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// ErrDataUnavailable indicates the upstream quote source could not serve data.
// Callers must treat it as a transient upstream outage, never substitute a
// synthetic price.
var ErrDataUnavailable = errors.New("market: data unavailable")

// Kind enumerates supported market categories.
type Kind string

const (
	KindCrypto Kind = "crypto"
	KindForex  Kind = "forex"
	KindIndex  Kind = "index"
)

// ParseKind validates a market category string.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindCrypto, KindForex, KindIndex:
		return Kind(s), nil
	}
	return "", errors.New("market: unknown market kind: " + s)
}

// Quote is an immutable point-in-time snapshot from the quote source.
type Quote struct {
	Symbol       string
	Market       Kind
	Price        decimal.Decimal
	ChangePct24h decimal.Decimal
	Volume24h    decimal.Decimal
	Timestamp    time.Time
}
