package wthmodels

import (
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// Temperatures go over the wire as JSON numbers, not strings.
	decimal.MarshalJSONWithoutQuotes = true
}

// Reading is a single persisted sensor measurement
type Reading struct {
	ID          string          `json:"id"`
	Sensor      string          `json:"sensor"`
	Temperature decimal.Decimal `json:"temperature"`
	Humidity    int             `json:"humidity"`
	Timestamp   time.Time       `json:"timestamp"`
}
