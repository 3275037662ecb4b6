package wthmodels

import "github.com/shopspring/decimal"

// SensorResult is the per-sensor answer to a Query
type SensorResult struct {
	Sensor      string           `json:"sensor"`
	Temperature *decimal.Decimal `json:"temperature,omitempty"`
	Humidity    *int             `json:"humidity,omitempty"`
	Statistic   string           `json:"statistic,omitempty"`
	StartDate   string           `json:"startDate,omitempty"`
	EndDate     string           `json:"endDate,omitempty"`
}
