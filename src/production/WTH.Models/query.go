package wthmodels

// Metric names a measured quantity that can be queried
type Metric string

const (
	MetricTemperature Metric = "temperature"
	MetricHumidity    Metric = "humidity"
)

// Statistic names a reduction applied over a time window
type Statistic string

const (
	StatisticMin     Statistic = "min"
	StatisticMax     Statistic = "max"
	StatisticSum     Statistic = "sum"
	StatisticAverage Statistic = "average"
)

// DefaultStatistic is used when a query does not name one
const DefaultStatistic = StatisticAverage

// Query is a request for per-sensor values.
//
// StartDate and EndDate are ISO-8601 local date-times as received from the
// client. Both empty selects the latest reading of every sensor.
type Query struct {
	Sensors   []string
	Metrics   []string
	Statistic string
	StartDate string
	EndDate   string
}

// Ranged reports whether the query asks for a time window
func (q Query) Ranged() bool {
	return q.StartDate != "" || q.EndDate != ""
}
