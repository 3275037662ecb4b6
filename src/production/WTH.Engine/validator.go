package engine

import (
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/relvacode/iso8601"
	"github.com/shopspring/decimal"
	wthmodels "gitlab.com/maplesense1/wth.sensor_server/src/production/WTH.Models"
)

// Accepted input ranges, inclusive
var (
	MinTemperature = decimal.NewFromInt(-100)
	MaxTemperature = decimal.NewFromInt(300)
)

const (
	MinHumidity = 0
	MaxHumidity = 100
)

// maxWindowMonths bounds the length of a ranged query
const maxWindowMonths = 1

// ValidateReading checks a submitted reading. Sensor is checked first, then temperature, then humidity.
func ValidateReading(sensor string, temperature *decimal.Decimal, humidity *int) error {
	if !ValidSensorID(sensor) {
		return ErrInvalidSensor
	}
	if temperature == nil || temperature.LessThan(MinTemperature) || temperature.GreaterThan(MaxTemperature) {
		return ErrInvalidTemperature
	}
	if humidity == nil || *humidity < MinHumidity || *humidity > MaxHumidity {
		return ErrInvalidHumidity
	}
	return nil
}

// ValidSensorID reports whether s is the decimal text of a positive 32-bit integer
func ValidSensorID(s string) bool {
	if s == "" || s[0] < '0' || s[0] > '9' {
		return false
	}
	n, err := strconv.ParseInt(s, 10, 32)
	return err == nil && n > 0
}

// QueryPlan is a validated query ready for resolution
type QueryPlan struct {
	Sensors   []string
	Metrics   []wthmodels.Metric
	Statistic wthmodels.Statistic

	// Ranged is false in latest-value mode; Start and End are then zero
	Ranged bool
	Start  time.Time
	End    time.Time
}

// ValidateQuery checks q against the known sensors and the current time.
// Checks run in a fixed order (sensors, dates, metrics, statistic) and the first failure is returned.
// Date-times without an offset are interpreted in loc.
func ValidateQuery(q wthmodels.Query, knownSensors []string, loc *time.Location, now time.Time) (*QueryPlan, error) {
	for _, s := range q.Sensors {
		if !slices.Contains(knownSensors, s) {
			return nil, fmt.Errorf("%w: %q", ErrUnknownSensor, s)
		}
	}

	plan := &QueryPlan{Sensors: q.Sensors}

	start, end, ranged, err := parseWindow(q.StartDate, q.EndDate, loc, now)
	if err != nil {
		return nil, err
	}
	plan.Ranged, plan.Start, plan.End = ranged, start, end

	if len(q.Metrics) == 0 {
		return nil, fmt.Errorf("%w: none requested", ErrInvalidMetric)
	}
	for _, m := range q.Metrics {
		metric := wthmodels.Metric(m)
		if metric != wthmodels.MetricTemperature && metric != wthmodels.MetricHumidity {
			return nil, fmt.Errorf("%w: %q", ErrInvalidMetric, m)
		}
		plan.Metrics = append(plan.Metrics, metric)
	}

	stat, err := parseStatistic(q.Statistic)
	if err != nil {
		return nil, err
	}
	plan.Statistic = stat

	return plan, nil
}

func parseStatistic(raw string) (wthmodels.Statistic, error) {
	if raw == "" {
		return wthmodels.DefaultStatistic, nil
	}
	switch stat := wthmodels.Statistic(raw); stat {
	case wthmodels.StatisticMin, wthmodels.StatisticMax, wthmodels.StatisticSum, wthmodels.StatisticAverage:
		return stat, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidStatistic, raw)
}

func parseWindow(startRaw, endRaw string, loc *time.Location, now time.Time) (start, end time.Time, ranged bool, err error) {
	if startRaw == "" && endRaw == "" {
		return time.Time{}, time.Time{}, false, nil
	}
	if startRaw == "" || endRaw == "" {
		return start, end, false, fmt.Errorf("%w: both startDate and endDate are required", ErrInvalidDateRange)
	}

	if start, err = parseLocalDateTime(startRaw, loc); err != nil {
		return start, end, false, fmt.Errorf("%w: startDate: %v", ErrInvalidDateRange, err)
	}
	if end, err = parseLocalDateTime(endRaw, loc); err != nil {
		return start, end, false, fmt.Errorf("%w: endDate: %v", ErrInvalidDateRange, err)
	}

	switch {
	case start.Before(EarliestQueryable):
		return start, end, false, fmt.Errorf("%w: startDate before %s", ErrInvalidDateRange, EarliestQueryable.Format(time.RFC3339))
	case start.After(end):
		return start, end, false, fmt.Errorf("%w: startDate after endDate", ErrInvalidDateRange)
	case start.After(now), end.After(now):
		return start, end, false, fmt.Errorf("%w: date in the future", ErrInvalidDateRange)
	case end.After(AddMonths(start, maxWindowMonths)):
		return start, end, false, fmt.Errorf("%w: window longer than %d month", ErrInvalidDateRange, maxWindowMonths)
	}
	return start, end, true, nil
}

// EarliestQueryable is the first instant stores can index (nanoseconds since
// the epoch must fit in an int64).
var EarliestQueryable = time.Unix(0, math.MinInt64).UTC()

// parseLocalDateTime parses an ISO-8601 date-time without a zone offset in loc.
// Inputs carrying an offset or Z are rejected.
func parseLocalDateTime(raw string, loc *time.Location) (time.Time, error) {
	if len(raw) > len("2006-01-02") && strings.ContainsAny(raw[len("2006-01-02"):], "Zz+-") {
		return time.Time{}, fmt.Errorf("%q carries a zone offset", raw)
	}
	return iso8601.ParseInLocation([]byte(raw), loc)
}

// AddMonths adds n calendar months to t, clamping the day to the last day of
// the target month (Jan 31 + 1 month = Feb 28 or 29).
func AddMonths(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	target := time.Date(y, m+time.Month(n), 1, 0, 0, 0, 0, t.Location())
	if last := daysIn(target.Year(), target.Month()); d > last {
		d = last
	}
	return time.Date(target.Year(), target.Month(), d, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
