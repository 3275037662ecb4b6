package engine

import (
	"slices"

	"github.com/shopspring/decimal"
	wthmodels "gitlab.com/maplesense1/wth.sensor_server/src/production/WTH.Models"
)

// AggregateTemperature reduces values with stat.
//
// min, max and sum of an empty set are zero. The average is rounded to a
// whole number, ties away from zero; it has no value for an empty set and
// ok is false.
func AggregateTemperature(values []decimal.Decimal, stat wthmodels.Statistic) (result decimal.Decimal, ok bool) {
	if len(values) == 0 {
		if stat == wthmodels.StatisticAverage {
			return decimal.Zero, false
		}
		return decimal.Zero, true
	}

	switch stat {
	case wthmodels.StatisticMin:
		return decimal.Min(values[0], values[1:]...), true
	case wthmodels.StatisticMax:
		return decimal.Max(values[0], values[1:]...), true
	case wthmodels.StatisticSum:
		return decimal.Sum(values[0], values[1:]...), true
	default:
		sum := decimal.Sum(values[0], values[1:]...)
		return sum.DivRound(decimal.NewFromInt(int64(len(values))), 0), true
	}
}

// AggregateHumidity reduces values with stat. The average truncates toward zero.
// Empty-set behaviour matches AggregateTemperature.
func AggregateHumidity(values []int, stat wthmodels.Statistic) (result int, ok bool) {
	if len(values) == 0 {
		return 0, stat != wthmodels.StatisticAverage
	}

	switch stat {
	case wthmodels.StatisticMin:
		return slices.Min(values), true
	case wthmodels.StatisticMax:
		return slices.Max(values), true
	case wthmodels.StatisticSum:
		return sumInt(values), true
	default:
		return sumInt(values) / len(values), true
	}
}

func sumInt(values []int) int {
	var s int
	for _, v := range values {
		s += v
	}
	return s
}
