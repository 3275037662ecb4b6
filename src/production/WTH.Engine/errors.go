package engine

import (
	"errors"

	api_models "gitlab.com/maplesense1/wth.sensor_server/src/production/WTH.Models/api"
)

var (
	ErrInvalidSensor      = errors.New("invalid sensor")
	ErrInvalidTemperature = errors.New("invalid temperature")
	ErrInvalidHumidity    = errors.New("invalid humidity")

	ErrUnknownSensor    = errors.New("unknown sensor")
	ErrInvalidDateRange = errors.New("invalid date range")
	ErrInvalidMetric    = errors.New("invalid metric")
	ErrInvalidStatistic = errors.New("invalid statistic")

	ErrStoreFailure = errors.New("store failure")
)

// IsValidation reports whether err is a client input error rather than a store failure
func IsValidation(err error) bool {
	for _, target := range []error{
		ErrInvalidSensor, ErrInvalidTemperature, ErrInvalidHumidity,
		ErrUnknownSensor, ErrInvalidDateRange, ErrInvalidMetric, ErrInvalidStatistic,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// SubmitMessage maps a submission outcome to the message returned to the client
func SubmitMessage(err error) string {
	switch {
	case err == nil:
		return api_models.MsgProcessed
	case errors.Is(err, ErrInvalidSensor):
		return api_models.MsgInvalidSensor
	case errors.Is(err, ErrInvalidTemperature):
		return api_models.MsgInvalidTemperature
	case errors.Is(err, ErrInvalidHumidity):
		return api_models.MsgInvalidHumidity
	default:
		return api_models.MsgSaveFailed
	}
}

// QueryMessage maps a query failure to the message returned to the client
func QueryMessage(err error) string {
	switch {
	case errors.Is(err, ErrUnknownSensor):
		return api_models.MsgUnknownSensor
	case errors.Is(err, ErrInvalidDateRange):
		return api_models.MsgInvalidDateRange
	case errors.Is(err, ErrInvalidMetric):
		return api_models.MsgInvalidMetric
	case errors.Is(err, ErrInvalidStatistic):
		return api_models.MsgInvalidStatistic
	default:
		return api_models.MsgReadFailed
	}
}

func storeFailure(err error) error {
	return errors.Join(ErrStoreFailure, err)
}
