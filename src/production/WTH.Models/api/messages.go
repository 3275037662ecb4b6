package api_models

// Client-facing messages returned by the weather endpoints
const (
	MsgInvalidSensor      = "Invalid request sensor"
	MsgInvalidTemperature = "Invalid request temperature"
	MsgInvalidHumidity    = "Invalid request humidity"
	MsgSaveFailed         = "Error while saving to database"
	MsgProcessed          = "Request processed successfully"

	MsgUnknownSensor    = "Invalid request, sensor does not exist"
	MsgInvalidDateRange = "Invalid date values provided"
	MsgInvalidMetric    = "Invalid request, metric must be temperature or humidity or both"
	MsgInvalidStatistic = "Invalid request, statistic must be min, max, sum or average. If not provided, the default value is average"
	MsgReadFailed       = "Error while reading from database"
	MsgInvalidBody      = "Invalid request body"
)
