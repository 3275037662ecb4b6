package api_models

import "time"

// IngestError is published back to devices when an MQTT reading is rejected
type IngestError struct {
	ErrorType string    `json:"error_type"`
	Message   string    `json:"message"`
	Sensor    string    `json:"sensor"`
	Timestamp time.Time `json:"timestamp"`
}

// Error types reported on the ingestor error topic
const (
	IngestErrInvalidPayload = "invalid_payload"
	IngestErrValidation     = "validation_error"
	IngestErrStore          = "store_error"
)
