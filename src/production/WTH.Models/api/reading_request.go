package api_models

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// AddReadingRequest is the body accepted by the submit endpoint and the MQTT ingestor.
// Absent fields stay nil so validation can tell them apart from zero values.
type AddReadingRequest struct {
	Sensor      *SensorText      `json:"sensor"`
	Temperature *decimal.Decimal `json:"temperature"`
	Humidity    *int             `json:"humidity"`
}

// SensorValue returns the sensor id or an empty string when absent
func (r AddReadingRequest) SensorValue() string {
	if r.Sensor == nil {
		return ""
	}
	return string(*r.Sensor)
}

// SensorText is a sensor id sent either as a JSON string or as a bare
// scalar (12, 1.5, true), which is kept as its literal text.
type SensorText string

func (s *SensorText) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return fmt.Errorf("empty sensor value")
	}
	switch data[0] {
	case '"':
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		*s = SensorText(str)
	case '{', '[':
		return fmt.Errorf("sensor must be a string or number")
	default:
		*s = SensorText(data)
	}
	return nil
}
