package interfaces

import (
	"context"
	"time"

	wthmodels "gitlab.com/maplesense1/wth.sensor_server/src/production/WTH.Models"
)

// ReadingRepository persists readings and answers the lookups the query engine needs.
// Implementations must make InsertReading atomic per record.
type ReadingRepository interface {
	// InsertReading stores a reading whose id and timestamp are already assigned
	InsertReading(ctx context.Context, reading wthmodels.Reading) error

	// ListSensors returns every distinct sensor id in first-seen order
	ListSensors(ctx context.Context) ([]string, error)

	// FindLatestBySensor returns the most recent reading for the sensor, or nil when it has none
	FindLatestBySensor(ctx context.Context, sensor string) (*wthmodels.Reading, error)

	// FindBySensorBetween returns readings with start <= timestamp <= end, oldest first
	FindBySensorBetween(ctx context.Context, sensor string, start, end time.Time) ([]wthmodels.Reading, error)

	// Ping reports whether the backing store is reachable
	Ping(ctx context.Context) error

	Close() error
}
