package implementation

import (
	"context"
	"sort"
	"sync"
	"time"

	wthmodels "gitlab.com/maplesense1/wth.sensor_server/src/production/WTH.Models"
	interfaces "gitlab.com/maplesense1/wth.sensor_server/src/production/WTH.Repository/Interfaces"
)

// MemoryReadingRepository keeps readings in process memory. Used for tests and STORE_BACKEND=memory.
type MemoryReadingRepository struct {
	mu       sync.RWMutex
	readings []wthmodels.Reading
	sensors  []string
	seen     map[string]struct{}
}

var _ interfaces.ReadingRepository = (*MemoryReadingRepository)(nil)

func NewMemoryReadingRepository() *MemoryReadingRepository {
	return &MemoryReadingRepository{seen: make(map[string]struct{})}
}

func (r *MemoryReadingRepository) InsertReading(ctx context.Context, reading wthmodels.Reading) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	r.readings = append(r.readings, reading)
	if _, ok := r.seen[reading.Sensor]; !ok {
		r.seen[reading.Sensor] = struct{}{}
		r.sensors = append(r.sensors, reading.Sensor)
	}
	return nil
}

func (r *MemoryReadingRepository) ListSensors(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, len(r.sensors))
	copy(out, r.sensors)
	return out, nil
}

func (r *MemoryReadingRepository) FindLatestBySensor(ctx context.Context, sensor string) (*wthmodels.Reading, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	var latest *wthmodels.Reading
	for i := range r.readings {
		rd := r.readings[i]
		if rd.Sensor != sensor {
			continue
		}
		// later insertions win ties
		if latest == nil || !rd.Timestamp.Before(latest.Timestamp) {
			latest = &rd
		}
	}
	return latest, nil
}

func (r *MemoryReadingRepository) FindBySensorBetween(ctx context.Context, sensor string, start, end time.Time) ([]wthmodels.Reading, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []wthmodels.Reading
	for _, rd := range r.readings {
		if rd.Sensor != sensor {
			continue
		}
		if rd.Timestamp.Before(start) || rd.Timestamp.After(end) {
			continue
		}
		out = append(out, rd)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out, nil
}

func (r *MemoryReadingRepository) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (r *MemoryReadingRepository) Close() error {
	return nil
}
