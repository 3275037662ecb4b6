package engine

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	wthmodels "gitlab.com/maplesense1/wth.sensor_server/src/production/WTH.Models"
	implementation "gitlab.com/maplesense1/wth.sensor_server/src/production/WTH.Repository/Implementation"
)

var queryNow = time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

// seed stores readings one minute apart starting at 2024-03-10T10:00Z
func seed(t *testing.T, repo *implementation.MemoryReadingRepository, readings ...[3]string) {
	t.Helper()
	clock := newStepClock(time.Date(2024, 3, 10, 10, 0, 0, 0, time.UTC), time.Minute)
	sub := NewSubmitter(repo, WithSubmitterClock(clock.Now))
	for _, r := range readings {
		hum, err := strconv.Atoi(r[2])
		require.NoError(t, err)
		_, err = sub.Submit(context.Background(), r[0], dec(r[1]), &hum)
		require.NoError(t, err)
	}
}

func newTestResolver(repo *implementation.MemoryReadingRepository) *Resolver {
	return NewResolver(repo, WithResolverClock(fixedClock(queryNow)))
}

func TestResolveEmptyStore(t *testing.T) {
	r := newTestResolver(implementation.NewMemoryReadingRepository())

	sensors, err := r.ListSensors(context.Background())
	require.NoError(t, err)
	require.Empty(t, sensors)

	results, err := r.Resolve(context.Background(), wthmodels.Query{Metrics: []string{"temperature"}})
	require.NoError(t, err)
	require.NotNil(t, results)
	require.Empty(t, results)
}

func TestResolveLatestReturnsRequestedMetricsOnly(t *testing.T) {
	repo := implementation.NewMemoryReadingRepository()
	seed(t, repo, [3]string{"1", "25.5", "50"}, [3]string{"1", "26", "55"})
	r := newTestResolver(repo)

	results, err := r.Resolve(context.Background(), wthmodels.Query{Sensors: []string{"1"}, Metrics: []string{"temperature"}})
	require.NoError(t, err)
	require.Len(t, results, 1)

	got := results[0]
	require.Equal(t, "1", got.Sensor)
	require.NotNil(t, got.Temperature)
	require.True(t, decimal.NewFromInt(26).Equal(*got.Temperature))
	require.Nil(t, got.Humidity)
	require.Empty(t, got.Statistic)
	require.Equal(t, "2024-03-10T10:01:00Z", got.StartDate)
	require.Equal(t, got.StartDate, got.EndDate)
}

func TestResolveLatestWithoutReadings(t *testing.T) {
	repo := &stubRepo{sensors: []string{"9"}}
	r := NewResolver(repo, WithResolverClock(fixedClock(queryNow)))

	results, err := r.Resolve(context.Background(), wthmodels.Query{Metrics: []string{"temperature", "humidity"}})
	require.NoError(t, err)
	require.Equal(t, []wthmodels.SensorResult{{Sensor: "9"}}, results)
}

func TestResolveRangedStatistics(t *testing.T) {
	repo := implementation.NewMemoryReadingRepository()
	seed(t, repo,
		[3]string{"1", "10", "40"},
		[3]string{"1", "20", "50"},
		[3]string{"1", "30", "61"},
	)
	r := newTestResolver(repo)

	tests := []struct {
		stat string
		temp string
		hum  int
	}{
		{"", "20", 50},
		{"average", "20", 50},
		{"sum", "60", 151},
		{"min", "10", 40},
		{"max", "30", 61},
	}
	for _, tt := range tests {
		t.Run("statistic="+tt.stat, func(t *testing.T) {
			results, err := r.Resolve(context.Background(), wthmodels.Query{
				Sensors:   []string{"1"},
				Metrics:   []string{"temperature", "humidity"},
				Statistic: tt.stat,
				StartDate: "2024-03-01T00:00:00",
				EndDate:   "2024-03-15T00:00:00",
			})
			require.NoError(t, err)
			require.Len(t, results, 1)

			got := results[0]
			require.True(t, decimal.RequireFromString(tt.temp).Equal(*got.Temperature), "temperature %s", got.Temperature)
			require.Equal(t, tt.hum, *got.Humidity)
			wantStat := tt.stat
			if wantStat == "" {
				wantStat = "average"
			}
			require.Equal(t, wantStat, got.Statistic)
			require.Equal(t, "2024-03-01T00:00", got.StartDate)
			require.Equal(t, "2024-03-15T00:00", got.EndDate)
		})
	}
}

func TestResolveRangedBoundsAreInclusive(t *testing.T) {
	repo := implementation.NewMemoryReadingRepository()
	seed(t, repo,
		[3]string{"1", "10", "10"}, // 10:00
		[3]string{"1", "20", "20"}, // 10:01
		[3]string{"1", "30", "30"}, // 10:02
	)
	r := newTestResolver(repo)

	results, err := r.Resolve(context.Background(), wthmodels.Query{
		Sensors:   []string{"1"},
		Metrics:   []string{"humidity"},
		Statistic: "sum",
		StartDate: "2024-03-10T10:00:00",
		EndDate:   "2024-03-10T10:01:00",
	})
	require.NoError(t, err)
	require.Equal(t, 30, *results[0].Humidity)
	require.Nil(t, results[0].Temperature)
}

func TestResolveRangedEmptyWindow(t *testing.T) {
	repo := implementation.NewMemoryReadingRepository()
	seed(t, repo, [3]string{"1", "10", "10"})
	r := newTestResolver(repo)

	q := wthmodels.Query{
		Sensors:   []string{"1"},
		Metrics:   []string{"temperature", "humidity"},
		StartDate: "2024-03-11T00:00:00",
		EndDate:   "2024-03-12T00:00:00",
	}

	results, err := r.Resolve(context.Background(), q)
	require.NoError(t, err)
	require.Nil(t, results[0].Temperature)
	require.Nil(t, results[0].Humidity)
	require.Equal(t, "average", results[0].Statistic)

	q.Statistic = "max"
	results, err = r.Resolve(context.Background(), q)
	require.NoError(t, err)
	require.True(t, decimal.Zero.Equal(*results[0].Temperature))
	require.Equal(t, 0, *results[0].Humidity)
}

func TestResolveKeepsRequestedOrder(t *testing.T) {
	repo := implementation.NewMemoryReadingRepository()
	seed(t, repo,
		[3]string{"1", "10", "10"},
		[3]string{"2", "20", "20"},
		[3]string{"3", "30", "30"},
	)
	r := newTestResolver(repo)

	results, err := r.Resolve(context.Background(), wthmodels.Query{Sensors: []string{"3", "1"}, Metrics: []string{"humidity"}})
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Equal(t, "3", results[0].Sensor)
	require.Equal(t, "1", results[1].Sensor)

	results, err = r.Resolve(context.Background(), wthmodels.Query{Metrics: []string{"humidity"}})
	require.NoError(t, err)
	require.Len(t, results, 3)
	for i, want := range []string{"1", "2", "3"} {
		require.Equal(t, want, results[i].Sensor)
	}
}

func TestResolveUsesConfiguredLocation(t *testing.T) {
	repo := implementation.NewMemoryReadingRepository()
	seed(t, repo, [3]string{"1", "10", "10"}) // 2024-03-10T10:00Z

	q := wthmodels.Query{
		Sensors:   []string{"1"},
		Metrics:   []string{"humidity"},
		Statistic: "sum",
		StartDate: "2024-03-10T11:30:00",
		EndDate:   "2024-03-10T12:30:00",
	}

	utc := NewResolver(repo, WithResolverClock(fixedClock(queryNow)))
	results, err := utc.Resolve(context.Background(), q)
	require.NoError(t, err)
	require.Equal(t, 0, *results[0].Humidity)

	plusTwo := NewResolver(repo, WithResolverClock(fixedClock(queryNow)), WithLocation(time.FixedZone("UTC+2", 7200)))
	results, err = plusTwo.Resolve(context.Background(), q)
	require.NoError(t, err)
	require.Equal(t, 10, *results[0].Humidity)
}

func TestResolveValidationFailure(t *testing.T) {
	repo := implementation.NewMemoryReadingRepository()
	seed(t, repo, [3]string{"1", "10", "10"})
	r := newTestResolver(repo)

	_, err := r.Resolve(context.Background(), wthmodels.Query{Sensors: []string{"2"}, Metrics: []string{"temperature"}})
	require.ErrorIs(t, err, ErrUnknownSensor)
	require.True(t, IsValidation(err))
	require.Equal(t, "Invalid request, sensor does not exist", QueryMessage(err))
}

func TestResolveStoreFailure(t *testing.T) {
	r := NewResolver(&stubRepo{listErr: errBoom}, WithResolverClock(fixedClock(queryNow)))
	_, err := r.Resolve(context.Background(), wthmodels.Query{Metrics: []string{"temperature"}})
	require.ErrorIs(t, err, ErrStoreFailure)
	require.ErrorIs(t, err, errBoom)
	require.False(t, IsValidation(err))

	r = NewResolver(&stubRepo{sensors: []string{"1", "2"}, findErr: errBoom}, WithResolverClock(fixedClock(queryNow)))
	_, err = r.Resolve(context.Background(), wthmodels.Query{Metrics: []string{"temperature"}})
	require.ErrorIs(t, err, ErrStoreFailure)
	require.Equal(t, "Error while reading from database", QueryMessage(err))
}
