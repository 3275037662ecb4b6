package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	logger "gitlab.com/maplesense1/wth.sensor_server/src/production/WTH.Logger"
	wthmodels "gitlab.com/maplesense1/wth.sensor_server/src/production/WTH.Models"
	interfaces "gitlab.com/maplesense1/wth.sensor_server/src/production/WTH.Repository/Interfaces"
	"golang.org/x/sync/errgroup"
)

// Clock returns the current instant
type Clock func() time.Time

const defaultMaxParallel = 8

// Resolver answers sensor queries. It is stateless and safe for concurrent use.
type Resolver struct {
	repo        interfaces.ReadingRepository
	loc         *time.Location
	now         Clock
	maxParallel int
	logger      *logger.Logger
}

// ResolverOption configures a Resolver
type ResolverOption func(*Resolver)

// WithLocation sets the zone used to interpret query date-times
func WithLocation(loc *time.Location) ResolverOption {
	return func(r *Resolver) { r.loc = loc }
}

// WithResolverClock overrides the clock used to reject future dates
func WithResolverClock(now Clock) ResolverOption {
	return func(r *Resolver) { r.now = now }
}

// WithMaxParallel bounds the number of sensors resolved at once
func WithMaxParallel(n int) ResolverOption {
	return func(r *Resolver) {
		if n > 0 {
			r.maxParallel = n
		}
	}
}

// WithResolverLogger sets the logger
func WithResolverLogger(l *logger.Logger) ResolverOption {
	return func(r *Resolver) { r.logger = l }
}

func NewResolver(repo interfaces.ReadingRepository, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		repo:        repo,
		loc:         time.UTC,
		now:         time.Now,
		maxParallel: defaultMaxParallel,
		logger:      logger.GetGlobalLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.WithComponent("resolver")
	return r
}

// ListSensors returns the distinct known sensor ids in first-seen order
func (r *Resolver) ListSensors(ctx context.Context) ([]string, error) {
	sensors, err := r.repo.ListSensors(ctx)
	if err != nil {
		return nil, storeFailure(fmt.Errorf("could not list sensors: %w", err))
	}
	return sensors, nil
}

// Resolve validates q and computes one result per sensor, in the order the
// sensors were requested. An empty sensor list selects every known sensor.
func (r *Resolver) Resolve(ctx context.Context, q wthmodels.Query) ([]wthmodels.SensorResult, error) {
	known, err := r.ListSensors(ctx)
	if err != nil {
		return nil, err
	}
	if len(q.Sensors) == 0 {
		q.Sensors = known
	}

	plan, err := ValidateQuery(q, known, r.loc, r.now().In(r.loc))
	if err != nil {
		return nil, err
	}

	results := make([]wthmodels.SensorResult, len(plan.Sensors))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.maxParallel)
	for i, sensor := range plan.Sensors {
		g.Go(func() error {
			res, err := r.resolveSensor(gctx, sensor, plan)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, storeFailure(err)
	}

	r.logger.Logger.Debug().
		Int("sensors", len(plan.Sensors)).
		Bool("ranged", plan.Ranged).
		Str("statistic", string(plan.Statistic)).
		Msg("Resolved sensor query")

	return results, nil
}

func (r *Resolver) resolveSensor(ctx context.Context, sensor string, plan *QueryPlan) (wthmodels.SensorResult, error) {
	if !plan.Ranged {
		return r.resolveLatest(ctx, sensor, plan)
	}
	return r.resolveRange(ctx, sensor, plan)
}

func (r *Resolver) resolveLatest(ctx context.Context, sensor string, plan *QueryPlan) (wthmodels.SensorResult, error) {
	res := wthmodels.SensorResult{Sensor: sensor}

	rd, err := r.repo.FindLatestBySensor(ctx, sensor)
	if err != nil {
		return res, fmt.Errorf("could not fetch latest reading for sensor %q: %w", sensor, err)
	}
	if rd == nil {
		return res, nil
	}

	for _, m := range plan.Metrics {
		switch m {
		case wthmodels.MetricTemperature:
			temp := rd.Temperature
			res.Temperature = &temp
		case wthmodels.MetricHumidity:
			hum := rd.Humidity
			res.Humidity = &hum
		}
	}
	res.StartDate = FormatInstant(rd.Timestamp)
	res.EndDate = res.StartDate
	return res, nil
}

func (r *Resolver) resolveRange(ctx context.Context, sensor string, plan *QueryPlan) (wthmodels.SensorResult, error) {
	res := wthmodels.SensorResult{
		Sensor:    sensor,
		Statistic: string(plan.Statistic),
		StartDate: FormatLocalDateTime(plan.Start),
		EndDate:   FormatLocalDateTime(plan.End),
	}

	readings, err := r.repo.FindBySensorBetween(ctx, sensor, plan.Start, plan.End)
	if err != nil {
		return res, fmt.Errorf("could not fetch readings for sensor %q: %w", sensor, err)
	}

	for _, m := range plan.Metrics {
		switch m {
		case wthmodels.MetricTemperature:
			if res.Temperature != nil {
				continue
			}
			values := make([]decimal.Decimal, len(readings))
			for i, rd := range readings {
				values[i] = rd.Temperature
			}
			if v, ok := AggregateTemperature(values, plan.Statistic); ok {
				res.Temperature = &v
			}
		case wthmodels.MetricHumidity:
			if res.Humidity != nil {
				continue
			}
			values := make([]int, len(readings))
			for i, rd := range readings {
				values[i] = rd.Humidity
			}
			if v, ok := AggregateHumidity(values, plan.Statistic); ok {
				res.Humidity = &v
			}
		}
	}
	return res, nil
}
