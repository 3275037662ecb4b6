package engine

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	logger "gitlab.com/maplesense1/wth.sensor_server/src/production/WTH.Logger"
	wthmodels "gitlab.com/maplesense1/wth.sensor_server/src/production/WTH.Models"
	interfaces "gitlab.com/maplesense1/wth.sensor_server/src/production/WTH.Repository/Interfaces"
)

// Notifier is told about every reading that was stored
type Notifier interface {
	ReadingAccepted(ctx context.Context, reading wthmodels.Reading) error
}

// Submitter validates, stamps and stores incoming readings
type Submitter struct {
	repo     interfaces.ReadingRepository
	now      Clock
	newID    func() string
	notifier Notifier
	logger   *logger.Logger

	// mu serialises stamping and insertion so stored timestamps follow insertion order
	mu   sync.Mutex
	last time.Time
}

// SubmitterOption configures a Submitter
type SubmitterOption func(*Submitter)

// WithSubmitterClock overrides the clock used to stamp readings
func WithSubmitterClock(now Clock) SubmitterOption {
	return func(s *Submitter) { s.now = now }
}

// WithIDGenerator overrides reading id generation
func WithIDGenerator(newID func() string) SubmitterOption {
	return func(s *Submitter) { s.newID = newID }
}

// WithNotifier registers a notifier for stored readings
func WithNotifier(n Notifier) SubmitterOption {
	return func(s *Submitter) { s.notifier = n }
}

// WithSubmitterLogger sets the logger
func WithSubmitterLogger(l *logger.Logger) SubmitterOption {
	return func(s *Submitter) { s.logger = l }
}

func NewSubmitter(repo interfaces.ReadingRepository, opts ...SubmitterOption) *Submitter {
	s := &Submitter{
		repo:   repo,
		now:    time.Now,
		newID:  uuid.NewString,
		logger: logger.GetGlobalLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.WithComponent("submitter")
	return s
}

// Submit validates the fields, assigns an id and a timestamp, and stores the reading.
// Validation failures return one of the ErrInvalid* errors; store failures wrap ErrStoreFailure.
func (s *Submitter) Submit(ctx context.Context, sensor string, temperature *decimal.Decimal, humidity *int) (*wthmodels.Reading, error) {
	if err := ValidateReading(sensor, temperature, humidity); err != nil {
		return nil, err
	}

	rd, err := s.store(ctx, sensor, *temperature, *humidity)
	if err != nil {
		s.logger.Logger.Error().Err(err).Str("sensor", sensor).Msg("Failed to store reading")
		return nil, storeFailure(err)
	}

	if s.notifier != nil {
		if err := s.notifier.ReadingAccepted(ctx, *rd); err != nil {
			s.logger.Logger.Warn().Err(err).Str("sensor", sensor).Str("reading_id", rd.ID).Msg("Failed to publish reading event")
		}
	}
	return rd, nil
}

func (s *Submitter) store(ctx context.Context, sensor string, temperature decimal.Decimal, humidity int) (*wthmodels.Reading, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ts := s.now().UTC()
	if !ts.After(s.last) {
		ts = s.last.Add(time.Nanosecond)
	}

	rd := wthmodels.Reading{
		ID:          s.newID(),
		Sensor:      sensor,
		Temperature: temperature,
		Humidity:    humidity,
		Timestamp:   ts,
	}
	if err := s.repo.InsertReading(ctx, rd); err != nil {
		return nil, err
	}
	s.last = ts
	return &rd, nil
}
