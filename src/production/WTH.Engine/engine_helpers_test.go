package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	wthmodels "gitlab.com/maplesense1/wth.sensor_server/src/production/WTH.Models"
)

// stepClock returns start, then advances by step on every call
type stepClock struct {
	mu   sync.Mutex
	next time.Time
	step time.Duration
}

func newStepClock(start time.Time, step time.Duration) *stepClock {
	return &stepClock{next: start, step: step}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.next
	c.next = c.next.Add(c.step)
	return now
}

func fixedClock(t time.Time) Clock {
	return func() time.Time { return t }
}

var errBoom = errors.New("boom")

// stubRepo lets tests script store responses
type stubRepo struct {
	sensors    []string
	latest     map[string]*wthmodels.Reading
	listErr    error
	findErr    error
	insertErr  error
	inserted   []wthmodels.Reading
	insertLock sync.Mutex
}

func (s *stubRepo) InsertReading(_ context.Context, rd wthmodels.Reading) error {
	if s.insertErr != nil {
		return s.insertErr
	}
	s.insertLock.Lock()
	defer s.insertLock.Unlock()
	s.inserted = append(s.inserted, rd)
	return nil
}

func (s *stubRepo) ListSensors(context.Context) ([]string, error) {
	return s.sensors, s.listErr
}

func (s *stubRepo) FindLatestBySensor(_ context.Context, sensor string) (*wthmodels.Reading, error) {
	if s.findErr != nil {
		return nil, s.findErr
	}
	return s.latest[sensor], nil
}

func (s *stubRepo) FindBySensorBetween(context.Context, string, time.Time, time.Time) ([]wthmodels.Reading, error) {
	return nil, s.findErr
}

func (s *stubRepo) Ping(context.Context) error { return nil }

func (s *stubRepo) Close() error { return nil }
