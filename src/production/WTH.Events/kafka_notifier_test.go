package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	wthmodels "gitlab.com/maplesense1/wth.sensor_server/src/production/WTH.Models"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	f.msgs = append(f.msgs, msgs...)
	return f.err
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func TestReadingAcceptedPublishesKeyedEvent(t *testing.T) {
	w := &fakeWriter{}
	n := NewKafkaNotifierWithWriter(w)

	rd := wthmodels.Reading{
		ID:          "r-1",
		Sensor:      "12",
		Temperature: decimal.RequireFromString("21.5"),
		Humidity:    40,
		Timestamp:   time.Date(2024, 3, 10, 10, 0, 0, 0, time.UTC),
	}
	require.NoError(t, n.ReadingAccepted(context.Background(), rd))
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	require.Equal(t, "12", string(msg.Key))
	require.Equal(t, rd.Timestamp, msg.Time)

	var got struct {
		Type    string `json:"type"`
		Reading struct {
			Sensor      string          `json:"sensor"`
			Temperature json.RawMessage `json:"temperature"`
		} `json:"reading"`
	}
	require.NoError(t, json.Unmarshal(msg.Value, &got))
	require.Equal(t, "reading.stored", got.Type)
	require.Equal(t, "12", got.Reading.Sensor)
	require.Equal(t, "21.5", string(got.Reading.Temperature))

	require.NoError(t, n.Close())
	require.True(t, w.closed)
}

func TestReadingAcceptedWrapsWriterError(t *testing.T) {
	boom := errors.New("broker down")
	n := NewKafkaNotifierWithWriter(&fakeWriter{err: boom})

	err := n.ReadingAccepted(context.Background(), wthmodels.Reading{ID: "r-2", Sensor: "1"})
	require.ErrorIs(t, err, boom)
}
