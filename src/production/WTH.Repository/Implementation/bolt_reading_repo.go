package implementation

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	wthmodels "gitlab.com/maplesense1/wth.sensor_server/src/production/WTH.Models"
	interfaces "gitlab.com/maplesense1/wth.sensor_server/src/production/WTH.Repository/Interfaces"
	"go.etcd.io/bbolt"
)

var (
	bucketReadings = []byte("readings")
	bucketSensors  = []byte("sensors")
)

// BoltReadingRepository stores readings in an embedded bbolt file.
//
// Layout:
//   - readings/<sensor>/<ts|seq> -> JSON reading
//   - sensors/<seq> -> sensor id, in first-seen order
type BoltReadingRepository struct {
	db *bbolt.DB
}

var _ interfaces.ReadingRepository = (*BoltReadingRepository)(nil)

// OpenBoltReadingRepository opens (creating if needed) a bbolt file
func OpenBoltReadingRepository(fname string) (*BoltReadingRepository, error) {
	db, err := bbolt.Open(fname, 0644, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("could not open bolt db %q: %w", fname, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketReadings); err != nil {
			return fmt.Errorf("could not create readings bucket: %w", err)
		}
		if _, err := tx.CreateBucketIfNotExists(bucketSensors); err != nil {
			return fmt.Errorf("could not create sensors bucket: %w", err)
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("could not setup bolt db %q: %w", fname, err)
	}

	return &BoltReadingRepository{db: db}, nil
}

func (r *BoltReadingRepository) InsertReading(ctx context.Context, reading wthmodels.Reading) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	raw, err := json.Marshal(reading)
	if err != nil {
		return fmt.Errorf("could not encode reading: %w", err)
	}

	err = r.db.Update(func(tx *bbolt.Tx) error {
		root := tx.Bucket(bucketReadings)
		bkt := root.Bucket([]byte(reading.Sensor))
		if bkt == nil {
			bkt, err = root.CreateBucket([]byte(reading.Sensor))
			if err != nil {
				return fmt.Errorf("could not create bucket for sensor %q: %w", reading.Sensor, err)
			}
			sensors := tx.Bucket(bucketSensors)
			id, err := sensors.NextSequence()
			if err != nil {
				return fmt.Errorf("could not allocate sensor sequence: %w", err)
			}
			if err := sensors.Put(u64Key(id), []byte(reading.Sensor)); err != nil {
				return fmt.Errorf("could not register sensor %q: %w", reading.Sensor, err)
			}
		}

		seq, err := bkt.NextSequence()
		if err != nil {
			return fmt.Errorf("could not allocate reading sequence: %w", err)
		}
		return bkt.Put(readingKey(reading.Timestamp, seq), raw)
	})
	if err != nil {
		return fmt.Errorf("could not insert reading for sensor %q: %w", reading.Sensor, err)
	}
	return nil
}

func (r *BoltReadingRepository) ListSensors(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sensors := make([]string, 0)
	err := r.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketSensors).ForEach(func(_, v []byte) error {
			sensors = append(sensors, string(v))
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("could not list sensors: %w", err)
	}
	return sensors, nil
}

func (r *BoltReadingRepository) FindLatestBySensor(ctx context.Context, sensor string) (*wthmodels.Reading, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var latest *wthmodels.Reading
	err := r.db.View(func(tx *bbolt.Tx) error {
		bkt := tx.Bucket(bucketReadings).Bucket([]byte(sensor))
		if bkt == nil {
			return nil
		}
		k, v := bkt.Cursor().Last()
		if k == nil {
			return nil
		}
		var rd wthmodels.Reading
		if err := json.Unmarshal(v, &rd); err != nil {
			return fmt.Errorf("could not decode reading: %w", err)
		}
		latest = &rd
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("could not fetch latest reading for sensor %q: %w", sensor, err)
	}
	return latest, nil
}

func (r *BoltReadingRepository) FindBySensorBetween(ctx context.Context, sensor string, start, end time.Time) ([]wthmodels.Reading, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var (
		readings []wthmodels.Reading
		beg      = readingKey(start, 0)
		last     = readingKey(end, ^uint64(0))
	)
	err := r.db.View(func(tx *bbolt.Tx) error {
		bkt := tx.Bucket(bucketReadings).Bucket([]byte(sensor))
		if bkt == nil {
			return nil
		}
		c := bkt.Cursor()
		for k, v := c.Seek(beg); k != nil && bytes.Compare(k, last) <= 0; k, v = c.Next() {
			var rd wthmodels.Reading
			if err := json.Unmarshal(v, &rd); err != nil {
				return fmt.Errorf("could not decode reading: %w", err)
			}
			readings = append(readings, rd)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("could not fetch readings for sensor %q: %w", sensor, err)
	}
	return readings, nil
}

func (r *BoltReadingRepository) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.db.View(func(tx *bbolt.Tx) error {
		if tx.Bucket(bucketReadings) == nil {
			return fmt.Errorf("readings bucket missing")
		}
		return nil
	})
}

func (r *BoltReadingRepository) Close() error {
	return r.db.Close()
}

// readingKey orders by timestamp, then by insertion sequence.
// The sign bit is flipped so pre-epoch instants sort before post-epoch ones.
func readingKey(ts time.Time, seq uint64) []byte {
	key := make([]byte, 16)
	binary.BigEndian.PutUint64(key[:8], uint64(ts.UnixNano())^(1<<63))
	binary.BigEndian.PutUint64(key[8:], seq)
	return key
}

func u64Key(v uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, v)
	return key
}
