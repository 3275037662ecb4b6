package implementation

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	wthmodels "gitlab.com/maplesense1/wth.sensor_server/src/production/WTH.Models"
	interfaces "gitlab.com/maplesense1/wth.sensor_server/src/production/WTH.Repository/Interfaces"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// readingDocument is the BSON shape of a reading.
// ts holds unix nanoseconds because BSON dates only keep milliseconds.
type readingDocument struct {
	ID          string               `bson:"_id"`
	Sensor      string               `bson:"sensor"`
	Temperature primitive.Decimal128 `bson:"temperature"`
	Humidity    int                  `bson:"humidity"`
	Timestamp   time.Time            `bson:"timestamp"`
	TsNanos     int64                `bson:"ts"`
}

// MongoReadingRepository stores readings as documents in a single collection
type MongoReadingRepository struct {
	coll *mongo.Collection
}

var _ interfaces.ReadingRepository = (*MongoReadingRepository)(nil)

func NewMongoReadingRepository(coll *mongo.Collection) *MongoReadingRepository {
	return &MongoReadingRepository{coll: coll}
}

// ConnectMongoWithTimeout creates a MongoDB client and pings the primary within timeout
func ConnectMongoWithTimeout(uri string, useTLS bool, timeout time.Duration) (*mongo.Client, error) {
	if uri == "" {
		return nil, fmt.Errorf("MONGODB_URI not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	clientOptions := options.Client().ApplyURI(uri)
	if useTLS {
		clientOptions.SetTLSConfig(&tls.Config{
			MinVersion: tls.VersionTLS12,
		})
	}
	clientOptions.SetServerSelectionTimeout(30 * time.Second)
	clientOptions.SetConnectTimeout(30 * time.Second)
	clientOptions.SetSocketTimeout(30 * time.Second)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("unable to ping MongoDB: %w", err)
	}

	return client, nil
}

// EnsureIndexes creates the (sensor, ts) index used by latest and range lookups
func (r *MongoReadingRepository) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	_, err := r.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "sensor", Value: 1}, {Key: "ts", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("could not create readings index: %w", err)
	}
	return nil
}

func (r *MongoReadingRepository) InsertReading(ctx context.Context, rd wthmodels.Reading) error {
	doc, err := toDocument(rd)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("could not insert reading for sensor %q: %w", rd.Sensor, err)
	}
	return nil
}

func (r *MongoReadingRepository) ListSensors(ctx context.Context) ([]string, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$sensor"},
			{Key: "first", Value: bson.D{{Key: "$min", Value: "$ts"}}},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "first", Value: 1}, {Key: "_id", Value: 1}}}},
	}

	cur, err := r.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("could not list sensors: %w", err)
	}
	defer cur.Close(ctx)

	sensors := make([]string, 0)
	for cur.Next(ctx) {
		var row struct {
			Sensor string `bson:"_id"`
		}
		if err := cur.Decode(&row); err != nil {
			return nil, fmt.Errorf("could not decode sensor row: %w", err)
		}
		sensors = append(sensors, row.Sensor)
	}
	return sensors, cur.Err()
}

func (r *MongoReadingRepository) FindLatestBySensor(ctx context.Context, sensor string) (*wthmodels.Reading, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "ts", Value: -1}})

	var doc readingDocument
	err := r.coll.FindOne(ctx, bson.M{"sensor": sensor}, opts).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("could not fetch latest reading for sensor %q: %w", sensor, err)
	}
	return fromDocument(doc)
}

func (r *MongoReadingRepository) FindBySensorBetween(ctx context.Context, sensor string, start, end time.Time) ([]wthmodels.Reading, error) {
	filter := bson.M{
		"sensor": sensor,
		"ts":     bson.M{"$gte": start.UnixNano(), "$lte": end.UnixNano()},
	}
	opts := options.Find().SetSort(bson.D{{Key: "ts", Value: 1}})

	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("could not fetch readings for sensor %q: %w", sensor, err)
	}
	defer cur.Close(ctx)

	var readings []wthmodels.Reading
	for cur.Next(ctx) {
		var doc readingDocument
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("could not decode reading: %w", err)
		}
		rd, err := fromDocument(doc)
		if err != nil {
			return nil, err
		}
		readings = append(readings, *rd)
	}
	return readings, cur.Err()
}

func (r *MongoReadingRepository) Ping(ctx context.Context) error {
	return r.coll.Database().Client().Ping(ctx, readpref.Primary())
}

func (r *MongoReadingRepository) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return r.coll.Database().Client().Disconnect(ctx)
}

func toDocument(rd wthmodels.Reading) (readingDocument, error) {
	temp, err := primitive.ParseDecimal128(rd.Temperature.String())
	if err != nil {
		return readingDocument{}, fmt.Errorf("could not encode temperature %s: %w", rd.Temperature, err)
	}
	return readingDocument{
		ID:          rd.ID,
		Sensor:      rd.Sensor,
		Temperature: temp,
		Humidity:    rd.Humidity,
		Timestamp:   rd.Timestamp.UTC(),
		TsNanos:     rd.Timestamp.UnixNano(),
	}, nil
}

func fromDocument(doc readingDocument) (*wthmodels.Reading, error) {
	temp, err := decimal.NewFromString(doc.Temperature.String())
	if err != nil {
		return nil, fmt.Errorf("could not decode temperature %s: %w", doc.Temperature, err)
	}
	return &wthmodels.Reading{
		ID:          doc.ID,
		Sensor:      doc.Sensor,
		Temperature: temp,
		Humidity:    doc.Humidity,
		Timestamp:   time.Unix(0, doc.TsNanos).UTC(),
	}, nil
}
