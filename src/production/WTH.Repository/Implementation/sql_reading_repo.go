package implementation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	wthmodels "gitlab.com/maplesense1/wth.sensor_server/src/production/WTH.Models"
	interfaces "gitlab.com/maplesense1/wth.sensor_server/src/production/WTH.Repository/Interfaces"
	_ "modernc.org/sqlite"
)

type sqlDialect int

const (
	dialectSQLite sqlDialect = iota
	dialectPostgres
)

// Schema per dialect. Timestamps are stored as unix nanoseconds so that
// ordering and range filters behave the same on both engines.
var readingSchemas = map[sqlDialect][]string{
	dialectSQLite: {
		`CREATE TABLE IF NOT EXISTS readings (
			seq         INTEGER PRIMARY KEY AUTOINCREMENT,
			id          TEXT    NOT NULL UNIQUE,
			sensor      TEXT    NOT NULL,
			temperature TEXT    NOT NULL,
			humidity    INTEGER NOT NULL,
			ts          INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_readings_sensor_ts ON readings (sensor, ts)`,
	},
	dialectPostgres: {
		`CREATE TABLE IF NOT EXISTS readings (
			seq         BIGSERIAL PRIMARY KEY,
			id          TEXT      NOT NULL UNIQUE,
			sensor      TEXT      NOT NULL,
			temperature NUMERIC   NOT NULL,
			humidity    INTEGER   NOT NULL,
			ts          BIGINT    NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_readings_sensor_ts ON readings (sensor, ts)`,
	},
}

// SQLReadingRepository stores readings in a relational table, on SQLite or PostgreSQL
type SQLReadingRepository struct {
	db      *sql.DB
	dialect sqlDialect
}

var _ interfaces.ReadingRepository = (*SQLReadingRepository)(nil)

// sqliteBusyTimeoutMS is how long a connection waits on a lock held by
// another connection (or process) before failing with SQLITE_BUSY.
const sqliteBusyTimeoutMS = 5000

// OpenSQLiteReadingRepository opens (creating if needed) a SQLite database file and migrates it.
// The API and ingestor processes may share the file.
func OpenSQLiteReadingRepository(ctx context.Context, fname string) (*SQLReadingRepository, error) {
	db, err := sql.Open("sqlite", sqliteDSN(fname))
	if err != nil {
		return nil, fmt.Errorf("could not open sqlite db %q: %w", fname, err)
	}
	// SQLite allows a single writer; serialise this process and let busy_timeout cover the others.
	db.SetMaxOpenConns(1)

	if fname != ":memory:" {
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode = WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("could not set WAL mode: %w", err)
		}
	}

	repo := &SQLReadingRepository{db: db, dialect: dialectSQLite}
	if err := repo.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("could not setup sqlite db %q: %w", fname, err)
	}
	return repo, nil
}

// sqliteDSN applies the busy timeout to every connection the pool opens
func sqliteDSN(fname string) string {
	sep := "?"
	if strings.Contains(fname, "?") {
		sep = "&"
	}
	return fmt.Sprintf("%s%s_pragma=busy_timeout(%d)", fname, sep, sqliteBusyTimeoutMS)
}

// NewPostgresReadingRepository wraps an open PostgreSQL connection pool
func NewPostgresReadingRepository(db *sql.DB) *SQLReadingRepository {
	return &SQLReadingRepository{db: db, dialect: dialectPostgres}
}

// ConnectPostgresWithTimeout opens a PostgreSQL pool and pings it within timeout
func ConnectPostgresWithTimeout(dsn string, maxConns, minConns int, timeout time.Duration) (*sql.DB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to open PostgreSQL connection: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("unable to ping PostgreSQL: %w", err)
	}

	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(minConns)
	db.SetConnMaxLifetime(5 * time.Minute)

	return db, nil
}

// Migrate creates the readings table and its index if they don't exist
func (r *SQLReadingRepository) Migrate(ctx context.Context) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("could not begin migration: %w", err)
	}
	defer func() {
		if err != nil {
			err = errors.Join(err, tx.Rollback())
		}
	}()

	for _, stmt := range readingSchemas[r.dialect] {
		if _, err = tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("could not create readings schema: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("could not commit migration: %w", err)
	}
	return nil
}

func (r *SQLReadingRepository) InsertReading(ctx context.Context, reading wthmodels.Reading) error {
	query := r.rebind(`INSERT INTO readings (id, sensor, temperature, humidity, ts) VALUES (?, ?, ?, ?, ?)`)

	_, err := r.db.ExecContext(ctx, query,
		reading.ID,
		reading.Sensor,
		reading.Temperature.String(),
		reading.Humidity,
		reading.Timestamp.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("could not insert reading for sensor %q: %w", reading.Sensor, err)
	}
	return nil
}

func (r *SQLReadingRepository) ListSensors(ctx context.Context) ([]string, error) {
	const query = `SELECT sensor FROM readings GROUP BY sensor ORDER BY MIN(seq)`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("could not list sensors: %w", err)
	}
	defer rows.Close()

	sensors := make([]string, 0)
	for rows.Next() {
		var sensor string
		if err := rows.Scan(&sensor); err != nil {
			return nil, fmt.Errorf("could not scan sensor row: %w", err)
		}
		sensors = append(sensors, sensor)
	}
	return sensors, rows.Err()
}

func (r *SQLReadingRepository) FindLatestBySensor(ctx context.Context, sensor string) (*wthmodels.Reading, error) {
	query := r.rebind(`SELECT id, sensor, temperature, humidity, ts FROM readings
		WHERE sensor = ? ORDER BY ts DESC, seq DESC LIMIT 1`)

	reading, err := scanReading(r.db.QueryRowContext(ctx, query, sensor))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("could not fetch latest reading for sensor %q: %w", sensor, err)
	}
	return reading, nil
}

func (r *SQLReadingRepository) FindBySensorBetween(ctx context.Context, sensor string, start, end time.Time) ([]wthmodels.Reading, error) {
	query := r.rebind(`SELECT id, sensor, temperature, humidity, ts FROM readings
		WHERE sensor = ? AND ts >= ? AND ts <= ? ORDER BY ts, seq`)

	rows, err := r.db.QueryContext(ctx, query, sensor, start.UnixNano(), end.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("could not fetch readings for sensor %q: %w", sensor, err)
	}
	defer rows.Close()

	var readings []wthmodels.Reading
	for rows.Next() {
		reading, err := scanReading(rows)
		if err != nil {
			return nil, fmt.Errorf("could not scan reading row: %w", err)
		}
		readings = append(readings, *reading)
	}
	return readings, rows.Err()
}

func (r *SQLReadingRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLReadingRepository) Close() error {
	return r.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReading(row rowScanner) (*wthmodels.Reading, error) {
	var (
		reading wthmodels.Reading
		ts      int64
	)
	if err := row.Scan(&reading.ID, &reading.Sensor, &reading.Temperature, &reading.Humidity, &ts); err != nil {
		return nil, err
	}
	reading.Timestamp = time.Unix(0, ts).UTC()
	return &reading, nil
}

// rebind rewrites '?' placeholders into the dialect's form
func (r *SQLReadingRepository) rebind(query string) string {
	if r.dialect != dialectPostgres {
		return query
	}
	var (
		sb strings.Builder
		n  int
	)
	for _, c := range query {
		if c == '?' {
			n++
			sb.WriteByte('$')
			sb.WriteString(strconv.Itoa(n))
			continue
		}
		sb.WriteRune(c)
	}
	return sb.String()
}
