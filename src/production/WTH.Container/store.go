package container

import (
	"context"
	"fmt"

	config "gitlab.com/maplesense1/wth.sensor_server/src/production/WTH.Config"
	implementation "gitlab.com/maplesense1/wth.sensor_server/src/production/WTH.Repository/Implementation"
	interfaces "gitlab.com/maplesense1/wth.sensor_server/src/production/WTH.Repository/Interfaces"
)

// OpenRepository connects to the reading store selected by cfg.Backend
func OpenRepository(ctx context.Context, cfg config.StoreConfig) (interfaces.ReadingRepository, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		return implementation.NewMemoryReadingRepository(), nil

	case config.BackendSQLite:
		repo, err := implementation.OpenSQLiteReadingRepository(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return repo, nil

	case config.BackendBolt:
		repo, err := implementation.OpenBoltReadingRepository(cfg.BoltPath)
		if err != nil {
			return nil, err
		}
		return repo, nil

	case config.BackendPostgres:
		db, err := implementation.ConnectPostgresWithTimeout(cfg.PostgresDSN(), cfg.Postgres.MaxConns, cfg.Postgres.MinConns, cfg.ConnectTimeout)
		if err != nil {
			return nil, err
		}
		repo := implementation.NewPostgresReadingRepository(db)
		if err := repo.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, err
		}
		return repo, nil

	case config.BackendMongo:
		client, err := implementation.ConnectMongoWithTimeout(cfg.MongoURI, cfg.MongoTLS, cfg.ConnectTimeout)
		if err != nil {
			return nil, err
		}
		repo := implementation.NewMongoReadingRepository(client.Database(cfg.DBName).Collection(cfg.Collection))
		if err := repo.EnsureIndexes(ctx); err != nil {
			_ = repo.Close()
			return nil, err
		}
		return repo, nil
	}
	return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
}
