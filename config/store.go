package config

import (
	"context"
	"fmt"

	"civicbounty-be/store"

	"github.com/sirupsen/logrus"
)

// OpenStore connects the backend selected by STORE_BACKEND and prepares
// its indexes or schema.
func OpenStore(ctx context.Context, cfg Config, log logrus.FieldLogger) (store.Store, error) {
	switch cfg.StoreBackend {
	case BackendMongo:
		db, err := ConnectDB(cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, err
		}
		s := store.NewMongoStore(db)
		if err := s.EnsureIndexes(ctx); err != nil {
			s.Close(ctx)
			return nil, err
		}
		log.WithField("database", cfg.MongoDatabase).Info("MongoDB connection established")
		return s, nil

	case BackendPostgres:
		pg, err := ConnectPostgres(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := store.CreateSchema(ctx, pg); err != nil {
			pg.Close()
			return nil, err
		}
		log.Info("PostgreSQL connection established")
		return store.NewPostgresStore(pg), nil

	case BackendMemory:
		log.Warn("using in-memory store, data will not survive a restart")
		return store.NewMemoryStore(), nil
	}
	return nil, fmt.Errorf("unknown STORE_BACKEND %q", cfg.StoreBackend)
}
