package config

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var (
	db     *mongo.Database
	client *mongo.Client
	dbErr  error
	once   sync.Once
)

// ConnectDB initializes and returns a MongoDB database connection
func ConnectDB(mongoURI, database string) (*mongo.Database, error) {
	once.Do(func() {
		if mongoURI == "" {
			dbErr = fmt.Errorf("MONGODB_URI is not set")
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		opts := options.Client().ApplyURI(mongoURI).SetRegistry(NewRegistry())
		c, err := mongo.Connect(ctx, opts)
		if err != nil {
			dbErr = fmt.Errorf("connect to MongoDB: %w", err)
			return
		}

		if err := c.Ping(ctx, nil); err != nil {
			dbErr = fmt.Errorf("ping MongoDB: %w", err)
			return
		}

		client = c
		db = client.Database(database)
	})

	return db, dbErr
}
