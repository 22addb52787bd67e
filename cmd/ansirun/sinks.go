package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/andrej220/ansirun/pkg/lg"
	"github.com/andrej220/ansirun/pkg/persistence"
)

const mongoConnectTimeout = 10 * time.Second

// openSinks builds the record sinks enabled in cfg. The returned close function
// releases their connections and is never nil.
func openSinks(ctx context.Context, cfg *AppConfig, logger lg.Logger) (persistence.Multi, func(), error) {
	var (
		sinks   persistence.Multi
		closers []func() error
	)
	closeAll := func() {
		var errs []error
		for i := len(closers) - 1; i >= 0; i-- {
			errs = append(errs, closers[i]())
		}
		if err := errors.Join(errs...); err != nil {
			logger.Warn("Failed to close sinks", lg.Err(err))
		}
	}

	if cfg.Output.Dir != "" {
		sinks = append(sinks, persistence.NewFileSink(cfg.Output.Dir))
		logger.Info("Storing records in files", lg.String("dir", cfg.Output.Dir))
	}

	if cfg.Mongo.URI != "" {
		cctx, cancel := context.WithTimeout(ctx, mongoConnectTimeout)
		defer cancel()
		client, err := mongo.Connect(cctx, options.Client().ApplyURI(cfg.Mongo.URI))
		if err != nil {
			closeAll()
			return nil, func() {}, fmt.Errorf("failed to connect to MongoDB: %w", err)
		}
		if err := client.Ping(cctx, nil); err != nil {
			client.Disconnect(context.Background())
			closeAll()
			return nil, func() {}, fmt.Errorf("failed to ping MongoDB: %w", err)
		}
		closers = append(closers, func() error { return client.Disconnect(context.Background()) })
		coll := client.Database(cfg.Mongo.DBName).Collection(cfg.Mongo.Collection)
		sinks = append(sinks, persistence.NewMongoSink(coll))
		logger.Info("Storing records in MongoDB",
			lg.String("db", cfg.Mongo.DBName), lg.String("collection", cfg.Mongo.Collection))
	}

	if cfg.Kafka.ResultTopic != "" && len(cfg.Kafka.Brokers) > 0 {
		ks := persistence.NewKafkaSink(cfg.Kafka.Brokers, cfg.Kafka.ResultTopic)
		closers = append(closers, ks.Close)
		sinks = append(sinks, ks)
		logger.Info("Publishing records to Kafka", lg.String("topic", cfg.Kafka.ResultTopic))
	}

	return sinks, closeAll, nil
}
