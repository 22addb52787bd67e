package persistence

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	dm "github.com/andrej220/ansirun/pkg/shared-models"
)

type inserter interface {
	InsertOne(ctx context.Context, document any, opts ...*options.InsertOneOptions) (*mongo.InsertOneResult, error)
}

// mongoRecord keeps the execution UID as a readable string _id.
type mongoRecord struct {
	ID        string `bson:"_id"`
	dm.Record `bson:",inline"`
}

// MongoSink inserts records into a collection, one document per execution.
type MongoSink struct {
	coll inserter
}

func NewMongoSink(coll *mongo.Collection) *MongoSink {
	return &MongoSink{coll: coll}
}

func (s *MongoSink) Store(ctx context.Context, rec dm.Record) error {
	doc := mongoRecord{ID: rec.ExecutionUID.String(), Record: rec}
	if _, err := s.coll.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("insert record %s: %w", doc.ID, err)
	}
	return nil
}
