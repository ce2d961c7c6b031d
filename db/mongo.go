package db

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type MongoClient struct {
	client *mongo.Client
}

func NewMongoClient(uri string) (*MongoClient, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("error connecting to MongoDB: %v", err)
	}
	return &MongoClient{client: client}, nil
}

func (c *MongoClient) Close() error {
	return c.client.Disconnect(context.Background())
}

func (c *MongoClient) matches() *mongo.Collection {
	return c.client.Database("song-scanner").Collection("matches")
}

func (c *MongoClient) SaveMatch(m Match) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	filter := bson.M{"source_path": m.SourcePath, "track": m.Track}
	update := bson.M{"$setOnInsert": m}
	_, err := c.matches().UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("error saving match: %v", err)
	}
	return nil
}

func (c *MongoClient) RecentMatches(limit int) ([]Match, error) {
	if limit < 1 {
		limit = 50
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	opts := options.Find().
		SetSort(bson.D{{Key: "scanned_at", Value: -1}}).
		SetLimit(int64(limit))
	cur, err := c.matches().Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("error querying matches: %v", err)
	}
	defer cur.Close(ctx)

	var matches []Match
	if err := cur.All(ctx, &matches); err != nil {
		return nil, fmt.Errorf("error decoding matches: %v", err)
	}
	return matches, nil
}
