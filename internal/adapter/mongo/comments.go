// Package mongo stores user comments in a MongoDB collection.
package mongo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	mongodriver "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/couchcryptid/covid-analytics-service/internal/config"
	"github.com/couchcryptid/covid-analytics-service/internal/domain"
)

// Collection is the collection comments are written to.
const Collection = "comments"

// ListLimit caps the number of comments returned by List.
const ListLimit = 100

// CommentStore inserts and lists comments.
type CommentStore struct {
	client *mongodriver.Client
	coll   *mongodriver.Collection
}

type commentDoc struct {
	ID      primitive.ObjectID `bson:"_id,omitempty"`
	Country *string            `bson:"country"`
	Region  *string            `bson:"region"`
	Date    *string            `bson:"date"`
	Text    *string            `bson:"text"`
}

// Connect dials the configured deployment. The driver connects lazily, so an
// unreachable server surfaces on the first operation or Ping.
func Connect(ctx context.Context, cfg config.MongoConfig) (*CommentStore, error) {
	client, err := mongodriver.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	return NewCommentStore(client.Database(cfg.Database).Collection(Collection)), nil
}

// NewCommentStore wraps an existing collection handle.
func NewCommentStore(coll *mongodriver.Collection) *CommentStore {
	return &CommentStore{client: coll.Database().Client(), coll: coll}
}

// Insert stores c and returns it with its assigned id.
func (s *CommentStore) Insert(ctx context.Context, c domain.Comment) (domain.Comment, error) {
	res, err := s.coll.InsertOne(ctx, commentDoc{
		Country: c.Country,
		Region:  c.Region,
		Date:    c.Date,
		Text:    c.Text,
	})
	if err != nil {
		return domain.Comment{}, fmt.Errorf("insert comment: %w", err)
	}

	id, ok := res.InsertedID.(primitive.ObjectID)
	if !ok {
		return domain.Comment{}, fmt.Errorf("insert comment: unexpected id type %T", res.InsertedID)
	}
	c.ID = id.Hex()
	return c, nil
}

// List returns up to ListLimit comments matching f, oldest first.
func (s *CommentStore) List(ctx context.Context, f domain.CommentFilter) ([]domain.Comment, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "_id", Value: 1}}).
		SetLimit(ListLimit)

	cur, err := s.coll.Find(ctx, buildFilter(f), opts)
	if err != nil {
		return nil, fmt.Errorf("find comments: %w", err)
	}

	var docs []commentDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode comments: %w", err)
	}

	out := make([]domain.Comment, len(docs))
	for i, d := range docs {
		out[i] = domain.Comment{
			ID:      d.ID.Hex(),
			Country: d.Country,
			Region:  d.Region,
			Date:    d.Date,
			Text:    d.Text,
		}
	}
	return out, nil
}

// Ping checks the primary is reachable.
func (s *CommentStore) Ping(ctx context.Context) error {
	if s.client == nil {
		return errors.New("mongo client not initialized")
	}
	return s.client.Ping(ctx, readpref.Primary())
}

// Close disconnects the underlying client.
func (s *CommentStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// buildFilter constrains only the fields that were given.
func buildFilter(f domain.CommentFilter) bson.D {
	filter := bson.D{}
	if f.Country != "" {
		filter = append(filter, bson.E{Key: "country", Value: f.Country})
	}
	if f.Region != "" {
		filter = append(filter, bson.E{Key: "region", Value: f.Region})
	}
	return filter
}
