package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/sweetpotato0/lexia/contestacion"
	lexiaerrors "github.com/sweetpotato0/lexia/errors"
)

// MongoStore persists sessions in MongoDB, using a conditional update on the
// version field for optimistic concurrency.
type MongoStore struct {
	client     *mongo.Client
	collection *mongo.Collection
}

// MongoConfig holds MongoDB connection configuration.
type MongoConfig struct {
	URI        string
	Database   string
	Collection string
}

// DefaultMongoConfig returns the default connection settings.
func DefaultMongoConfig() *MongoConfig {
	return &MongoConfig{
		URI:        "mongodb://localhost:27017",
		Database:   "lexia",
		Collection: "contestacion_sessions",
	}
}

// mongoSession is the persisted document shape.
type mongoSession struct {
	ID          string                    `bson:"_id"`
	CallerID    string                    `bson:"caller_id"`
	CaseID      string                    `bson:"case_id,omitempty"`
	RawText     string                    `bson:"raw_text,omitempty"`
	DocumentRef string                    `bson:"document_ref,omitempty"`
	State       contestacion.SessionState `bson:"state"`
	CurrentStep string                    `bson:"current_step"`
	Version     int64                     `bson:"version"`
	CreatedAt   time.Time                 `bson:"created_at"`
	UpdatedAt   time.Time                 `bson:"updated_at"`
}

// NewMongoStore connects to MongoDB and prepares the session collection.
func NewMongoStore(config *MongoConfig) (*MongoStore, error) {
	if config == nil {
		config = DefaultMongoConfig()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(config.URI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	store := &MongoStore{
		client:     client,
		collection: client.Database(config.Database).Collection(config.Collection),
	}
	if err := store.createIndexes(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to create indexes: %w", err)
	}
	return store, nil
}

func (s *MongoStore) createIndexes(ctx context.Context) error {
	indexModel := mongo.IndexModel{
		Keys: bson.D{{Key: "caller_id", Value: 1}, {Key: "created_at", Value: -1}},
	}
	_, err := s.collection.Indexes().CreateOne(ctx, indexModel)
	return err
}

// Insert stores a new session document.
func (s *MongoStore) Insert(ctx context.Context, sess *contestacion.Session) error {
	_, err := s.collection.InsertOne(ctx, toDoc(sess))
	if mongo.IsDuplicateKeyError(err) {
		return lexiaerrors.ErrAlreadyExists
	}
	return err
}

// Get loads a session by id.
func (s *MongoStore) Get(ctx context.Context, id string) (*contestacion.Session, error) {
	var doc mongoSession
	err := s.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, lexiaerrors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return fromDoc(&doc), nil
}

// Update writes the session back only if the stored version still matches,
// bumping the version atomically in the same write.
func (s *MongoStore) Update(ctx context.Context, sess *contestacion.Session) error {
	filter := bson.M{"_id": sess.ID, "version": sess.Version}
	update := bson.M{"$set": bson.M{
		"state":        sess.State,
		"current_step": string(sess.CurrentStep),
		"updated_at":   sess.UpdatedAt,
		"version":      sess.Version + 1,
	}}

	res, err := s.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		// Distinguish a lost race from a missing session.
		count, countErr := s.collection.CountDocuments(ctx, bson.M{"_id": sess.ID})
		if countErr != nil {
			return countErr
		}
		if count == 0 {
			return lexiaerrors.ErrNotFound
		}
		return contestacion.ErrVersionConflict
	}

	sess.Version++
	return nil
}

// Close disconnects the underlying client.
func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func toDoc(sess *contestacion.Session) *mongoSession {
	return &mongoSession{
		ID:          sess.ID,
		CallerID:    sess.CallerID,
		CaseID:      sess.CaseID,
		RawText:     sess.RawText,
		DocumentRef: sess.DocumentRef,
		State:       sess.State,
		CurrentStep: string(sess.CurrentStep),
		Version:     sess.Version,
		CreatedAt:   sess.CreatedAt,
		UpdatedAt:   sess.UpdatedAt,
	}
}

func fromDoc(doc *mongoSession) *contestacion.Session {
	return &contestacion.Session{
		ID:          doc.ID,
		CallerID:    doc.CallerID,
		CaseID:      doc.CaseID,
		RawText:     doc.RawText,
		DocumentRef: doc.DocumentRef,
		State:       doc.State,
		CurrentStep: contestacion.Step(doc.CurrentStep),
		Version:     doc.Version,
		CreatedAt:   doc.CreatedAt,
		UpdatedAt:   doc.UpdatedAt,
	}
}
