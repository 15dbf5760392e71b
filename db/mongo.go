package db

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"justintune/models"
	"justintune/utils"
)

type MongoClient struct {
	client *mongo.Client
	db     *mongo.Database
}

type mongoPosting struct {
	PieceID   uint32   `bson:"pieceID"`
	Positions []uint32 `bson:"positions"`
}

type mongoFingerprint struct {
	Hash     int64          `bson:"_id"`
	Postings []mongoPosting `bson:"postings"`
}

type mongoPiece struct {
	ID        uint32 `bson:"_id"`
	Name      string `bson:"name"`
	Composer  string `bson:"composer"`
	Track     string `bson:"track"`
	ScorePath string `bson:"scorePath"`
}

func NewMongoClient(uri string) (*MongoClient, error) {
	client, err := mongo.Connect(context.Background(), options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("error connecting to MongoDB: %s", err)
	}

	dbName := utils.GetEnv("MONGO_DB_NAME", "justintune")
	return &MongoClient{client: client, db: client.Database(dbName)}, nil
}

func (m *MongoClient) Close() error {
	return m.client.Disconnect(context.Background())
}

func (m *MongoClient) RegisterPiece(name, composer, track, scorePath string) (uint32, error) {
	ctx := context.Background()

	count, err := m.db.Collection("pieces").CountDocuments(ctx, bson.M{"name": name})
	if err != nil {
		return 0, fmt.Errorf("error checking piece existence: %s", err)
	}
	if count > 0 {
		return 0, fmt.Errorf("piece %q already registered", name)
	}

	pieceID := utils.GenerateUniqueID()
	_, err = m.db.Collection("pieces").InsertOne(ctx, mongoPiece{
		ID:        pieceID,
		Name:      name,
		Composer:  composer,
		Track:     track,
		ScorePath: scorePath,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to register piece: %s", err)
	}
	return pieceID, nil
}

func (m *MongoClient) GetPieceByName(name string) (models.Piece, bool, error) {
	var doc mongoPiece
	err := m.db.Collection("pieces").FindOne(context.Background(), bson.M{"name": name}).Decode(&doc)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return models.Piece{}, false, nil
		}
		return models.Piece{}, false, fmt.Errorf("failed to retrieve piece: %s", err)
	}
	return pieceFromDoc(doc), true, nil
}

func (m *MongoClient) AllPieces() ([]models.Piece, error) {
	ctx := context.Background()
	cursor, err := m.db.Collection("pieces").Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("error querying pieces: %s", err)
	}
	defer cursor.Close(ctx)

	var pieces []models.Piece
	for cursor.Next(ctx) {
		var doc mongoPiece
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("error decoding piece: %s", err)
		}
		pieces = append(pieces, pieceFromDoc(doc))
	}
	return pieces, cursor.Err()
}

func (m *MongoClient) TotalPieces() (int, error) {
	count, err := m.db.Collection("pieces").CountDocuments(context.Background(), bson.M{})
	if err != nil {
		return 0, fmt.Errorf("error counting pieces: %s", err)
	}
	return int(count), nil
}

func (m *MongoClient) StoreFingerprints(entries map[uint64][]models.Posting) error {
	ctx := context.Background()
	collection := m.db.Collection("fingerprints")

	for hash, postings := range entries {
		doc := mongoFingerprint{Hash: int64(hash), Postings: make([]mongoPosting, 0, len(postings))}
		for _, p := range postings {
			doc.Postings = append(doc.Postings, mongoPosting{PieceID: p.PieceID, Positions: p.Positions})
		}

		_, err := collection.ReplaceOne(ctx,
			bson.M{"_id": doc.Hash},
			doc,
			options.Replace().SetUpsert(true),
		)
		if err != nil {
			return fmt.Errorf("error storing fingerprint: %s", err)
		}
	}
	return nil
}

func (m *MongoClient) LoadFingerprints() (map[uint64][]models.Posting, error) {
	ctx := context.Background()
	cursor, err := m.db.Collection("fingerprints").Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("error querying fingerprints: %s", err)
	}
	defer cursor.Close(ctx)

	entries := make(map[uint64][]models.Posting)
	for cursor.Next(ctx) {
		var doc mongoFingerprint
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("error decoding fingerprint: %s", err)
		}
		postings := make([]models.Posting, 0, len(doc.Postings))
		for _, p := range doc.Postings {
			postings = append(postings, models.Posting{PieceID: p.PieceID, Positions: p.Positions})
		}
		entries[uint64(doc.Hash)] = postings
	}
	return entries, cursor.Err()
}

func (m *MongoClient) DeleteAll() error {
	ctx := context.Background()
	if err := m.db.Collection("fingerprints").Drop(ctx); err != nil {
		return fmt.Errorf("error dropping fingerprints: %v", err)
	}
	if err := m.db.Collection("pieces").Drop(ctx); err != nil {
		return fmt.Errorf("error dropping pieces: %v", err)
	}
	return nil
}

func pieceFromDoc(doc mongoPiece) models.Piece {
	return models.Piece{
		ID:        doc.ID,
		Name:      doc.Name,
		Composer:  doc.Composer,
		Track:     doc.Track,
		ScorePath: doc.ScorePath,
	}
}
