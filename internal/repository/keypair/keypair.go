package keypair

import (
	"context"
	"errors"

	"push_notify/internal/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

type (
	KeyPairRepo struct {
		collection *mongo.Collection
	}
)

func NewKeyPairRepo(db *mongo.Database) *KeyPairRepo {
	return &KeyPairRepo{
		collection: db.Collection("push_keys"),
	}
}

// GetByName returns nil, nil when no key pair is stored under name.
func (r *KeyPairRepo) GetByName(ctx context.Context, name string) (*model.KeyPairDocument, error) {
	filter := bson.M{
		"name": name,
	}

	var doc model.KeyPairDocument
	err := r.collection.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}

	if err != nil {
		return nil, err
	}

	return &doc, nil
}

func (r *KeyPairRepo) Create(ctx context.Context, doc *model.KeyPairDocument) (primitive.ObjectID, error) {
	res, err := r.collection.InsertOne(ctx, doc)
	if err != nil {
		return primitive.NilObjectID, err
	}

	id := res.InsertedID.(primitive.ObjectID)
	doc.ID = id
	return id, nil
}
