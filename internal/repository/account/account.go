package account

import (
	"context"
	"errors"

	"push_notify/internal/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

type (
	AccountRepo struct {
		collection *mongo.Collection
	}
)

func NewAccountRepo(db *mongo.Database) *AccountRepo {
	return &AccountRepo{
		collection: db.Collection("accounts"),
	}
}

// FindByAccessToken returns the locally known account holding token, or
// nil, nil when there is none.
func (r *AccountRepo) FindByAccessToken(ctx context.Context, token string) (*model.Account, error) {
	if token == "" {
		return nil, nil
	}

	filter := bson.M{
		"access_token": token,
	}

	var acc model.Account
	err := r.collection.FindOne(ctx, filter).Decode(&acc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}

	if err != nil {
		return nil, err
	}

	return &acc, nil
}

func (r *AccountRepo) Create(ctx context.Context, acc *model.Account) (primitive.ObjectID, error) {
	res, err := r.collection.InsertOne(ctx, acc)
	if err != nil {
		return primitive.NilObjectID, err
	}

	id := res.InsertedID.(primitive.ObjectID)
	acc.ID = id
	return id, nil
}
