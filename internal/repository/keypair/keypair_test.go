package keypair

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"

	"push_notify/internal/model"
)

func TestGetByName(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("found", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCursorResponse(1, "push_notify.push_keys", mtest.FirstBatch, bson.D{
			{Key: "_id", Value: primitive.NewObjectID()},
			{Key: "name", Value: "default"},
			{Key: "private_key", Value: []byte{1, 2, 3}},
			{Key: "auth_secret", Value: []byte{4, 5, 6}},
		}))

		repo := NewKeyPairRepo(mt.DB)
		doc, err := repo.GetByName(context.Background(), "default")
		require.NoError(t, err)
		require.NotNil(t, doc)
		assert.Equal(t, []byte{1, 2, 3}, doc.PrivateKey)
		assert.Equal(t, []byte{4, 5, 6}, doc.AuthSecret)
	})

	mt.Run("missing", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "push_notify.push_keys", mtest.FirstBatch))

		repo := NewKeyPairRepo(mt.DB)
		doc, err := repo.GetByName(context.Background(), "default")
		require.NoError(t, err)
		assert.Nil(t, doc)
	})
}

func TestCreate(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("insert", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse())

		repo := NewKeyPairRepo(mt.DB)
		doc := &model.KeyPairDocument{Name: "default", PrivateKey: []byte{1}, AuthSecret: []byte{2}}
		id, err := repo.Create(context.Background(), doc)
		require.NoError(t, err)
		assert.Equal(t, id, doc.ID)
	})
}
