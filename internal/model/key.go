package model

import "go.mongodb.org/mongo-driver/bson/primitive"

type (
	// KeyPairDocument is the stored form of the receiver key material.
	// Fields hold raw bytes; the private scalar never leaves the key store
	// except through keys.Material.
	KeyPairDocument struct {
		ID         primitive.ObjectID `bson:"_id,omitempty"`
		Name       string             `bson:"name"`
		PrivateKey []byte             `bson:"private_key"`
		AuthSecret []byte             `bson:"auth_secret"`
	}
)
