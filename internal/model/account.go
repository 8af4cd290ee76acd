package model

import "go.mongodb.org/mongo-driver/bson/primitive"

type (
	// Account is a locally known account the receiver holds credentials for.
	Account struct {
		ID          primitive.ObjectID `bson:"_id,omitempty" json:"-"`
		Server      string             `bson:"server" json:"server"`
		AccessToken string             `bson:"access_token" json:"-"`
		AccountID   string             `bson:"account_id" json:"account_id"`
		Username    string             `bson:"username" json:"username"`
	}

	RemoteAccount struct {
		ID          string `json:"id"`
		Username    string `json:"username"`
		Acct        string `json:"acct"`
		DisplayName string `json:"display_name"`
		Avatar      string `json:"avatar"`
	}

	// RemoteNotification is the subset of the server notification object the
	// enrichment step needs.
	RemoteNotification struct {
		ID      string        `json:"id"`
		Type    string        `json:"type"`
		Account RemoteAccount `json:"account"`
	}
)

// SafeDisplayName falls back to the username when no display name is set.
func (a RemoteAccount) SafeDisplayName() string {
	if a.DisplayName != "" {
		return a.DisplayName
	}
	if a.Username != "" {
		return a.Username
	}
	return a.Acct
}
