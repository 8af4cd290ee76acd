package model

import "fmt"

type (
	// DecodedNotification is built only from authenticated plaintext.
	DecodedNotification struct {
		Title           string
		Body            string
		Icon            string
		NotificationID  int64
		AccessToken     string
		Type            string
		PreferredLocale string
	}

	Attachment struct {
		Identifier string `json:"identifier"`
		Path       string `json:"path"`
	}

	// Sender is the conversation identity shown on a rich notification.
	Sender struct {
		ID          string `json:"id"`
		DisplayName string `json:"display_name"`
		AvatarPath  string `json:"avatar_path,omitempty"`
	}

	EnrichedNotification struct {
		Title      string
		Subtitle   string
		Body       string
		Badge      int64
		Attachment *Attachment
		Sender     *Sender
		// ConversationID groups rich notifications of the same sender.
		ConversationID string
	}
)

// String never includes the access token.
func (n DecodedNotification) String() string {
	return fmt.Sprintf("DecodedNotification{id=%d type=%q title=%q icon=%q}", n.NotificationID, n.Type, n.Title, n.Icon)
}

// Rich reports whether remote resolution produced a sender identity.
func (n *EnrichedNotification) Rich() bool {
	return n.Sender != nil
}

// Apply writes n onto a copy of base, the way the platform content is
// mutated in place by the extension.
func (n *EnrichedNotification) Apply(base Content, sound string) Content {
	out := base.Clone()
	out.Title = n.Title
	out.Subtitle = n.Subtitle
	out.Body = n.Body
	out.Badge = n.Badge
	out.Sound = sound
	if n.Attachment != nil {
		out.Attachments = []Attachment{*n.Attachment}
	}
	if n.Sender != nil {
		s := *n.Sender
		out.Sender = &s
		out.Thread = n.ConversationID
	}
	return out
}
