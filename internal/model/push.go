package model

// Keys of the platform-delivered user info dictionary.
const (
	UserInfoMessage   = "m"
	UserInfoPublicKey = "k"
	UserInfoSalt      = "s"
	UserInfoSubtitle  = "i"
)

type (
	// PushRecord is the decoded wire unit of a single encrypted push.
	PushRecord struct {
		Ciphertext []byte // includes the trailing GCM tag
		PublicKey  []byte // sender ephemeral public key, uncompressed point
		Salt       []byte
	}

	// Content is what the host hands over to the platform, and also what it
	// received before any decoding happened.
	Content struct {
		Title       string         `json:"title"`
		Subtitle    string         `json:"subtitle,omitempty"`
		Body        string         `json:"body"`
		Badge       int64          `json:"badge"`
		Sound       string         `json:"sound,omitempty"`
		Attachments []Attachment   `json:"attachments,omitempty"`
		Sender      *Sender        `json:"sender,omitempty"`
		Thread      string         `json:"thread,omitempty"`
		UserInfo    map[string]any `json:"user_info,omitempty"`
	}

	// Request is a single platform invocation: the raw user info plus the
	// content the platform would show if nothing was decoded.
	Request struct {
		UserInfo map[string]any `json:"user_info"`
		Content  Content        `json:"content"`
	}
)

// Subtitle returns the free-text hint carried under "i", if any.
func (r Request) Subtitle() string {
	s, _ := r.UserInfo[UserInfoSubtitle].(string)
	return s
}

// Clone copies c deeply enough that mutating the copy's slices and map does
// not touch c.
func (c Content) Clone() Content {
	out := c
	if c.Attachments != nil {
		out.Attachments = append([]Attachment(nil), c.Attachments...)
	}
	if c.Sender != nil {
		s := *c.Sender
		out.Sender = &s
	}
	if c.UserInfo != nil {
		out.UserInfo = make(map[string]any, len(c.UserInfo))
		for k, v := range c.UserInfo {
			out.UserInfo[k] = v
		}
	}
	return out
}
