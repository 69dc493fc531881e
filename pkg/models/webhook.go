package models

// WebhookPayload represents the incoming JSON payload from the Instagram webhook
type WebhookPayload struct {
	Object string  `json:"object"`
	Entry  []Entry `json:"entry"`
}

// Entry groups the events of one professional account
type Entry struct {
	ID        string      `json:"id"` // Account external id
	Time      int64       `json:"time"`
	Changes   []Change    `json:"changes,omitempty"`
	Messaging []Messaging `json:"messaging,omitempty"`
}

// Change carries a comments (or mentions) field update
type Change struct {
	Field string        `json:"field"`
	Value CommentChange `json:"value"`
}

type CommentChange struct {
	ID       string `json:"id"` // Comment id
	Text     string `json:"text"`
	ParentID string `json:"parent_id,omitempty"`
	From     struct {
		ID       string `json:"id"`
		Username string `json:"username"`
	} `json:"from"`
	Media struct {
		ID string `json:"id"`
	} `json:"media"`
}

// Messaging is one direct message event
type Messaging struct {
	Sender struct {
		ID string `json:"id"`
	} `json:"sender"`
	Recipient struct {
		ID string `json:"id"`
	} `json:"recipient"`
	Timestamp int64           `json:"timestamp"`
	Message   *InboundMessage `json:"message,omitempty"`
}

type InboundMessage struct {
	MID     string   `json:"mid"`
	Text    string   `json:"text"`
	IsEcho  bool     `json:"is_echo,omitempty"`
	ReplyTo *ReplyTo `json:"reply_to,omitempty"`
}

// ReplyTo is set when the DM answers a story
type ReplyTo struct {
	MID   string `json:"mid,omitempty"`
	Story *struct {
		ID  string `json:"id"`
		URL string `json:"url,omitempty"`
	} `json:"story,omitempty"`
}

// StoryID returns the answered story id, if any.
func (m *InboundMessage) StoryID() string {
	if m.ReplyTo == nil || m.ReplyTo.Story == nil {
		return ""
	}
	return m.ReplyTo.Story.ID
}
