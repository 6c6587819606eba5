package bus

// ChatEvent represents a message received from a chat surface (Telegram, Discord, etc.)
type ChatEvent struct {
	Surface   string `json:"surface"`             // adapter name ("telegram", "discord")
	ChannelID string `json:"channel_id"`
	UserID    string `json:"user_id"`
	Text      string `json:"text"`
	Timestamp string `json:"timestamp"`           // surface-native message timestamp, unique per channel
	ThreadTS  string `json:"thread_ts,omitempty"` // parent timestamp when this is a threaded reply
}

// Action is a named affordance attached to a rendered message.
// Value carries the opaque pending-item id so a later Interaction
// can be correlated back to the item.
type Action struct {
	ID    string `json:"id"`    // action identifier ("approve", "cancel", ...)
	Label string `json:"label"` // user-visible button text
	Value string `json:"value"` // opaque pending id
}

// Render is an outbound message to be posted (or edited) on a chat surface.
type Render struct {
	Surface   string   `json:"surface"`
	ChannelID string   `json:"channel_id"`
	ThreadTS  string   `json:"thread_ts,omitempty"`  // post into this thread
	ReplaceTS string   `json:"replace_ts,omitempty"` // edit this message instead of posting a new one
	Text      string   `json:"text"`
	Actions   []Action `json:"actions,omitempty"`
}

// Interaction represents a user acting on a rendered affordance.
// CallbackID is the delivery-unique identifier used for duplicate
// callback suppression (surfaces may redeliver on slow acks).
type Interaction struct {
	Surface    string            `json:"surface"`
	ActionID   string            `json:"action_id"`
	Value      string            `json:"value"` // pending id from the Action
	UserID     string            `json:"user_id"`
	ChannelID  string            `json:"channel_id"`
	MessageTS  string            `json:"message_ts"` // message carrying the affordance
	CallbackID string            `json:"callback_id"`
	FormValues map[string]string `json:"form_values,omitempty"` // e.g. replacement text for set_message
}
