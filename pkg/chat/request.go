package chat

import "time"

// Request represents one user message submitted to the engine.
type Request struct {
	// ID is a caller-assigned correlation identifier. It is echoed back on
	// the Response and in relay frames.
	ID        string    `json:"id,omitempty"`
	Timestamp time.Time `json:"timestamp,omitempty"`

	UserID    string `json:"user_id"`
	GuildID   string `json:"guild_id"`
	ChannelID string `json:"channel_id"`

	// Text is the raw message content.
	Text string `json:"text"`

	// ImageRefs lists attachment URLs or platform attachment identifiers.
	// The engine passes them through to backends that accept them.
	ImageRefs []string `json:"image_refs,omitempty"`

	// Category is the requested conversation category. Empty selects the
	// default category.
	Category string `json:"category,omitempty"`

	// MemberRoles lists the sender's platform role identifiers, used by
	// role-based eligibility checks.
	MemberRoles []string `json:"member_roles,omitempty"`
}

// HasImages reports whether the request carries attachment references.
func (r *Request) HasImages() bool {
	return len(r.ImageRefs) > 0
}
