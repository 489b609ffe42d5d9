package messenger

import "fmt"

// Envelope is the webhook delivery body posted by the Messenger platform.
type Envelope struct {
	Object string  `json:"object"`
	Entry  []Entry `json:"entry"`
}

// Entry is one page-level batch inside a delivery.
type Entry struct {
	ID        string      `json:"id"`
	Time      int64       `json:"time"`
	Messaging []Messaging `json:"messaging"`
}

// Messaging is a single messaging event.
type Messaging struct {
	Sender    Principal `json:"sender"`
	Recipient Principal `json:"recipient"`
	Timestamp int64     `json:"timestamp"`
	Message   *Message  `json:"message,omitempty"`
}

// Principal identifies a participant by page-scoped id.
type Principal struct {
	ID string `json:"id"`
}

// Message is the message payload of a messaging event.
type Message struct {
	MID         string       `json:"mid"`
	Text        string       `json:"text"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Attachment is a non-text payload (image, audio, location, ...).
type Attachment struct {
	Type string `json:"type"`
}

// HasText reports whether the message carries a text body.
func (m *Message) HasText() bool {
	return m != nil && m.Text != ""
}

// HasAttachments reports whether the message carries attachments.
func (m *Message) HasAttachments() bool {
	return m != nil && len(m.Attachments) > 0
}

// FirstMessaging extracts the first messaging event from a delivery addressed
// to the given page. Deliveries for other pages or without messaging events
// are rejected.
func FirstMessaging(env *Envelope, pageID string) (*Messaging, error) {
	if env.Object != "page" {
		return nil, fmt.Errorf("unexpected webhook object %q", env.Object)
	}
	for _, entry := range env.Entry {
		// An empty entry id is unverifiable and treated as another page's.
		if entry.ID != pageID {
			return nil, fmt.Errorf("delivery for unknown page %q", entry.ID)
		}
		if len(entry.Messaging) > 0 {
			return &entry.Messaging[0], nil
		}
	}
	return nil, fmt.Errorf("delivery contains no messaging events")
}
