// Package transcript holds the conversation history: user turns, model
// replies and system notices, in append order.
package transcript

import (
	"sync"

	"github.com/google/uuid"
)

// Sender identifies who produced a message.
type Sender string

const (
	SenderUser   Sender = "user"
	SenderAI     Sender = "ai"
	SenderSystem Sender = "system"
)

// Source is a web grounding citation attached to a model reply.
type Source struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// Image is an inline image attached to a message.
type Image struct {
	Data []byte `json:"data"`
	MIME string `json:"mime"`
	Name string `json:"name"`
}

// Message is one entry in the conversation.
type Message struct {
	ID      string   `json:"id"`
	Sender  Sender   `json:"sender"`
	Text    string   `json:"text"`
	Sources []Source `json:"sources,omitempty"`
	Image   *Image   `json:"image,omitempty"`
}

// Transcript is the ordered message list. Ordering is append-only except
// for explicit edit and delete.
type Transcript struct {
	mu       sync.RWMutex
	messages []Message
}

// New returns an empty transcript.
func New() *Transcript {
	return &Transcript{}
}

// Append adds a message and returns its generated ID.
func (t *Transcript) Append(sender Sender, text string) string {
	return t.AppendMessage(Message{Sender: sender, Text: text})
}

// AppendMessage adds a fully-formed message, assigning an ID if missing.
func (t *Transcript) AppendMessage(msg Message) string {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	t.mu.Lock()
	t.messages = append(t.messages, msg)
	t.mu.Unlock()
	return msg.ID
}

// EditText replaces the display text of the message with the given ID.
// Returns false if no such message exists.
func (t *Transcript) EditText(id, text string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.messages {
		if t.messages[i].ID == id {
			t.messages[i].Text = text
			return true
		}
	}
	return false
}

// Delete removes the message with the given ID.
func (t *Transcript) Delete(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.messages {
		if t.messages[i].ID == id {
			t.messages = append(t.messages[:i], t.messages[i+1:]...)
			return true
		}
	}
	return false
}

// Reset discards the history and seeds a single welcome message.
func (t *Transcript) Reset(welcome string) {
	t.mu.Lock()
	t.messages = []Message{{
		ID:     uuid.NewString(),
		Sender: SenderAI,
		Text:   welcome,
	}}
	t.mu.Unlock()
}

// Messages returns a copy of the current history.
func (t *Transcript) Messages() []Message {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Message, len(t.messages))
	copy(out, t.messages)
	return out
}

// Len returns the number of messages.
func (t *Transcript) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.messages)
}

// Last returns the most recent message, if any.
func (t *Transcript) Last() (Message, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if len(t.messages) == 0 {
		return Message{}, false
	}
	return t.messages[len(t.messages)-1], true
}
