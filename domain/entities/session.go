package entities

import (
	"sync"
	"time"
)

// MessageRole represents the role of a transcript line author
type MessageRole string

const (
	MessageRoleUser  MessageRole = "user"
	MessageRoleModel MessageRole = "model"
)

// MessageSource tells how a transcript line was produced
type MessageSource string

const (
	MessageSourceText  MessageSource = "text"
	MessageSourceVoice MessageSource = "voice"
)

// Greeting is the first line of every widget transcript.
const Greeting = "Hi! Welcome to Natasha Mae's Enterprise. I'm Jessica, your booking concierge. I'd love to help you book a VIP Tour!"

// TranscriptEntry is a single visible line of the chat widget
type TranscriptEntry struct {
	Timestamp time.Time     `json:"timestamp"`
	Role      MessageRole   `json:"role"`
	Text      string        `json:"text"`
	Source    MessageSource `json:"source"`
	Fallback  bool          `json:"fallback,omitempty"`
}

// Transcript is the conversation shown inside one chat widget
type Transcript struct {
	mu           sync.RWMutex
	widgetID     string
	createdAt    time.Time
	lastActiveAt time.Time
	entries      []TranscriptEntry
}

// NewTranscript creates a transcript seeded with the concierge greeting
func NewTranscript(widgetID string) *Transcript {
	now := time.Now()
	return &Transcript{
		widgetID:     widgetID,
		createdAt:    now,
		lastActiveAt: now,
		entries: []TranscriptEntry{{
			Timestamp: now,
			Role:      MessageRoleModel,
			Text:      Greeting,
			Source:    MessageSourceText,
		}},
	}
}

// WidgetID returns the owning widget id
func (t *Transcript) WidgetID() string {
	return t.widgetID
}

// Append adds a line and refreshes the activity timestamp
func (t *Transcript) Append(entry TranscriptEntry) TranscriptEntry {
	t.mu.Lock()
	defer t.mu.Unlock()

	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	if entry.Source == "" {
		entry.Source = MessageSourceText
	}
	t.entries = append(t.entries, entry)
	t.lastActiveAt = entry.Timestamp
	return entry
}

// Touch marks the transcript as active without adding a line
func (t *Transcript) Touch() {
	t.mu.Lock()
	t.lastActiveAt = time.Now()
	t.mu.Unlock()
}

// Entries returns a copy of all lines
func (t *Transcript) Entries() []TranscriptEntry {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]TranscriptEntry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Len returns the number of lines
func (t *Transcript) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// IdleFor reports how long the transcript has been inactive
func (t *Transcript) IdleFor(now time.Time) time.Duration {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return now.Sub(t.lastActiveAt)
}
