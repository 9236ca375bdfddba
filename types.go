package qaboard

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// ============================================================================
// Questions
// ============================================================================

// Status is the lifecycle state of a question.
type Status string

const (
	StatusEscalated Status = "Escalated"
	StatusPending   Status = "Pending"
	StatusAnswered  Status = "Answered"
)

var statusPriority = map[Status]int{
	StatusEscalated: 0,
	StatusPending:   1,
	StatusAnswered:  2,
}

// Priority returns the position of s in the feed order. Lower sorts first;
// statuses outside the known set sort after every known one.
func (s Status) Priority() int {
	if p, ok := statusPriority[s]; ok {
		return p
	}
	return len(statusPriority)
}

// Valid reports whether s is one of the statuses the server accepts.
func (s Status) Valid() bool {
	_, ok := statusPriority[s]
	return ok
}

// Question is a single entry of the dashboard feed.
type Question struct {
	ID         int     `json:"question_id"`
	Message    string  `json:"message"`
	Status     Status  `json:"status"`
	Timestamp  string  `json:"timestamp"`
	Answer     *string `json:"answer"`
	AnsweredBy *int    `json:"answered_by"`
	AnsweredAt *string `json:"answered_at"`
}

// QuestionPatch is the partial form of a question carried by update events.
// Nil fields were absent (or null) on the wire and leave the target untouched.
type QuestionPatch struct {
	ID         int     `json:"question_id"`
	Message    *string `json:"message,omitempty"`
	Status     *Status `json:"status,omitempty"`
	Timestamp  *string `json:"timestamp,omitempty"`
	Answer     *string `json:"answer,omitempty"`
	AnsweredBy *int    `json:"answered_by,omitempty"`
	AnsweredAt *string `json:"answered_at,omitempty"`
}

// Merge returns q with every non-nil field of p applied, and whether the
// status changed as a result.
func (p QuestionPatch) Merge(q Question) (Question, bool) {
	prev := q.Status
	if p.Message != nil {
		q.Message = *p.Message
	}
	if p.Status != nil {
		q.Status = *p.Status
	}
	if p.Timestamp != nil {
		q.Timestamp = *p.Timestamp
	}
	if p.Answer != nil {
		q.Answer = p.Answer
	}
	if p.AnsweredBy != nil {
		q.AnsweredBy = p.AnsweredBy
	}
	if p.AnsweredAt != nil {
		q.AnsweredAt = p.AnsweredAt
	}
	return q, q.Status != prev
}

// ============================================================================
// Ordering
// ============================================================================

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

func parseTimestamp(s string) (time.Time, bool) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// newerThan reports whether timestamp a is strictly later than b. Unparseable
// values fall back to plain string comparison.
func newerThan(a, b string) bool {
	ta, okA := parseTimestamp(a)
	tb, okB := parseTimestamp(b)
	if okA && okB {
		return ta.After(tb)
	}
	return a > b
}

// SortsBefore reports whether a sorts strictly before b in the feed:
// lower status priority first, then newest timestamp first.
func SortsBefore(a, b Question) bool {
	pa, pb := a.Status.Priority(), b.Status.Priority()
	if pa != pb {
		return pa < pb
	}
	return newerThan(a.Timestamp, b.Timestamp)
}

// SortQuestions sorts qs in feed order. Questions with equal keys keep their
// relative positions.
func SortQuestions(qs []Question) {
	sort.SliceStable(qs, func(i, j int) bool { return SortsBefore(qs[i], qs[j]) })
}

// ============================================================================
// Pagination
// ============================================================================

// Cursor is the opaque continuation token returned by the questions endpoint.
// The server may encode it as a JSON number or string.
type Cursor string

func (c *Cursor) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*c = Cursor(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("cursor must be a string or number: %w", err)
	}
	*c = Cursor(n.String())
	return nil
}

// Page is one slice of the server-ordered question collection.
type Page struct {
	Questions  []Question `json:"questions"`
	NextCursor *Cursor    `json:"next_cursor"`
	HasMore    bool       `json:"has_more"`
}

// ============================================================================
// Push messages
// ============================================================================

// Wire types broadcast by the server on the realtime channel.
const (
	MessageNewQuestion      = "NEW_QUESTION"
	MessageQuestionUpdated  = "QUESTION_UPDATED"
	MessageQuestionAnswered = "QUESTION_ANSWERED"
	MessageQuestionDeleted  = "QUESTION_DELETED"
)

// Message is the {type, data} envelope of every realtime frame.
type Message struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func decodeMessage(frame []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(frame, &msg); err != nil {
		return Message{}, fmt.Errorf("%w: %w", ErrMalformedMessage, err)
	}
	if msg.Type == "" {
		return Message{}, fmt.Errorf("%w: missing type", ErrMalformedMessage)
	}
	return msg, nil
}

// ChangeKind tags a Change.
type ChangeKind int

const (
	ChangeCreated ChangeKind = iota + 1
	ChangeUpdated
	ChangeDeleted
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeCreated:
		return "created"
	case ChangeUpdated:
		return "updated"
	case ChangeDeleted:
		return "deleted"
	}
	return "unknown"
}

// Change is a decoded create, update or delete notification.
// Question is set for ChangeCreated, Patch for ChangeUpdated; ID is always set.
type Change struct {
	Kind     ChangeKind
	ID       int
	Question Question
	Patch    QuestionPatch
}

// ParseChange decodes a realtime message into a Change. Unrecognised types
// return ErrUnknownMessageType.
func ParseChange(msg Message) (Change, error) {
	switch msg.Type {
	case MessageNewQuestion, "Created":
		var q Question
		if err := json.Unmarshal(msg.Data, &q); err != nil {
			return Change{}, fmt.Errorf("%w: %s: %w", ErrMalformedMessage, msg.Type, err)
		}
		return Change{Kind: ChangeCreated, ID: q.ID, Question: q}, nil
	case MessageQuestionUpdated, MessageQuestionAnswered, "Updated":
		var p QuestionPatch
		if err := json.Unmarshal(msg.Data, &p); err != nil {
			return Change{}, fmt.Errorf("%w: %s: %w", ErrMalformedMessage, msg.Type, err)
		}
		return Change{Kind: ChangeUpdated, ID: p.ID, Patch: p}, nil
	case MessageQuestionDeleted, "Deleted":
		var ref struct {
			ID int `json:"question_id"`
		}
		if err := json.Unmarshal(msg.Data, &ref); err != nil {
			return Change{}, fmt.Errorf("%w: %s: %w", ErrMalformedMessage, msg.Type, err)
		}
		return Change{Kind: ChangeDeleted, ID: ref.ID}, nil
	}
	return Change{}, fmt.Errorf("%w: %q", ErrUnknownMessageType, msg.Type)
}
