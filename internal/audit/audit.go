// Package audit defines the mutation trail: the API publishes one event per
// account or session mutation, and the worker appends them to a per-day
// document in the data repository.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/successcugo/ULAS/internal/errs"
	"github.com/successcugo/ULAS/internal/queue"
)

// MessageType tags audit events on the queue.
const MessageType = "audit"

// WAT is the campus timezone (UTC+1).
var WAT = time.FixedZone("WAT", 3600)

// Event is one recorded mutation.
type Event struct {
	ID         string `json:"id"`
	Actor      string `json:"actor"`
	Action     string `json:"action"`
	School     string `json:"school,omitempty"`
	Department string `json:"department,omitempty"`
	Level      string `json:"level,omitempty"`
	CourseCode string `json:"course_code,omitempty"`
	Detail     string `json:"detail,omitempty"`
	At         string `json:"at"`
}

// NewEvent stamps an event with a fresh ID and the current time.
func NewEvent(actor, action string) Event {
	return Event{
		ID:     uuid.NewString(),
		Actor:  actor,
		Action: action,
		At:     time.Now().In(WAT).Format("2006-01-02 15:04:05"),
	}
}

// Publish enqueues the event. Failures are the caller's to log; the
// triggering operation never fails because of the audit trail.
func Publish(ctx context.Context, q queue.Queue, e Event) error {
	body, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return q.Publish(ctx, queue.Message{Type: MessageType, Body: body})
}

// DocStore is the slice of the document store the log writer needs.
type DocStore interface {
	ReadJSON(ctx context.Context, path string, v any) (string, error)
	WriteJSON(ctx context.Context, path string, doc any, message, expectedRev string) (string, error)
}

// Log appends events to audit/{date}.json. The worker is the only writer of
// these documents, so the read-modify-write here does not race in practice.
type Log struct {
	store DocStore
}

func NewLog(store DocStore) *Log {
	return &Log{store: store}
}

// Append adds e to the document for its day.
func (l *Log) Append(ctx context.Context, e Event) error {
	day := e.At
	if len(day) >= 10 {
		day = day[:10]
	} else {
		day = time.Now().In(WAT).Format("2006-01-02")
	}
	path := fmt.Sprintf("audit/%s.json", day)

	var events []Event
	rev, err := l.store.ReadJSON(ctx, path, &events)
	if err != nil && !errors.Is(err, errs.ErrNotFound) {
		return err
	}
	events = append(events, e)
	_, err = l.store.WriteJSON(ctx, path, events, fmt.Sprintf("Audit: %s", day), rev)
	return err
}
