// Package notify fans lifecycle events out to live subscribers and, when
// configured, to a webhook delivered by the background worker pool.
package notify

import (
	"strings"
	"time"
)

type Kind string

const (
	KindJobCreated    Kind = "job.created"
	KindApplied       Kind = "application.created"
	KindSelected      Kind = "application.selected"
	KindNotSelected   Kind = "application.rejected"
	KindWorkSubmitted Kind = "work.submitted"
	KindWorkApproved  Kind = "work.approved"
	KindWorkRejected  Kind = "work.rejected"
	KindStoreChanged  Kind = "store.changed"
)

type Event struct {
	ID         string    `json:"id"`
	Kind       Kind      `json:"kind"`
	JobID      int64     `json:"job_id,omitempty"`
	Client     string    `json:"client,omitempty"`
	Freelancer string    `json:"freelancer,omitempty"`
	Actor      string    `json:"actor,omitempty"`
	At         time.Time `json:"at"`
	Message    string    `json:"message,omitempty"`
}

// Concerns reports whether address is a party to the event. Store-wide events
// concern everyone.
func (e Event) Concerns(address string) bool {
	if e.Kind == KindStoreChanged {
		return true
	}
	for _, party := range []string{e.Actor, e.Client, e.Freelancer} {
		if party != "" && strings.EqualFold(party, address) {
			return true
		}
	}
	return false
}
