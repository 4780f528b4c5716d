package client

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/hhemr/hhemr/pkg/validation"
)

type ReviewState int

const (
	ReviewIdle ReviewState = iota
	ReviewActionPending
	ReviewConfirming
	ReviewSubmitting
)

func (s ReviewState) String() string {
	switch s {
	case ReviewIdle:
		return "idle"
	case ReviewActionPending:
		return "actionPending"
	case ReviewConfirming:
		return "confirming"
	case ReviewSubmitting:
		return "submitting"
	}
	return "unknown"
}

var ErrReviewState = errors.New("review action not allowed in current state")

// QAUpdater records review decisions. *Client implements it.
type QAUpdater interface {
	UpdateQAStatus(ctx context.Context, id uuid.UUID, status string, comment *string) error
}

// Review drives the approve/reject flow for one assessment:
// idle, actionPending, confirming, submitting, then back to idle. The
// decision is only sent after Confirm.
type Review struct {
	client       QAUpdater
	assessmentID uuid.UUID

	// Prompt runs when a decision is chosen, before the review enters
	// confirming. It is where a caller opens its confirmation dialog.
	Prompt func(status string)
	// Refresh runs after a decision is accepted.
	Refresh func(ctx context.Context) error

	mu      sync.Mutex
	state   ReviewState
	pending string
}

func NewReview(client QAUpdater, assessmentID uuid.UUID) *Review {
	return &Review{client: client, assessmentID: assessmentID}
}

func (r *Review) State() ReviewState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Pending returns the chosen decision, or "" when none is pending.
func (r *Review) Pending() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pending
}

// Choose selects APPROVED or REJECTED and asks for confirmation.
func (r *Review) Choose(status string) error {
	if err := validation.Var("status", status, "oneof=APPROVED REJECTED"); err != nil {
		return err
	}
	r.mu.Lock()
	if r.state != ReviewIdle {
		r.mu.Unlock()
		return ErrReviewState
	}
	r.state = ReviewActionPending
	r.pending = status
	r.mu.Unlock()

	if r.Prompt != nil {
		r.Prompt(status)
	}

	r.mu.Lock()
	if r.state == ReviewActionPending {
		r.state = ReviewConfirming
	}
	r.mu.Unlock()
	return nil
}

// Confirm sends the pending decision with an optional comment. On failure
// the review returns to confirming so the caller can retry or cancel.
func (r *Review) Confirm(ctx context.Context, comment string) error {
	r.mu.Lock()
	if r.state != ReviewConfirming {
		r.mu.Unlock()
		return ErrReviewState
	}
	r.state = ReviewSubmitting
	status := r.pending
	r.mu.Unlock()

	var c *string
	if comment != "" {
		c = &comment
	}
	if err := r.client.UpdateQAStatus(ctx, r.assessmentID, status, c); err != nil {
		r.mu.Lock()
		r.state = ReviewConfirming
		r.mu.Unlock()
		return err
	}

	r.mu.Lock()
	r.state = ReviewIdle
	r.pending = ""
	r.mu.Unlock()

	if r.Refresh != nil {
		return r.Refresh(ctx)
	}
	return nil
}

// Cancel abandons a pending decision. It fails while a decision is being
// submitted.
func (r *Review) Cancel() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch r.state {
	case ReviewSubmitting:
		return ErrReviewState
	case ReviewActionPending, ReviewConfirming:
		r.state = ReviewIdle
		r.pending = ""
	}
	return nil
}
