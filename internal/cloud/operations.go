package cloud

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

// Operation types accepted by POST /v1/locks/{id}/operations.
const (
	ActionLock   = "lock"
	ActionUnlock = "unlock"
)

// Operation statuses. Anything that is neither pending nor failed is
// treated as completed.
const (
	StatusPending   = "pending"
	StatusFailed    = "failed"
	StatusCompleted = "completed"
)

// Operation is the server's record of a lock/unlock command. Polling
// returns a new value; an Operation is never mutated in place.
type Operation struct {
	ID     string
	LockID string
	Type   string
	Status string
	// Reason is set only when Status is failed.
	Reason string
	// Self is the resource URL to poll, if the server provided one.
	Self string
}

// Pending reports whether the server has not yet settled the operation.
func (o Operation) Pending() bool {
	return o.Status == StatusPending
}

// Failed reports whether the server rejected or aborted the operation.
func (o Operation) Failed() bool {
	return o.Status == StatusFailed
}

type operationWire struct {
	ID     string `json:"id"`
	LockID string `json:"lockId"`
	Type   string `json:"type"`
	Status string `json:"status"`
	Reason string `json:"reason"`
	Self   string `json:"self"`
	Links  *struct {
		Self string `json:"self"`
	} `json:"links"`
}

func decodeOperation(resp *Response, fallback Operation) (Operation, error) {
	var w operationWire
	if err := resp.Decode(&w); err != nil {
		return Operation{}, err
	}

	op := Operation{
		ID:     w.ID,
		LockID: w.LockID,
		Type:   w.Type,
		Status: w.Status,
		Reason: w.Reason,
		Self:   w.Self,
	}
	if op.Self == "" && w.Links != nil {
		op.Self = w.Links.Self
	}

	// Fields the server omits keep what the caller already knew.
	if op.ID == "" {
		op.ID = fallback.ID
	}
	if op.LockID == "" {
		op.LockID = fallback.LockID
	}
	if op.Type == "" {
		op.Type = fallback.Type
	}
	if op.Self == "" {
		op.Self = fallback.Self
	}
	if op.Status == "" {
		op.Status = StatusPending
	}
	if op.ID == "" {
		return Operation{}, fmt.Errorf("%w: operation without id", ErrMalformedResponse)
	}

	return op, nil
}

// CreateOperation issues a lock or unlock command.
//
// Parameters:
//   - ctx: Context for cancellation and deadline
//   - apiKey: Issued Glue Home API key
//   - lockID: Target lock
//   - action: ActionLock or ActionUnlock
//
// Returns:
//   - Operation: The initial server record, usually pending
//   - error: Transport errors unchanged, or ErrMalformedResponse
func (c *Client) CreateOperation(ctx context.Context, apiKey, lockID, action string) (Operation, error) {
	path := "/v1/locks/" + url.PathEscape(lockID) + "/operations"
	resp, err := c.Do(ctx, http.MethodPost, path, APIKeyAuth(apiKey), map[string]string{"type": action})
	if err != nil {
		return Operation{}, err
	}
	return decodeOperation(resp, Operation{LockID: lockID, Type: action})
}

// PollOperation fetches the current state of op. It follows op.Self when
// set and otherwise addresses the operation under its lock.
func (c *Client) PollOperation(ctx context.Context, apiKey string, op Operation) (Operation, error) {
	path := op.Self
	if path == "" {
		path = "/v1/locks/" + url.PathEscape(op.LockID) + "/operations/" + url.PathEscape(op.ID)
	}
	resp, err := c.Do(ctx, http.MethodGet, path, APIKeyAuth(apiKey), nil)
	if err != nil {
		return Operation{}, err
	}
	return decodeOperation(resp, op)
}
