package cardapi

import (
	"context"
	"encoding/json"
	"fmt"
)

// batchPath is the multi-operation write endpoint.
const batchPath = "/batch"

// --- Batch mode enum ---

// Mode selects the failure-isolation semantics of a batch submission.
type Mode string

const (
	// ModeTransactional: all operations succeed or none take effect.
	ModeTransactional Mode = "transactional"

	// ModePerItem: each operation succeeds or fails independently.
	ModePerItem Mode = "per_item"
)

// validModes is the set of accepted batch modes.
var validModes = map[Mode]bool{
	ModeTransactional: true,
	ModePerItem:       true,
}

// Validate returns a configuration error for unrecognized modes. This is
// a caller/programmer error and is raised before any network activity.
func (m Mode) Validate() error {
	if !validModes[m] {
		return configError("invalid batch mode %q: must be one of: transactional, per_item", string(m))
	}
	return nil
}

// --- Operation descriptors ---

// Operation is one mutating action within a batch: an action verb, the
// target card name, and an opaque payload.
type Operation struct {
	Action  string         `json:"action"`
	Target  string         `json:"target"`
	Payload map[string]any `json:"payload,omitempty"`
}

// ChildOperation builds a create operation for a child card under parent,
// using the service's "+"-joined compound naming. Pure data construction,
// no I/O — useful for assembling an operations list before one SubmitBatch
// call.
func ChildOperation(parent, child string, payload map[string]any) Operation {
	return Operation{
		Action:  "create",
		Target:  parent + "+" + child,
		Payload: payload,
	}
}

// --- Results ---

// OperationResult is the outcome of one operation within a batch. Success
// carries the service payload; failure carries the service message.
type OperationResult struct {
	Success bool
	Payload json.RawMessage
	Message string
}

// BatchResult is the interpreted outcome of a batch submission. Results
// is ordered: entry N corresponds to input operation N.
type BatchResult struct {
	Mode      Mode
	Results   []OperationResult
	Succeeded int
	Failed    int

	// OverallFailed is the service's batch-level failure indicator. In
	// transactional mode it means NO operation took effect, even ones
	// whose entries superficially look successful.
	OverallFailed bool
}

// Applied reports whether the batch's effects can be trusted. In
// transactional mode an overall failure means nothing was applied; in
// per-item mode effects are per-entry and Applied is true whenever at
// least one entry succeeded.
func (r *BatchResult) Applied() bool {
	if r.Mode == ModeTransactional {
		return !r.OverallFailed
	}
	return r.Succeeded > 0
}

// batchRequest is the wire form of a batch submission.
type batchRequest struct {
	Mode       Mode        `json:"mode"`
	Operations []Operation `json:"operations"`
}

// batchResponse is the wire form of the service's reply.
type batchResponse struct {
	Results []struct {
		Status  string          `json:"status"`
		Payload json.RawMessage `json:"payload,omitempty"`
		Message string          `json:"message,omitempty"`
	} `json:"results"`
	Failed bool `json:"failed"`
}

// SubmitBatch sends the operation list as a single request and interprets
// the response under the given mode. Retries ride on the executor's
// policy; that is only safe because the service treats a whole batch
// submission idempotently per its own contract.
func (c *Client) SubmitBatch(ctx context.Context, ops []Operation, mode Mode) (*BatchResult, error) {
	if err := mode.Validate(); err != nil {
		return nil, err
	}
	if len(ops) == 0 {
		return nil, configError("batch requires at least one operation")
	}

	raw, err := c.Do(ctx, "POST", batchPath, nil, batchRequest{Mode: mode, Operations: ops})
	if err != nil {
		return nil, err
	}

	var resp batchResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, parseError("decode batch response", err)
	}

	// The service contracts one result entry per input operation, in
	// order. A length mismatch means we cannot attribute outcomes.
	if len(resp.Results) != len(ops) {
		return nil, parseError(fmt.Sprintf(
			"batch response has %d results for %d operations", len(resp.Results), len(ops)), nil)
	}

	result := &BatchResult{
		Mode:          mode,
		Results:       make([]OperationResult, len(resp.Results)),
		OverallFailed: resp.Failed,
	}
	for i, entry := range resp.Results {
		ok := entry.Status == "success"
		result.Results[i] = OperationResult{
			Success: ok,
			Payload: entry.Payload,
			Message: entry.Message,
		}
		if ok {
			result.Succeeded++
		} else {
			result.Failed++
			// A failure entry implies batch failure even when the
			// service omits the overall flag.
			if mode == ModeTransactional {
				result.OverallFailed = true
			}
		}
	}
	return result, nil
}
