package cardapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"
)

func TestMode_Validate(t *testing.T) {
	tests := []struct {
		mode Mode
		ok   bool
	}{
		{ModeTransactional, true},
		{ModePerItem, true},
		{Mode("all_or_nothing"), false},
		{Mode(""), false},
	}

	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			err := tt.mode.Validate()
			if tt.ok && err != nil {
				t.Errorf("Validate() = %v", err)
			}
			if !tt.ok && KindOf(err) != KindConfiguration {
				t.Errorf("kind = %q, want configuration", KindOf(err))
			}
		})
	}
}

func TestSubmitBatch_InvalidModeSkipsNetwork(t *testing.T) {
	doer := &scriptedDoer{handler: func(_ int, _ *http.Request) (*http.Response, error) {
		t.Fatal("network call for an invalid mode")
		return nil, nil
	}}
	c := newTestClient(t, doer, nil)

	_, err := c.SubmitBatch(context.Background(),
		[]Operation{{Action: "create", Target: "Home"}}, Mode("bogus"))

	if KindOf(err) != KindConfiguration {
		t.Errorf("kind = %q, want configuration", KindOf(err))
	}
	if len(doer.requests) != 0 {
		t.Errorf("requests = %d, want 0", len(doer.requests))
	}
}

func TestSubmitBatch_EmptyOperations(t *testing.T) {
	c := newTestClient(t, &scriptedDoer{}, nil)
	_, err := c.SubmitBatch(context.Background(), nil, ModePerItem)
	if KindOf(err) != KindConfiguration {
		t.Errorf("kind = %q, want configuration", KindOf(err))
	}
}

func TestSubmitBatch_PerItemIndependence(t *testing.T) {
	doer := &scriptedDoer{handler: func(_ int, _ *http.Request) (*http.Response, error) {
		return jsonResponse(200, `{
			"results": [
				{"status":"success","payload":{"name":"Home"}},
				{"status":"error","message":"name is taken"}
			],
			"failed": false
		}`), nil
	}}
	c := newTestClient(t, doer, nil)

	ops := []Operation{
		{Action: "create", Target: "Home"},
		{Action: "create", Target: "About"},
	}
	res, err := c.SubmitBatch(context.Background(), ops, ModePerItem)
	if err != nil {
		t.Fatalf("SubmitBatch: %v", err)
	}

	if res.Succeeded != 1 || res.Failed != 1 {
		t.Errorf("succeeded/failed = %d/%d, want 1/1", res.Succeeded, res.Failed)
	}
	if !res.Results[0].Success || res.Results[1].Success {
		t.Error("result order does not match input operation order")
	}
	if res.Results[1].Message != "name is taken" {
		t.Errorf("failure message = %q", res.Results[1].Message)
	}
	if !res.Applied() {
		t.Error("per-item batch with one success reported not applied")
	}
}

func TestSubmitBatch_TransactionalFailureMeansNothingApplied(t *testing.T) {
	// The service reports an overall failure even though individual
	// entries look successful; in transactional mode none took effect.
	doer := &scriptedDoer{handler: func(_ int, _ *http.Request) (*http.Response, error) {
		return jsonResponse(200, `{
			"results": [
				{"status":"success","payload":{"name":"Home"}},
				{"status":"success","payload":{"name":"About"}}
			],
			"failed": true
		}`), nil
	}}
	c := newTestClient(t, doer, nil)

	ops := []Operation{
		{Action: "create", Target: "Home"},
		{Action: "create", Target: "About"},
	}
	res, err := c.SubmitBatch(context.Background(), ops, ModeTransactional)
	if err != nil {
		t.Fatalf("SubmitBatch: %v", err)
	}

	if !res.OverallFailed {
		t.Error("overall failure flag lost")
	}
	if res.Applied() {
		t.Error("failed transactional batch reported applied")
	}
}

func TestSubmitBatch_TransactionalEntryFailureImpliesOverall(t *testing.T) {
	doer := &scriptedDoer{handler: func(_ int, _ *http.Request) (*http.Response, error) {
		return jsonResponse(200, `{
			"results": [
				{"status":"success"},
				{"status":"error","message":"invalid type"}
			],
			"failed": false
		}`), nil
	}}
	c := newTestClient(t, doer, nil)

	ops := []Operation{
		{Action: "create", Target: "A"},
		{Action: "create", Target: "B"},
	}
	res, err := c.SubmitBatch(context.Background(), ops, ModeTransactional)
	if err != nil {
		t.Fatalf("SubmitBatch: %v", err)
	}
	if !res.OverallFailed || res.Applied() {
		t.Error("entry failure in transactional mode must mean nothing applied")
	}
}

func TestSubmitBatch_ResultCountMismatch(t *testing.T) {
	doer := &scriptedDoer{handler: func(_ int, _ *http.Request) (*http.Response, error) {
		return jsonResponse(200, `{"results":[{"status":"success"}],"failed":false}`), nil
	}}
	c := newTestClient(t, doer, nil)

	ops := []Operation{
		{Action: "create", Target: "A"},
		{Action: "create", Target: "B"},
	}
	_, err := c.SubmitBatch(context.Background(), ops, ModePerItem)
	if KindOf(err) != KindParse {
		t.Errorf("kind = %q, want parse (err: %v)", KindOf(err), err)
	}
}

func TestSubmitBatch_RequestShape(t *testing.T) {
	doer := &scriptedDoer{handler: func(_ int, req *http.Request) (*http.Response, error) {
		if req.Method != http.MethodPost || req.URL.Path != "/api/batch" {
			t.Errorf("request = %s %s", req.Method, req.URL.Path)
		}
		body, _ := io.ReadAll(req.Body)
		var sent batchRequest
		if err := json.Unmarshal(body, &sent); err != nil {
			t.Fatalf("request body: %v", err)
		}
		if sent.Mode != ModeTransactional {
			t.Errorf("mode = %q", sent.Mode)
		}
		if len(sent.Operations) != 1 || sent.Operations[0].Target != "Home+Todo" {
			t.Errorf("operations = %+v", sent.Operations)
		}
		return jsonResponse(200, `{"results":[{"status":"success"}],"failed":false}`), nil
	}}
	c := newTestClient(t, doer, nil)

	ops := []Operation{ChildOperation("Home", "Todo", map[string]any{"content": "x"})}
	if _, err := c.SubmitBatch(context.Background(), ops, ModeTransactional); err != nil {
		t.Fatalf("SubmitBatch: %v", err)
	}
}

func TestChildOperation(t *testing.T) {
	op := ChildOperation("Projects", "Roadmap", map[string]any{"content": "## Q4"})
	if op.Action != "create" {
		t.Errorf("action = %q", op.Action)
	}
	if op.Target != "Projects+Roadmap" {
		t.Errorf("target = %q", op.Target)
	}
	if op.Payload["content"] != "## Q4" {
		t.Errorf("payload = %v", op.Payload)
	}
}
