package rpc

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"payflow/native/registry"
)

// ErrOutcomeTimeout is returned when an outcome stays unresolved after the
// configured attempt budget. The server journals outcomes before responding,
// so in practice this indicates a lost submission or a caller polling a
// foreign node.
var ErrOutcomeTimeout = errors.New("rpc: operation outcome not resolved within attempt budget")

// Client submits operations over the wire convention and polls for terminal
// outcomes with a bounded number of attempts.
type Client struct {
	baseURL      string
	httpClient   *http.Client
	pollInterval time.Duration
	maxAttempts  int
}

// NewClient builds a client for the node at baseURL. Zero values fall back
// to ten attempts at 500ms.
func NewClient(baseURL string, httpClient *http.Client, pollInterval time.Duration, maxAttempts int) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	if maxAttempts <= 0 {
		maxAttempts = 10
	}
	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		httpClient:   httpClient,
		pollInterval: pollInterval,
		maxAttempts:  maxAttempts,
	}
}

// Submit encodes op to the positional argument convention and posts it. The
// returned outcome is terminal.
func (c *Client) Submit(ctx context.Context, op registry.Operation) (Outcome, error) {
	args, err := registry.EncodeOperation(op)
	if err != nil {
		return Outcome{}, err
	}
	encoded := make([]string, 0, len(args))
	for _, arg := range args {
		encoded = append(encoded, base64.StdEncoding.EncodeToString(arg))
	}
	body, err := json.Marshal(SubmitRequest{Args: encoded})
	if err != nil {
		return Outcome{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/ops", bytes.NewReader(body))
	if err != nil {
		return Outcome{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	var outcome Outcome
	if err := c.do(req, &outcome); err != nil {
		return Outcome{}, err
	}
	return outcome, nil
}

// SubmitAndConfirm submits op and then polls the outcome journal until the
// terminal result is observed, mirroring callers that treat submission and
// confirmation as separate network steps.
func (c *Client) SubmitAndConfirm(ctx context.Context, op registry.Operation) (Outcome, error) {
	submitted, err := c.Submit(ctx, op)
	if err != nil {
		return Outcome{}, err
	}
	return c.PollOutcome(ctx, submitted.ID)
}

// PollOutcome fetches the outcome for id, retrying on not-found up to the
// attempt budget and surfacing ErrOutcomeTimeout when exhausted.
func (c *Client) PollOutcome(ctx context.Context, id string) (Outcome, error) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()
	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return Outcome{}, ctx.Err()
			case <-ticker.C:
			}
		}
		outcome, found, err := c.fetchOutcome(ctx, id)
		if err != nil {
			return Outcome{}, err
		}
		if found {
			return outcome, nil
		}
	}
	return Outcome{}, fmt.Errorf("%w: id %s after %d attempts", ErrOutcomeTimeout, id, c.maxAttempts)
}

func (c *Client) fetchOutcome(ctx context.Context, id string) (Outcome, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/ops/"+id, nil)
	if err != nil {
		return Outcome{}, false, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Outcome{}, false, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		_, _ = io.Copy(io.Discard, resp.Body)
		return Outcome{}, false, nil
	}
	if resp.StatusCode != http.StatusOK {
		return Outcome{}, false, fmt.Errorf("rpc: outcome request failed with status %d", resp.StatusCode)
	}
	var outcome Outcome
	if err := json.NewDecoder(resp.Body).Decode(&outcome); err != nil {
		return Outcome{}, false, err
	}
	return outcome, true, nil
}

// Processors fetches the decoded processor view.
func (c *Client) Processors(ctx context.Context) ([]ProcessorView, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/processors", nil)
	if err != nil {
		return nil, err
	}
	var payload struct {
		Processors []ProcessorView `json:"processors"`
	}
	if err := c.do(req, &payload); err != nil {
		return nil, err
	}
	return payload.Processors, nil
}

// State fetches the raw decoded state map.
func (c *Client) State(ctx context.Context) ([]registry.StateEntry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/state", nil)
	if err != nil {
		return nil, err
	}
	var payload struct {
		Entries []registry.StateEntry `json:"entries"`
	}
	if err := c.do(req, &payload); err != nil {
		return nil, err
	}
	return payload.Entries, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("rpc: %s %s failed with status %d: %s", req.Method, req.URL.Path, resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
