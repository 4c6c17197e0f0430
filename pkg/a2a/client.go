package a2a

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
)

// Client talks to an A2A agent.
type Client struct {
	// URL is the agent base URL, as found in its card.
	URL string

	// Token is sent as a bearer token when set.
	Token string

	HTTPClient *http.Client

	nextID atomic.Int64
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c *Client) endpoint(path string) string {
	return strings.TrimRight(c.URL, "/") + path
}

func (c *Client) newRequest(ctx context.Context, method, url string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	return req, nil
}

// Card fetches the public agent card.
func (c *Client) Card(ctx context.Context) (*AgentCard, error) {
	req, err := c.newRequest(ctx, http.MethodGet, c.endpoint(AgentCardPath), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, fmt.Errorf("a2a: get agent card: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, httpError(resp)
	}
	var card AgentCard
	if err := json.NewDecoder(resp.Body).Decode(&card); err != nil {
		return nil, fmt.Errorf("a2a: decode agent card: %w", err)
	}
	return &card, nil
}

func (c *Client) rpcBody(method string, params any) ([]byte, error) {
	p, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	id, _ := json.Marshal(c.nextID.Add(1))
	return json.Marshal(Request{JSONRPC: jsonrpcVersion, ID: id, Method: method, Params: p})
}

func (c *Client) call(ctx context.Context, method string, params any, result any) error {
	body, err := c.rpcBody(method, params)
	if err != nil {
		return err
	}
	req, err := c.newRequest(ctx, http.MethodPost, c.endpoint("/"), bytes.NewReader(body))
	if err != nil {
		return err
	}
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return fmt.Errorf("a2a: %s: %w", method, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return httpError(resp)
	}
	var r struct {
		Result json.RawMessage `json:"result"`
		Error  *Error          `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return fmt.Errorf("a2a: decode %s response: %w", method, err)
	}
	if r.Error != nil {
		return r.Error
	}
	return json.Unmarshal(r.Result, result)
}

// Send submits msg and waits for the task to finish.
func (c *Client) Send(ctx context.Context, msg *Message) (*Task, error) {
	var t Task
	if err := c.call(ctx, MethodMessageSend, MessageSendParams{Message: msg}, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (c *Client) GetTask(ctx context.Context, id string) (*Task, error) {
	var t Task
	if err := c.call(ctx, MethodTasksGet, TaskQueryParams{ID: id}, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (c *Client) CancelTask(ctx context.Context, id string) (*Task, error) {
	var t Task
	if err := c.call(ctx, MethodTasksCancel, TaskIDParams{ID: id}, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// Stream submits msg and calls fn for every event until the final status
// update, an error from fn, or the end of ctx.
func (c *Client) Stream(ctx context.Context, msg *Message, fn func(Event) error) error {
	body, err := c.rpcBody(MethodMessageStream, MessageSendParams{Message: msg})
	if err != nil {
		return err
	}
	req, err := c.newRequest(ctx, http.MethodPost, c.endpoint("/"), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return fmt.Errorf("a2a: stream: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return httpError(resp)
	}
	if !strings.HasPrefix(resp.Header.Get("Content-Type"), "text/event-stream") {
		// Errors before the stream starts come back as a plain response.
		var r struct {
			Error *Error `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&r); err == nil && r.Error != nil {
			return r.Error
		}
		return errors.New("a2a: stream: unexpected response")
	}

	sc := bufio.NewScanner(resp.Body)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	var data strings.Builder
	for sc.Scan() {
		line := sc.Text()
		if after, ok := strings.CutPrefix(line, "data:"); ok {
			data.WriteString(strings.TrimPrefix(after, " "))
			continue
		}
		if line != "" || data.Len() == 0 {
			continue
		}
		evt, err := decodeStreamResponse([]byte(data.String()))
		data.Reset()
		if err != nil {
			return err
		}
		if err := fn(evt); err != nil {
			return err
		}
		if su, ok := evt.(*TaskStatusUpdateEvent); ok && su.Final {
			return nil
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("a2a: read stream: %w", err)
	}
	return nil
}

func decodeStreamResponse(b []byte) (Event, error) {
	var r struct {
		Result json.RawMessage `json:"result"`
		Error  *Error          `json:"error"`
	}
	if err := json.Unmarshal(b, &r); err != nil {
		return nil, fmt.Errorf("a2a: decode stream event: %w", err)
	}
	if r.Error != nil {
		return nil, r.Error
	}
	return DecodeEvent(r.Result)
}

// DecodeEvent decodes a Task or update event by its kind.
func DecodeEvent(raw json.RawMessage) (Event, error) {
	var head struct {
		Kind string `json:"kind"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, fmt.Errorf("a2a: decode event: %w", err)
	}
	var e Event
	switch head.Kind {
	case "task":
		e = &Task{}
	case "status-update":
		e = &TaskStatusUpdateEvent{}
	case "artifact-update":
		e = &TaskArtifactUpdateEvent{}
	default:
		return nil, fmt.Errorf("a2a: unknown event kind %q", head.Kind)
	}
	if err := json.Unmarshal(raw, e); err != nil {
		return nil, fmt.Errorf("a2a: decode %s event: %w", head.Kind, err)
	}
	return e, nil
}

func httpError(resp *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	msg := strings.TrimSpace(string(b))
	var body struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(b, &body) == nil && body.Error != "" {
		msg = body.Error
	}
	return fmt.Errorf("a2a: %s: %s", resp.Status, msg)
}
