package chatsync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// apiClient talks to the chat service. It is transport only: request
// shaping, throttling, and error classification. Payload normalization
// happens in the Normalizer it carries.
type apiClient struct {
	baseURL string
	token   string
	http    *http.Client
	limiter *rate.Limiter
	norm    *Normalizer
	log     zerolog.Logger
}

func (a *apiClient) doRequest(ctx context.Context, method, path string, body any, query map[string]string) ([]byte, error) {
	if a.limiter != nil {
		if err := a.limiter.Wait(ctx); err != nil {
			return nil, &NetworkError{Op: method + " " + path, Err: err}
		}
	}

	u := a.baseURL + path
	if len(query) > 0 {
		params := url.Values{}
		for k, v := range query {
			params.Set(k, v)
		}
		u += "?" + params.Encode()
	}

	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if a.token != "" {
		req.Header.Set("Authorization", "Bearer "+a.token)
	}

	resp, err := a.http.Do(req)
	if err != nil {
		return nil, &NetworkError{Op: method + " " + path, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{Op: method + " " + path, Err: err}
	}
	if resp.StatusCode >= 300 {
		return nil, serverErrorFrom(resp.StatusCode, data)
	}
	return data, nil
}

// serverErrorFrom builds a ServerError, picking up the service's error
// envelope when the body carries one.
func serverErrorFrom(status int, body []byte) *ServerError {
	se := &ServerError{StatusCode: status}
	var envelope struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &envelope) == nil {
		se.Code = envelope.Error.Code
		se.Message = envelope.Error.Message
	}
	return se
}

func decodeJSON[T any](data []byte) (*T, error) {
	var result T
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return &result, nil
}

// info fetches the current server session descriptor.
func (a *apiClient) info(ctx context.Context) (*InfoResponse, error) {
	data, err := a.doRequest(ctx, http.MethodGet, "/info", nil, nil)
	if err != nil {
		return nil, err
	}
	return decodeJSON[InfoResponse](data)
}

// messagesSince fetches message records created or changed after the
// cursor. A zero cursor omits the parameter and fetches the full history.
func (a *apiClient) messagesSince(ctx context.Context, since time.Time) ([]Message, error) {
	data, err := a.doRequest(ctx, http.MethodGet, "/messages", nil, sinceQuery(since))
	if err != nil {
		return nil, err
	}
	return a.norm.DecodeMessageBatch(data), nil
}

// participantsSince fetches participant records changed after the cursor.
func (a *apiClient) participantsSince(ctx context.Context, since time.Time) ([]Participant, error) {
	data, err := a.doRequest(ctx, http.MethodGet, "/participants", nil, sinceQuery(since))
	if err != nil {
		return nil, err
	}
	return a.norm.DecodeParticipantBatch(data), nil
}

func sinceQuery(since time.Time) map[string]string {
	if since.IsZero() {
		return nil
	}
	return map[string]string{"since": since.UTC().Format(time.RFC3339Nano)}
}

// sendMessage posts a new message and returns the confirmed record with its
// server-issued id.
func (a *apiClient) sendMessage(ctx context.Context, text string) (*Message, error) {
	data, err := a.doRequest(ctx, http.MethodPost, "/messages", map[string]string{"text": text}, nil)
	if err != nil {
		return nil, err
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to unmarshal send response: %w", err)
	}
	msg := a.norm.NormalizeMessage(raw)
	return &msg, nil
}

// addReaction and removeReaction hit the optional reaction endpoints.
// Servers without them answer 404 or 501, which classifies as
// ErrNotImplemented.
func (a *apiClient) addReaction(ctx context.Context, messageID, emoji, participantID string) error {
	_, err := a.doRequest(ctx, http.MethodPost, "/messages/"+url.PathEscape(messageID)+"/reactions",
		map[string]string{"emoji": emoji, "participantId": participantID}, nil)
	return err
}

func (a *apiClient) removeReaction(ctx context.Context, messageID, emoji, participantID string) error {
	_, err := a.doRequest(ctx, http.MethodDelete, "/messages/"+url.PathEscape(messageID)+"/reactions",
		map[string]string{"emoji": emoji, "participantId": participantID}, nil)
	return err
}
