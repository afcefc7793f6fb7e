package chatclient

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/fiscaldesk/support-platform/internal/model"
)

// HTTPClient implements API against the support REST surface.
type HTTPClient struct {
	client *resty.Client
}

// NewHTTPClient creates a client for baseURL. token, when set, is sent as a
// bearer token on every request.
func NewHTTPClient(baseURL, token string, timeout time.Duration) *HTTPClient {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")
	if token != "" {
		client.SetAuthToken(token)
	}
	return &HTTPClient{client: client}
}

type apiError struct {
	Error string `json:"error"`
}

// FetchConversation implements Fetcher.
func (c *HTTPClient) FetchConversation(ctx context.Context, conversationID string) (*model.Conversation, error) {
	var conv model.Conversation
	resp, err := c.client.R().
		SetContext(ctx).
		SetResult(&conv).
		SetError(&apiError{}).
		SetPathParam("id", conversationID).
		Get("/api/v1/conversations/{id}")
	if err := checkResponse(resp, err); err != nil {
		return nil, err
	}
	return &conv, nil
}

// FetchMessages implements Fetcher.
func (c *HTTPClient) FetchMessages(ctx context.Context, conversationID string, since uint64) ([]model.Message, error) {
	var out model.ListMessagesResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetResult(&out).
		SetError(&apiError{}).
		SetPathParam("id", conversationID).
		SetQueryParam("since", strconv.FormatUint(since, 10)).
		Get("/api/v1/conversations/{id}/messages")
	if err := checkResponse(resp, err); err != nil {
		return nil, err
	}
	return out.Messages, nil
}

// SendMessage posts a message.
func (c *HTTPClient) SendMessage(ctx context.Context, conversationID string, req *model.AppendMessageRequest) (*model.Message, error) {
	var out model.AppendMessageResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&out).
		SetError(&apiError{}).
		SetPathParam("id", conversationID).
		Post("/api/v1/conversations/{id}/messages")
	if err := checkResponse(resp, err); err != nil {
		return nil, err
	}
	return out.Message, nil
}

// RequestHuman asks for a specialist.
func (c *HTTPClient) RequestHuman(ctx context.Context, conversationID string) (*model.Conversation, error) {
	var conv model.Conversation
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(&model.HandoffRequestBody{}).
		SetResult(&conv).
		SetError(&apiError{}).
		SetPathParam("id", conversationID).
		Post("/api/v1/conversations/{id}/handoff")
	if err := checkResponse(resp, err); err != nil {
		return nil, err
	}
	return &conv, nil
}

// checkResponse maps transport failures and error statuses onto the shared
// error classes.
func checkResponse(resp *resty.Response, err error) error {
	if err != nil {
		return fmt.Errorf("%w: %v", model.ErrTransientDelivery, err)
	}
	if !resp.IsError() {
		return nil
	}

	msg := resp.Status()
	if e, ok := resp.Error().(*apiError); ok && e.Error != "" {
		msg = e.Error
	}

	switch resp.StatusCode() {
	case http.StatusBadRequest:
		return fmt.Errorf("%w: %s", model.ErrValidation, msg)
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", model.ErrNotFound, msg)
	case http.StatusConflict:
		return fmt.Errorf("%w: %s", model.ErrPreconditionFailed, msg)
	default:
		return fmt.Errorf("%w: %s", model.ErrTransientDelivery, msg)
	}
}
