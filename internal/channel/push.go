package channel

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/kursadbilgin/notify-daemon/internal/domain"
)

const defaultPushTimeout = 10 * time.Second

type pushRequest struct {
	PushID string `json:"push_id"`
	Title  string `json:"title"`
	Body   string `json:"body"`
}

// Message is the content sent to every client.
type Message struct {
	Subject string
	Body    string
}

var _ Channel = (*PushGateway)(nil)

// PushGateway posts push notifications to an HTTP push gateway.
type PushGateway struct {
	client   *resty.Client
	endpoint string
	message  Message
}

func NewPushGateway(endpoint string, message Message) (*PushGateway, error) {
	client := resty.New()
	client.SetTimeout(defaultPushTimeout)
	client.SetRetryCount(0)

	return NewPushGatewayWithClient(endpoint, message, client)
}

func NewPushGatewayWithClient(endpoint string, message Message, client *resty.Client) (*PushGateway, error) {
	trimmedEndpoint := strings.TrimSpace(endpoint)
	if trimmedEndpoint == "" {
		return nil, fmt.Errorf("push gateway endpoint is required")
	}
	if _, err := url.ParseRequestURI(trimmedEndpoint); err != nil {
		return nil, fmt.Errorf("invalid push gateway endpoint: %w", err)
	}
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}

	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultPushTimeout)
	}
	client.SetRetryCount(0)

	return &PushGateway{
		client:   client,
		endpoint: trimmedEndpoint,
		message:  message,
	}, nil
}

func (p *PushGateway) Name() domain.Channel { return domain.ChannelPush }

func (p *PushGateway) Deliver(ctx context.Context, client domain.Client) error {
	if p == nil || p.client == nil {
		return fmt.Errorf("push gateway is not initialized")
	}

	pushID := strings.TrimSpace(client.PushID)
	if pushID == "" {
		return permanentError(domain.ChannelPush, "client has no push id")
	}

	response, err := p.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(pushRequest{
			PushID: pushID,
			Title:  p.message.Subject,
			Body:   p.message.Body,
		}).
		Post(p.endpoint)
	if err != nil {
		return &DeliveryError{
			Channel:   domain.ChannelPush,
			Message:   "push gateway request failed",
			Transient: !errors.Is(err, context.Canceled),
			Cause:     err,
		}
	}
	if response == nil {
		return &DeliveryError{
			Channel:   domain.ChannelPush,
			Message:   "push gateway returned empty response",
			Transient: true,
		}
	}

	statusCode := response.StatusCode()
	if statusCode >= http.StatusOK && statusCode < http.StatusMultipleChoices {
		return nil
	}

	return &DeliveryError{
		Channel:    domain.ChannelPush,
		StatusCode: statusCode,
		Message:    gatewayErrorMessage(statusCode, strings.TrimSpace(response.String())),
		Transient:  isTransientHTTPStatus(statusCode),
	}
}

func isTransientHTTPStatus(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests || (statusCode >= http.StatusInternalServerError && statusCode <= 599)
}

func gatewayErrorMessage(statusCode int, body string) string {
	base := fmt.Sprintf("push gateway returned status %d", statusCode)
	if body == "" {
		return base
	}
	return fmt.Sprintf("%s: %s", base, body)
}
