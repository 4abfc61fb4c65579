package whatsapp

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// Section is one section of an interactive list message.
type Section struct {
	Title string
	Rows  []Row
}

// Row is one selectable row; ID is the opaque identifier that comes back in
// the user's reply.
type Row struct {
	ID          string
	Title       string
	Description string
}

// Button is one reply button (Cloud API allows at most three).
type Button struct {
	ID    string
	Title string
}

// Client talks to the WhatsApp Business Cloud API. Sends are retried a
// bounded number of times with exponential backoff on 429 and 5xx, honoring
// Retry-After when the provider supplies one.
type Client struct {
	http          *resty.Client
	phoneNumberID string
	logger        *zap.Logger
}

func NewClient(apiBase, token, phoneNumberID string, logger *zap.Logger) *Client {
	httpClient := resty.New().
		SetBaseURL(apiBase).
		SetAuthToken(token).
		SetTimeout(20*time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(1*time.Second).
		SetRetryMaxWaitTime(10*time.Second).
		SetHeader("Content-Type", "application/json").
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() == http.StatusTooManyRequests || r.StatusCode() >= 500
		}).
		SetRetryAfter(func(c *resty.Client, r *resty.Response) (time.Duration, error) {
			if r != nil {
				if d, err := time.ParseDuration(r.Header().Get("Retry-After") + "s"); err == nil && d > 0 {
					return d, nil
				}
			}
			return 0, nil // fall back to the backoff schedule
		})

	return &Client{
		http:          httpClient,
		phoneNumberID: phoneNumberID,
		logger:        logger,
	}
}

type sendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
	Error *struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error"`
}

func (c *Client) send(ctx context.Context, kind string, payload map[string]any) (string, error) {
	payload["messaging_product"] = "whatsapp"

	var out sendResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(payload).
		SetResult(&out).
		SetError(&out).
		Post(fmt.Sprintf("/%s/messages", c.phoneNumberID))

	if err != nil {
		return "", fmt.Errorf("send %s: %w", kind, err)
	}
	if resp.IsError() {
		if out.Error != nil {
			return "", fmt.Errorf("send %s: provider error %d: %s", kind, out.Error.Code, out.Error.Message)
		}
		return "", fmt.Errorf("send %s: status %d", kind, resp.StatusCode())
	}
	if len(out.Messages) == 0 {
		return "", fmt.Errorf("send %s: no message id in response", kind)
	}

	c.logger.Debug("Message sent",
		zap.String("kind", kind),
		zap.String("message_id", out.Messages[0].ID))

	return out.Messages[0].ID, nil
}

// SendText delivers a plain text message.
func (c *Client) SendText(ctx context.Context, to, body string) (string, error) {
	return c.send(ctx, "text", map[string]any{
		"to":   to,
		"type": "text",
		"text": map[string]any{"body": body},
	})
}

// SendList delivers an interactive list message.
func (c *Client) SendList(ctx context.Context, to, header, body string, sections []Section) (string, error) {
	apiSections := make([]map[string]any, 0, len(sections))
	for _, s := range sections {
		rows := make([]map[string]any, 0, len(s.Rows))
		for _, r := range s.Rows {
			row := map[string]any{"id": r.ID, "title": r.Title}
			if r.Description != "" {
				row["description"] = r.Description
			}
			rows = append(rows, row)
		}
		apiSections = append(apiSections, map[string]any{"title": s.Title, "rows": rows})
	}

	return c.send(ctx, "list", map[string]any{
		"to":   to,
		"type": "interactive",
		"interactive": map[string]any{
			"type":   "list",
			"header": map[string]any{"type": "text", "text": header},
			"body":   map[string]any{"text": body},
			"action": map[string]any{"button": "Wybierz", "sections": apiSections},
		},
	})
}

// SendButtons delivers an interactive reply-buttons message.
func (c *Client) SendButtons(ctx context.Context, to, body string, buttons []Button) (string, error) {
	apiButtons := make([]map[string]any, 0, len(buttons))
	for _, b := range buttons {
		apiButtons = append(apiButtons, map[string]any{
			"type":  "reply",
			"reply": map[string]any{"id": b.ID, "title": b.Title},
		})
	}

	return c.send(ctx, "buttons", map[string]any{
		"to":   to,
		"type": "interactive",
		"interactive": map[string]any{
			"type":   "button",
			"body":   map[string]any{"text": body},
			"action": map[string]any{"buttons": apiButtons},
		},
	})
}

// SendTemplate delivers a pre-approved template message, used outside the
// 24-hour service window.
func (c *Client) SendTemplate(ctx context.Context, to, name, lang string, params []string) (string, error) {
	components := []map[string]any{}
	if len(params) > 0 {
		parameters := make([]map[string]any, 0, len(params))
		for _, p := range params {
			parameters = append(parameters, map[string]any{"type": "text", "text": p})
		}
		components = append(components, map[string]any{"type": "body", "parameters": parameters})
	}

	return c.send(ctx, "template", map[string]any{
		"to":   to,
		"type": "template",
		"template": map[string]any{
			"name":       name,
			"language":   map[string]any{"code": lang},
			"components": components,
		},
	})
}
