package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const defaultGraphBaseURL = "https://graph.facebook.com/v22.0"

// WhatsAppConfig controls how the Cloud API client behaves.
type WhatsAppConfig struct {
	BaseURL       string
	AccessToken   string
	PhoneNumberID string
	Timeout       time.Duration
	HTTPClient    *http.Client
	Logger        *zap.Logger
}

// WhatsAppClient sends messages through the WhatsApp Cloud API.
type WhatsAppClient struct {
	baseURL       string
	accessToken   string
	phoneNumberID string
	httpClient    *http.Client
	logger        *zap.Logger
}

// APIError is a non-2xx answer from the Graph API.
type APIError struct {
	Status  int
	Code    int    `json:"code"`
	Type    string `json:"type"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("whatsapp: status %d: %s (code %d)", e.Status, e.Message, e.Code)
}

func NewWhatsAppClient(cfg WhatsAppConfig) (*WhatsAppClient, error) {
	if strings.TrimSpace(cfg.AccessToken) == "" {
		return nil, errors.New("whatsapp: access token is required")
	}
	if strings.TrimSpace(cfg.PhoneNumberID) == "" {
		return nil, errors.New("whatsapp: phone number id is required")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultGraphBaseURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WhatsAppClient{
		baseURL:       baseURL,
		accessToken:   cfg.AccessToken,
		phoneNumberID: cfg.PhoneNumberID,
		httpClient:    httpClient,
		logger:        logger,
	}, nil
}

// Graph API payloads

type outboundMessage struct {
	MessagingProduct string       `json:"messaging_product"`
	RecipientType    string       `json:"recipient_type"`
	To               string       `json:"to"`
	Type             string       `json:"type"`
	Text             *textBody    `json:"text,omitempty"`
	Interactive      *interactive `json:"interactive,omitempty"`
}

type textBody struct {
	Body string `json:"body"`
}

type interactive struct {
	Type   string            `json:"type"`
	Body   textBody          `json:"body"`
	Action interactiveAction `json:"action"`
}

type interactiveAction struct {
	Buttons  []replyButton `json:"buttons,omitempty"`
	Button   string        `json:"button,omitempty"`
	Sections []listSection `json:"sections,omitempty"`
}

type replyButton struct {
	Type  string     `json:"type"`
	Reply replyTitle `json:"reply"`
}

type replyTitle struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type listSection struct {
	Title string    `json:"title,omitempty"`
	Rows  []listRow `json:"rows"`
}

type listRow struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

func (c *WhatsAppClient) SendText(ctx context.Context, to, body string) error {
	return c.send(ctx, outboundMessage{
		To:   to,
		Type: messageTypeText,
		Text: &textBody{Body: Truncate(body, MaxTextBody)},
	})
}

func (c *WhatsAppClient) SendButtons(ctx context.Context, to, body string, buttons []Button) error {
	buttons = NormalizeButtons(buttons)
	if len(buttons) == 0 {
		return c.SendText(ctx, to, body)
	}

	action := interactiveAction{}
	for _, b := range buttons {
		action.Buttons = append(action.Buttons, replyButton{Type: "reply", Reply: replyTitle{ID: b.ID, Title: b.Title}})
	}

	return c.send(ctx, outboundMessage{
		To:   to,
		Type: messageTypeInteract,
		Interactive: &interactive{
			Type:   interactiveButton,
			Body:   textBody{Body: Truncate(body, MaxInteractiveBody)},
			Action: action,
		},
	})
}

func (c *WhatsAppClient) SendList(ctx context.Context, to string, list List) error {
	list = NormalizeList(list)
	if len(list.Sections) == 0 {
		return c.SendText(ctx, to, list.Body)
	}

	action := interactiveAction{Button: list.ButtonLabel}
	for _, sec := range list.Sections {
		ls := listSection{Title: sec.Title}
		for _, r := range sec.Rows {
			ls.Rows = append(ls.Rows, listRow{ID: r.ID, Title: r.Title, Description: r.Description})
		}
		action.Sections = append(action.Sections, ls)
	}

	return c.send(ctx, outboundMessage{
		To:   to,
		Type: messageTypeInteract,
		Interactive: &interactive{
			Type:   interactiveList,
			Body:   textBody{Body: list.Body},
			Action: action,
		},
	})
}

func (c *WhatsAppClient) send(ctx context.Context, msg outboundMessage) error {
	msg.MessagingProduct = "whatsapp"
	msg.RecipientType = "individual"

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("whatsapp: marshal message: %w", err)
	}

	url := fmt.Sprintf("%s/%s/messages", c.baseURL, c.phoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("whatsapp: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("whatsapp: http error: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("whatsapp: read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := decodeAPIError(resp.StatusCode, data)
		c.logger.Warn("whatsapp send failed",
			zap.String("to", msg.To),
			zap.String("type", msg.Type),
			zap.Int("status", resp.StatusCode),
			zap.String("error", apiErr.Message),
		)
		return apiErr
	}

	c.logger.Debug("whatsapp message sent", zap.String("to", msg.To), zap.String("type", msg.Type))
	return nil
}

func decodeAPIError(status int, data []byte) *APIError {
	var wrapper struct {
		Error APIError `json:"error"`
	}
	apiErr := &APIError{Status: status}
	if err := json.Unmarshal(data, &wrapper); err == nil && wrapper.Error.Message != "" {
		wrapper.Error.Status = status
		return &wrapper.Error
	}
	apiErr.Message = strings.TrimSpace(string(data))
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(status)
	}
	return apiErr
}

// LogSender writes outbound messages to the log instead of sending them.
// Used when no WhatsApp credentials are configured.
type LogSender struct {
	logger *zap.Logger
}

func NewLogSender(logger *zap.Logger) *LogSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSender{logger: logger}
}

func (s *LogSender) SendText(_ context.Context, to, body string) error {
	s.logger.Info("outbound text", zap.String("to", to), zap.String("body", body))
	return nil
}

func (s *LogSender) SendButtons(_ context.Context, to, body string, buttons []Button) error {
	titles := make([]string, 0, len(buttons))
	for _, b := range NormalizeButtons(buttons) {
		titles = append(titles, b.Title)
	}
	s.logger.Info("outbound buttons", zap.String("to", to), zap.String("body", body), zap.Strings("buttons", titles))
	return nil
}

func (s *LogSender) SendList(_ context.Context, to string, list List) error {
	list = NormalizeList(list)
	var rows []string
	for _, sec := range list.Sections {
		for _, r := range sec.Rows {
			rows = append(rows, r.Title)
		}
	}
	s.logger.Info("outbound list", zap.String("to", to), zap.String("body", list.Body), zap.Strings("rows", rows))
	return nil
}
