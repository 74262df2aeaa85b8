package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"cafe_backend/internal/config"
	"cafe_backend/pkg/utils"
)

// Meta template names. They must exist in the WhatsApp Business account.
const (
	TemplateOrderStatus          = "order_status"
	TemplateOrderReady           = "order_ready"
	TemplateSubscriptionExpiring = "subscription_expiring"
	TemplateLowStock             = "low_stock_alert"
)

// TemplateSender delivers a WhatsApp template message.
type TemplateSender interface {
	SendTemplate(ctx context.Context, to, template string, params ...string) error
}

type WhatsAppClient struct {
	apiURL        string
	phoneNumberID string
	accessToken   string
	language      string
	httpClient    *http.Client
	mock          bool
}

// NewWhatsAppClient falls back to log-only delivery when credentials are missing.
func NewWhatsAppClient(cfg config.WhatsAppConfig) *WhatsAppClient {
	c := &WhatsAppClient{
		apiURL:        strings.TrimRight(cfg.APIURL, "/"),
		phoneNumberID: cfg.PhoneNumberID,
		accessToken:   cfg.AccessToken,
		language:      "en_US",
		httpClient:    &http.Client{Timeout: 10 * time.Second},
	}
	if cfg.PhoneNumberID == "" || cfg.AccessToken == "" {
		utils.LogWarn("WhatsApp credentials not configured, messages will only be logged")
		c.mock = true
	}
	return c
}

type templateParameter struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type templateComponent struct {
	Type       string              `json:"type"`
	Parameters []templateParameter `json:"parameters"`
}

type templateMessage struct {
	MessagingProduct string `json:"messaging_product"`
	To               string `json:"to"`
	Type             string `json:"type"`
	Template         struct {
		Name     string `json:"name"`
		Language struct {
			Code string `json:"code"`
		} `json:"language"`
		Components []templateComponent `json:"components"`
	} `json:"template"`
}

// whatsappRecipient renders the digits-only international form the Cloud API expects.
func whatsappRecipient(phone string) string {
	return strings.TrimPrefix(utils.NormalizePhone(phone), "+")
}

func (c *WhatsAppClient) SendTemplate(ctx context.Context, to, template string, params ...string) error {
	recipient := whatsappRecipient(to)
	if c.mock {
		utils.LogInfo("WhatsApp message (mock)", map[string]interface{}{
			"to": recipient, "template": template, "params": params,
		})
		return nil
	}

	msg := templateMessage{MessagingProduct: "whatsapp", To: recipient, Type: "template"}
	msg.Template.Name = template
	msg.Template.Language.Code = c.language
	body := templateComponent{Type: "body", Parameters: make([]templateParameter, 0, len(params))}
	for _, p := range params {
		body.Parameters = append(body.Parameters, templateParameter{Type: "text", Text: p})
	}
	msg.Template.Components = []templateComponent{body}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encoding whatsapp message: %w", err)
	}

	url := fmt.Sprintf("%s/%s/messages", c.apiURL, c.phoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building whatsapp request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending whatsapp template %s: %w", template, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var apiErr struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error.Message != "" {
			return fmt.Errorf("whatsapp api returned %d: %s", resp.StatusCode, apiErr.Error.Message)
		}
		return fmt.Errorf("whatsapp api returned %d", resp.StatusCode)
	}
	return nil
}
