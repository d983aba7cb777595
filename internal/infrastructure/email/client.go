// Package email delivers transactional messages through the Brevo HTTP API.
package email

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/erp/docservice/internal/domain/document"
	infraconfig "github.com/erp/docservice/internal/infrastructure/config"
	"github.com/erp/docservice/internal/infrastructure/logger"
	"github.com/erp/docservice/internal/infrastructure/telemetry"
)

// DefaultAPIURL is the Brevo transactional email endpoint
const DefaultAPIURL = "https://api.brevo.com/v3/smtp/email"

const maxResponseBytes = 1 << 20

// Client sends email through Brevo
type Client struct {
	apiURL      string
	apiKey      string
	senderEmail string
	senderName  string
	http        *http.Client
	logger      *zap.Logger
}

// NewClient creates a Brevo client
func NewClient(cfg infraconfig.EmailConfig, logger *zap.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("email api key is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	apiURL := cfg.APIURL
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		apiURL:      apiURL,
		apiKey:      cfg.APIKey,
		senderEmail: cfg.SenderEmail,
		senderName:  cfg.SenderName,
		http:        &http.Client{Timeout: timeout},
		logger:      logger,
	}, nil
}

type contact struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type attachment struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

type sendRequest struct {
	Sender      contact      `json:"sender"`
	To          []contact    `json:"to"`
	Subject     string       `json:"subject"`
	TextContent string       `json:"textContent"`
	HTMLContent string       `json:"htmlContent"`
	Attachment  []attachment `json:"attachment,omitempty"`
}

type sendResponse struct {
	MessageID string `json:"messageId"`
	Code      string `json:"code"`
	Message   string `json:"message"`
}

// Send delivers msg. A missing sender falls back to the configured one.
func (c *Client) Send(ctx context.Context, msg document.Email) error {
	const op = "send email"

	if msg.From == "" {
		msg.From = c.senderEmail
	}
	if msg.FromName == "" {
		msg.FromName = c.senderName
	}
	if err := msg.Validate(); err != nil {
		return err
	}

	ctx, span := telemetry.StartClientSpan(ctx, "brevo", "send",
		telemetry.WithAttribute("email.has_attachment", msg.Attachment != nil),
	)
	defer span.End()

	body := sendRequest{
		Sender:      contact{Email: msg.From, Name: msg.FromName},
		To:          []contact{{Email: msg.To}},
		Subject:     msg.Subject,
		TextContent: msg.Text,
		HTMLContent: msg.HTMLBody(),
	}
	if msg.Attachment != nil {
		body.Attachment = []attachment{{
			Name:    msg.Attachment.Filename,
			Content: base64.StdEncoding.EncodeToString(msg.Attachment.Content),
		}}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return document.NewEmailError(op, "encode request", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(payload))
	if err != nil {
		return document.NewEmailError(op, "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("api-key", c.apiKey)

	log := logger.L(ctx, c.logger)
	resp, err := c.http.Do(req)
	if err != nil {
		telemetry.RecordError(span, err)
		var nerr net.Error
		if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &nerr) && nerr.Timeout()) {
			return document.NewTimeoutError(op, "email service did not answer in time", err)
		}
		return document.NewEmailError(op, "email service unreachable", err)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	var out sendResponse
	_ = json.Unmarshal(data, &out)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		reason := fmt.Sprintf("email service answered %d", resp.StatusCode)
		if out.Message != "" {
			reason += ": " + out.Message
		}
		err := document.NewEmailError(op, reason, nil)
		telemetry.RecordError(span, err)
		log.Warn("Email rejected",
			zap.Int("status", resp.StatusCode),
			zap.String("code", out.Code),
			logger.Masked("api_key", c.apiKey),
		)
		return err
	}

	log.Info("Email sent",
		zap.String("message_id", out.MessageID),
		zap.Bool("attachment", msg.Attachment != nil),
	)
	return nil
}
