package printing

import (
	"bytes"
	"context"
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

// maxResponseBytes caps how much of a print service answer is read
const maxResponseBytes = 1 << 20

// Client hands stored documents to the print service
type Client struct {
	url            string
	defaultPrinter string
	http           *http.Client
	logger         *zap.Logger
}

// NewClient creates a print service client
func NewClient(cfg infraconfig.PrinterConfig, logger *zap.Logger) (*Client, error) {
	if cfg.URL == "" {
		return nil, errors.New("print service url is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		url:            cfg.URL,
		defaultPrinter: cfg.DefaultPrinter,
		http:           &http.Client{Timeout: timeout},
		logger:         logger,
	}, nil
}

type printRequest struct {
	S3URL   string  `json:"s3_url"`
	Printer *string `json:"printer"`
}

// Print posts the job's locator and printer to the print service. A non-2xx
// answer or a body that is not JSON is a PrintError.
func (c *Client) Print(ctx context.Context, job document.PrintJob) error {
	const op = "print"

	body := printRequest{S3URL: job.Locator.String()}
	printer := job.PrinterName
	if printer == "" {
		printer = c.defaultPrinter
	}
	if printer != "" {
		body.Printer = &printer
	}

	ctx, span := telemetry.StartClientSpan(ctx, "print-service", "print",
		telemetry.WithAttribute(telemetry.SpanAttrPrinter, printer),
		telemetry.WithAttribute(telemetry.SpanAttrBackend, string(job.Locator.Backend)),
	)
	defer span.End()

	payload, err := json.Marshal(body)
	if err != nil {
		return document.NewPrintError(op, "encode request", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return document.NewPrintError(op, "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		telemetry.RecordError(span, err)
		var nerr net.Error
		if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &nerr) && nerr.Timeout()) {
			return document.NewTimeoutError(op, "print service did not answer in time", err)
		}
		return document.NewPrintError(op, "print service unreachable", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return document.NewPrintError(op, "read response", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		err := document.NewPrintError(op, fmt.Sprintf("print service answered %d", resp.StatusCode), nil)
		telemetry.RecordError(span, err)
		return err
	}
	if !json.Valid(data) {
		err := document.NewPrintError(op, "print service answered with a non-JSON body", nil)
		telemetry.RecordError(span, err)
		return err
	}

	logger.L(ctx, c.logger).Info("Print job submitted",
		zap.String("locator", job.Locator.String()),
		zap.String("printer", printer),
	)
	return nil
}
