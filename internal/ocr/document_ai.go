package ocr

import (
	"context"
	"fmt"
	"time"

	documentai "cloud.google.com/go/documentai/apiv1"
	"cloud.google.com/go/documentai/apiv1/documentaipb"
	"github.com/googleapis/gax-go/v2"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"

	"facturas/internal/logger"
)

const backendDocumentAI = "documentai"

type documentProcessor interface {
	ProcessDocument(ctx context.Context, req *documentaipb.ProcessRequest, opts ...gax.CallOption) (*documentaipb.ProcessResponse, error)
	Close() error
}

// DocumentAIConfig names the OCR processor to call.
type DocumentAIConfig struct {
	ProjectID   string
	Location    string
	ProcessorID string
	Timeout     time.Duration
}

func (c DocumentAIConfig) processorName() string {
	return fmt.Sprintf("projects/%s/locations/%s/processors/%s", c.ProjectID, c.Location, c.ProcessorID)
}

// DocumentAIRecognizer implements Recognizer with a Document AI OCR processor.
type DocumentAIRecognizer struct {
	client documentProcessor
	config DocumentAIConfig
	log    zerolog.Logger
}

// NewDocumentAIRecognizer creates a recognizer against the regional Document AI endpoint.
func NewDocumentAIRecognizer(ctx context.Context, config DocumentAIConfig) (*DocumentAIRecognizer, error) {
	const op = "NewDocumentAIRecognizer"

	if config.ProjectID == "" || config.ProcessorID == "" {
		return nil, WrapRecognitionError(backendDocumentAI, op, fmt.Errorf("project and processor id are required"), "")
	}
	if config.Location == "" {
		config.Location = "us"
	}

	opts := credentialOptions()
	hasCredentials := len(opts) > 0
	opts = append(opts, option.WithEndpoint(fmt.Sprintf("%s-documentai.googleapis.com:443", config.Location)))

	client, err := documentai.NewDocumentProcessorClient(ctx, opts...)
	if err != nil {
		if !hasCredentials {
			return nil, WrapRecognitionError(backendDocumentAI, op, ErrMissingCredentials, err.Error())
		}
		return nil, WrapRecognitionError(backendDocumentAI, op, err, fmt.Sprintf("failed to create client for location %s", config.Location))
	}

	return newDocumentAIRecognizer(client, config), nil
}

func newDocumentAIRecognizer(client documentProcessor, config DocumentAIConfig) *DocumentAIRecognizer {
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	return &DocumentAIRecognizer{
		client: client,
		config: config,
		log:    logger.WithComponent("ocr-documentai"),
	}
}

func (d *DocumentAIRecognizer) Recognize(ctx context.Context, image []byte) (*Recognition, error) {
	const op = "Recognize"
	start := time.Now()

	if err := checkImage(backendDocumentAI, op, image); err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, d.config.Timeout)
	defer cancel()

	resp, err := d.client.ProcessDocument(callCtx, &documentaipb.ProcessRequest{
		Name: d.config.processorName(),
		Source: &documentaipb.ProcessRequest_RawDocument{
			RawDocument: &documentaipb.RawDocument{
				Content:  image,
				MimeType: sniffImageMIME(image),
			},
		},
	})
	if err != nil {
		return nil, WrapRecognitionError(backendDocumentAI, op, err, fmt.Sprintf("processor %s", d.config.ProcessorID))
	}

	doc := resp.GetDocument()
	if doc == nil || !usable(doc.GetText()) {
		return nil, WrapRecognitionError(backendDocumentAI, op, ErrRecognitionUnavailable, "no text in document")
	}

	var sum float32
	var n int
	for _, page := range doc.GetPages() {
		if layout := page.GetLayout(); layout != nil && layout.GetConfidence() > 0 {
			sum += layout.GetConfidence()
			n++
		}
	}

	rec := &Recognition{Text: doc.GetText(), Backend: backendDocumentAI, Duration: time.Since(start)}
	if n > 0 {
		rec.Confidence = sum / float32(n)
	}

	d.log.Debug().
		Int("chars", len(rec.Text)).
		Int("pages", len(doc.GetPages())).
		Dur("duration", rec.Duration).
		Msg("Document AI recognition completed")

	return rec, nil
}

func (d *DocumentAIRecognizer) Close() error {
	return d.client.Close()
}
