package ocr

import (
	"context"
	"fmt"
	"time"

	vision "cloud.google.com/go/vision/v2/apiv1"
	"cloud.google.com/go/vision/v2/apiv1/visionpb"
	"github.com/googleapis/gax-go/v2"
	"github.com/rs/zerolog"

	"facturas/internal/logger"
)

const backendVision = "vision"

type imageAnnotator interface {
	BatchAnnotateImages(ctx context.Context, req *visionpb.BatchAnnotateImagesRequest, opts ...gax.CallOption) (*visionpb.BatchAnnotateImagesResponse, error)
	Close() error
}

// VisionRecognizer implements Recognizer with Google Cloud Vision.
type VisionRecognizer struct {
	client  imageAnnotator
	timeout time.Duration
	log     zerolog.Logger
}

// NewVisionRecognizer creates a recognizer with credentials from the environment.
func NewVisionRecognizer(ctx context.Context, timeout time.Duration) (*VisionRecognizer, error) {
	const op = "NewVisionRecognizer"

	opts := credentialOptions()
	client, err := vision.NewImageAnnotatorClient(ctx, opts...)
	if err != nil {
		if len(opts) == 0 {
			return nil, WrapRecognitionError(backendVision, op, ErrMissingCredentials, err.Error())
		}
		return nil, WrapRecognitionError(backendVision, op, err, "failed to create client")
	}

	return newVisionRecognizer(client, timeout), nil
}

func newVisionRecognizer(client imageAnnotator, timeout time.Duration) *VisionRecognizer {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &VisionRecognizer{
		client:  client,
		timeout: timeout,
		log:     logger.WithComponent("ocr-vision"),
	}
}

func (v *VisionRecognizer) Recognize(ctx context.Context, image []byte) (*Recognition, error) {
	const op = "Recognize"
	start := time.Now()

	if err := checkImage(backendVision, op, image); err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	req := &visionpb.BatchAnnotateImagesRequest{
		Requests: []*visionpb.AnnotateImageRequest{
			{
				Image: &visionpb.Image{Content: image},
				Features: []*visionpb.Feature{
					{Type: visionpb.Feature_DOCUMENT_TEXT_DETECTION},
				},
			},
		},
	}

	resp, err := v.client.BatchAnnotateImages(callCtx, req)
	if err != nil {
		return nil, WrapRecognitionError(backendVision, op, err, "Vision API call failed")
	}
	if len(resp.Responses) == 0 {
		return nil, WrapRecognitionError(backendVision, op, ErrRecognitionUnavailable, "no response from Vision API")
	}

	imgResp := resp.Responses[0]
	if imgResp.Error != nil {
		return nil, WrapRecognitionError(backendVision, op, ErrRecognitionUnavailable, fmt.Sprintf("Vision API error: %s", imgResp.Error.Message))
	}

	text, confidence := visionText(imgResp)
	if !usable(text) {
		return nil, WrapRecognitionError(backendVision, op, ErrRecognitionUnavailable, "no text detected")
	}

	rec := &Recognition{
		Text:       text,
		Confidence: confidence,
		Backend:    backendVision,
		Duration:   time.Since(start),
	}

	v.log.Debug().
		Int("chars", len(rec.Text)).
		Float32("confidence", rec.Confidence).
		Dur("duration", rec.Duration).
		Msg("Vision recognition completed")

	return rec, nil
}

// visionText prefers the full document annotation and falls back to the first text annotation.
func visionText(resp *visionpb.AnnotateImageResponse) (string, float32) {
	if full := resp.GetFullTextAnnotation(); full != nil && usable(full.GetText()) {
		var sum float32
		var n int
		for _, page := range full.GetPages() {
			if page.GetConfidence() > 0 {
				sum += page.GetConfidence()
				n++
			}
		}
		if n == 0 {
			return full.GetText(), 0
		}
		return full.GetText(), sum / float32(n)
	}
	if anns := resp.GetTextAnnotations(); len(anns) > 0 {
		return anns[0].GetDescription(), anns[0].GetConfidence()
	}
	return "", 0
}

func (v *VisionRecognizer) Close() error {
	return v.client.Close()
}
