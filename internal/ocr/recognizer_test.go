package ocr

import (
	"context"
	"errors"
	"testing"

	"cloud.google.com/go/documentai/apiv1/documentaipb"
	"cloud.google.com/go/vision/v2/apiv1/visionpb"
	"github.com/googleapis/gax-go/v2"
	"google.golang.org/genproto/googleapis/rpc/status"
)

type fakeAnnotator struct {
	resp *visionpb.BatchAnnotateImagesResponse
	err  error
	req  *visionpb.BatchAnnotateImagesRequest
}

func (f *fakeAnnotator) BatchAnnotateImages(_ context.Context, req *visionpb.BatchAnnotateImagesRequest, _ ...gax.CallOption) (*visionpb.BatchAnnotateImagesResponse, error) {
	f.req = req
	return f.resp, f.err
}

func (f *fakeAnnotator) Close() error { return nil }

func TestVisionRecognizerReturnsFullText(t *testing.T) {
	fake := &fakeAnnotator{resp: &visionpb.BatchAnnotateImagesResponse{
		Responses: []*visionpb.AnnotateImageResponse{{
			FullTextAnnotation: &visionpb.TextAnnotation{
				Text:  "ORDEN DE SERVICIO 1001\nPaciente: 12345678",
				Pages: []*visionpb.Page{{Confidence: 0.9}},
			},
		}},
	}}

	rec, err := newVisionRecognizer(fake, 0).Recognize(context.Background(), []byte{0xff, 0xd8, 0xff})
	if err != nil {
		t.Fatalf("Recognize() error = %v", err)
	}
	if rec.Text != "ORDEN DE SERVICIO 1001\nPaciente: 12345678" || rec.Backend != "vision" {
		t.Fatalf("unexpected recognition %+v", rec)
	}
	if rec.Confidence < 0.89 || rec.Confidence > 0.91 {
		t.Fatalf("unexpected confidence %v", rec.Confidence)
	}
	features := fake.req.GetRequests()[0].GetFeatures()
	if len(features) != 1 || features[0].GetType() != visionpb.Feature_DOCUMENT_TEXT_DETECTION {
		t.Fatalf("expected document text detection, got %v", features)
	}
}

func TestVisionRecognizerEmptyTextIsUnavailable(t *testing.T) {
	tests := []struct {
		name string
		resp *visionpb.BatchAnnotateImagesResponse
	}{
		{"no responses", &visionpb.BatchAnnotateImagesResponse{}},
		{"blank text", &visionpb.BatchAnnotateImagesResponse{Responses: []*visionpb.AnnotateImageResponse{{
			FullTextAnnotation: &visionpb.TextAnnotation{Text: "  \n "},
		}}}},
		{"api error", &visionpb.BatchAnnotateImagesResponse{Responses: []*visionpb.AnnotateImageResponse{{
			Error: &status.Status{Message: "bad image"},
		}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newVisionRecognizer(&fakeAnnotator{resp: tt.resp}, 0).Recognize(context.Background(), []byte("img"))
			if !errors.Is(err, ErrRecognitionUnavailable) {
				t.Fatalf("expected ErrRecognitionUnavailable, got %v", err)
			}
			var recErr *RecognitionError
			if !errors.As(err, &recErr) || recErr.Backend != "vision" {
				t.Fatalf("expected RecognitionError from vision, got %T", err)
			}
		})
	}
}

func TestVisionRecognizerRejectsEmptyImage(t *testing.T) {
	_, err := newVisionRecognizer(&fakeAnnotator{}, 0).Recognize(context.Background(), nil)
	if !errors.Is(err, ErrEmptyImage) {
		t.Fatalf("expected ErrEmptyImage, got %v", err)
	}
}

type fakeProcessor struct {
	resp *documentaipb.ProcessResponse
	err  error
	req  *documentaipb.ProcessRequest
}

func (f *fakeProcessor) ProcessDocument(_ context.Context, req *documentaipb.ProcessRequest, _ ...gax.CallOption) (*documentaipb.ProcessResponse, error) {
	f.req = req
	return f.resp, f.err
}

func (f *fakeProcessor) Close() error { return nil }

func TestDocumentAIRecognizer(t *testing.T) {
	fake := &fakeProcessor{resp: &documentaipb.ProcessResponse{Document: &documentaipb.Document{Text: "Cedula: 1020304050"}}}
	cfg := DocumentAIConfig{ProjectID: "proj", Location: "us", ProcessorID: "abc"}

	png := []byte("\x89PNG\r\n\x1a\n0000")
	rec, err := newDocumentAIRecognizer(fake, cfg).Recognize(context.Background(), png)
	if err != nil {
		t.Fatalf("Recognize() error = %v", err)
	}
	if rec.Text != "Cedula: 1020304050" {
		t.Fatalf("unexpected text %q", rec.Text)
	}
	if fake.req.GetName() != "projects/proj/locations/us/processors/abc" {
		t.Fatalf("unexpected processor name %q", fake.req.GetName())
	}
	if got := fake.req.GetRawDocument().GetMimeType(); got != "image/png" {
		t.Fatalf("unexpected mime type %q", got)
	}

	failing := &fakeProcessor{err: errors.New("deadline exceeded")}
	if _, err := newDocumentAIRecognizer(failing, cfg).Recognize(context.Background(), png); err == nil {
		t.Fatalf("expected error from failing processor")
	}
}

func TestNoopRecognizer(t *testing.T) {
	_, err := NoopRecognizer{}.Recognize(context.Background(), []byte("img"))
	if !errors.Is(err, ErrRecognitionUnavailable) {
		t.Fatalf("expected ErrRecognitionUnavailable, got %v", err)
	}
}
