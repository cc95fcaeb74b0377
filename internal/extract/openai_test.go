package extract

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/sony/gobreaker/v2"
)

type fakeChat struct {
	mu       sync.Mutex
	requests []openai.ChatCompletionRequest
	reply    string
	err      error
}

func (f *fakeChat) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.err != nil {
		return openai.ChatCompletionResponse{}, f.err
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Content: f.reply}}},
	}, nil
}

const sampleReply = "```json\n" + `{"orden_servicio":"OS-1001","patient_id":"123","services":[{"code":"882222","description":"DOPPLER RENAL","value":"1836000000"}]}` + "\n```"

func TestFromTextAppliesHintAndUsesTextBudget(t *testing.T) {
	chat := &fakeChat{reply: sampleReply}
	ext := NewOpenAIExtractor(chat, OpenAIConfig{})

	rec, err := ext.FromText(context.Background(), "Paciente: 12345678 MARIA PEREZ", "12345678")
	if err != nil {
		t.Fatalf("FromText() error = %v", err)
	}
	if rec.OrderNumber != "OS-1001" || rec.PatientID != "12345678" {
		t.Fatalf("unexpected record %+v", rec)
	}

	req := chat.requests[0]
	if req.Model != openai.GPT4o || req.MaxTokens != 1500 {
		t.Fatalf("unexpected request model %q max tokens %d", req.Model, req.MaxTokens)
	}
	prompt := req.Messages[0].Content
	if !strings.Contains(prompt, "OCR pre-extracted cedula: 12345678") || !strings.Contains(prompt, "MARIA PEREZ") {
		t.Fatalf("prompt is missing the hint or text:\n%s", prompt)
	}
}

func TestFromImageSendsDataURL(t *testing.T) {
	chat := &fakeChat{reply: sampleReply}
	ext := NewOpenAIExtractor(chat, OpenAIConfig{VisionMaxTokens: 800})

	rec, err := ext.FromImage(context.Background(), []byte{0xff, 0xd8, 0xff}, "image/jpeg")
	if err != nil {
		t.Fatalf("FromImage() error = %v", err)
	}
	if rec.PatientID != "123" {
		t.Fatalf("vision variant must not apply any hint, got %q", rec.PatientID)
	}

	req := chat.requests[0]
	if req.MaxTokens != 800 {
		t.Fatalf("expected vision token budget, got %d", req.MaxTokens)
	}
	parts := req.Messages[0].MultiContent
	if len(parts) != 2 || parts[1].ImageURL == nil || !strings.HasPrefix(parts[1].ImageURL.URL, "data:image/jpeg;base64,") {
		t.Fatalf("unexpected message parts %+v", parts)
	}
}

func TestParseFailureIsExtractionError(t *testing.T) {
	chat := &fakeChat{reply: "Lo siento, no puedo leer la factura."}
	_, err := NewOpenAIExtractor(chat, OpenAIConfig{}).FromText(context.Background(), "text", "")

	var extErr *ExtractionError
	if !errors.As(err, &extErr) || extErr.Variant != VariantText {
		t.Fatalf("expected text ExtractionError, got %v", err)
	}
	if !errors.Is(err, ErrNoJSONRegion) {
		t.Fatalf("expected ErrNoJSONRegion, got %v", err)
	}
}

func TestBreakerOpensAfterRepeatedFailures(t *testing.T) {
	chat := &fakeChat{err: errors.New("502 bad gateway")}
	ext := NewOpenAIExtractor(chat, OpenAIConfig{
		BreakerMinRequests:  2,
		BreakerFailureRatio: 0.5,
		BreakerOpenTimeout:  time.Minute,
	})

	for i := 0; i < 2; i++ {
		if _, err := ext.FromImage(context.Background(), []byte("img"), ""); err == nil {
			t.Fatalf("expected failure on call %d", i)
		}
	}

	_, err := ext.FromImage(context.Background(), []byte("img"), "")
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("expected open breaker, got %v", err)
	}
	if len(chat.requests) != 2 {
		t.Fatalf("open breaker must not reach the backend, got %d calls", len(chat.requests))
	}
}

func TestNewOpenAIClientAgainstCompatibleServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(openai.ChatCompletionResponse{
			Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Role: "assistant", Content: sampleReply}}},
		})
	}))
	defer srv.Close()

	ext := NewOpenAIExtractor(NewOpenAIClient("sk-test", srv.URL+"/v1"), OpenAIConfig{})
	rec, err := ext.FromText(context.Background(), "ORDEN 1001", "")
	if err != nil {
		t.Fatalf("FromText() error = %v", err)
	}
	if rec.OrderNumber != "OS-1001" {
		t.Fatalf("unexpected order number %q", rec.OrderNumber)
	}
}
