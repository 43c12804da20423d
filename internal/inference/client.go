// Package inference provides a client for the remote vision and speech
// service (OpenAI-compatible HTTP API).
package inference

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/sightlens/platform/internal/apperr"
	"github.com/sightlens/platform/internal/resilience"
	"github.com/sightlens/platform/internal/trace"
)

// Models selects which remote model serves each concern.
type Models struct {
	OCR    string
	Vision string
	STT    string
	TTS    string
	Voice  string
}

// Client wraps the remote inference endpoints behind a circuit breaker.
type Client struct {
	http    *http.Client
	baseURL string
	apiKey  string
	models  Models
	breaker *resilience.Breaker
}

// New creates an inference client.
func New(baseURL, apiKey string, models Models) *Client {
	return &Client{
		http:    &http.Client{Timeout: 60 * time.Second},
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		models:  models,
		breaker: resilience.New(resilience.InferenceConfig()),
	}
}

// Warmup checks the service is reachable before the first scan, retrying
// while models load. This is the only retried call in the pipeline.
func (c *Client) Warmup(ctx context.Context) error {
	return resilience.Retry(ctx, resilience.WarmupRetryConfig(), func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/models", nil)
		if err != nil {
			return apperr.Wrap(err, apperr.CodeInternal, "build warmup request")
		}
		c.authorize(req)
		resp, err := c.http.Do(req)
		if err != nil {
			return apperr.Wrap(err, apperr.CodeInferenceDown, "inference service unreachable")
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return statusError(resp.StatusCode, "warmup")
		}
		return nil
	})
}

const ocrPrompt = `Read all printed text visible in this image. Respond with only a JSON object: {"text": "<the text>", "confidence": <0-100 integer>}. If no text is visible respond {"text": "", "confidence": 0}.`

// RecognizeText performs OCR on an encoded still image, returning the
// recognized text and a 0-100 confidence.
func (c *Client) RecognizeText(ctx context.Context, imageData []byte) (string, float64, error) {
	ctx, span := trace.StartSpan(ctx, "recognize_text")
	defer span.End()

	content, err := c.chat(ctx, c.models.OCR, ocrPrompt, imageData)
	if err != nil {
		return "", 0, err
	}

	var payload struct {
		Text       string  `json:"text"`
		Confidence float64 `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(stripFences(content)), &payload); err != nil {
		// Model ignored the format; treat the raw reply as unverified text.
		trace.Logger(ctx).Debug("unstructured OCR reply", "error", err)
		return content, 0, nil
	}
	span.SetAttr("confidence", payload.Confidence)
	return payload.Text, payload.Confidence, nil
}

// AnalyzeScene returns a spoken-ready description of the frame.
func (c *Client) AnalyzeScene(ctx context.Context, imageData []byte) (string, error) {
	ctx, span := trace.StartSpan(ctx, "analyze_scene")
	defer span.End()
	return c.chat(ctx, c.models.Vision,
		"Describe this scene in one or two short sentences for a blind person. Mention obstacles, signs, and people.", imageData)
}

// ReadHandwriting transcribes handwritten text in the frame.
func (c *Client) ReadHandwriting(ctx context.Context, imageData []byte) (string, error) {
	ctx, span := trace.StartSpan(ctx, "read_handwriting")
	defer span.End()
	return c.chat(ctx, c.models.Vision,
		"Transcribe the handwritten text in this image. Reply with only the transcription, or 'No handwriting found'.", imageData)
}

// Transcribe converts a short voice clip to text.
func (c *Client) Transcribe(ctx context.Context, audio []byte) (string, error) {
	ctx, span := trace.StartSpan(ctx, "transcribe")
	defer span.End()

	return resilience.ExecuteWithResult(c.breaker, func() (string, error) {
		var body bytes.Buffer
		w := multipart.NewWriter(&body)
		if err := w.WriteField("model", c.models.STT); err != nil {
			return "", apperr.Wrap(err, apperr.CodeInternal, "build transcription request")
		}
		part, err := w.CreateFormFile("file", "command.wav")
		if err != nil {
			return "", apperr.Wrap(err, apperr.CodeInternal, "build transcription request")
		}
		if _, err := part.Write(audio); err != nil {
			return "", apperr.Wrap(err, apperr.CodeInternal, "build transcription request")
		}
		w.Close()

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/audio/transcriptions", &body)
		if err != nil {
			return "", apperr.Wrap(err, apperr.CodeInternal, "build transcription request")
		}
		req.Header.Set("Content-Type", w.FormDataContentType())
		c.authorize(req)

		data, err := c.do(req, "transcription")
		if err != nil {
			return "", err
		}
		var out struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal(data, &out); err != nil {
			return "", apperr.Wrap(err, apperr.CodeRecognitionFailed, "unmarshal transcription")
		}
		return strings.TrimSpace(out.Text), nil
	})
}

// Synthesize converts text to WAV audio at the given speaking rate.
func (c *Client) Synthesize(ctx context.Context, text string, rate float64) ([]byte, error) {
	ctx, span := trace.StartSpan(ctx, "synthesize")
	defer span.End()
	span.SetAttr("chars", len(text))

	return resilience.ExecuteWithResult(c.breaker, func() ([]byte, error) {
		reqBody, err := json.Marshal(map[string]any{
			"model":           c.models.TTS,
			"voice":           c.models.Voice,
			"input":           text,
			"speed":           rate,
			"response_format": "wav",
		})
		if err != nil {
			return nil, apperr.Wrap(err, apperr.CodeInternal, "marshal speech request")
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/audio/speech", bytes.NewReader(reqBody))
		if err != nil {
			return nil, apperr.Wrap(err, apperr.CodeInternal, "build speech request")
		}
		req.Header.Set("Content-Type", "application/json")
		c.authorize(req)

		data, err := c.do(req, "speech")
		if err != nil {
			if appErr, ok := err.(*apperr.AppError); ok && appErr.Code == apperr.CodeRecognitionFailed {
				return nil, apperr.Wrap(appErr, apperr.CodeSynthesisFailed, "speech synthesis failed")
			}
			return nil, err
		}
		return data, nil
	})
}

// chat sends a single-turn vision prompt and returns the reply content.
func (c *Client) chat(ctx context.Context, model, prompt string, imageData []byte) (string, error) {
	return resilience.ExecuteWithResult(c.breaker, func() (string, error) {
		dataURL := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(imageData)
		reqBody, err := json.Marshal(chatRequest{
			Model: model,
			Messages: []chatMessage{{
				Role: "user",
				Content: []contentPart{
					{Type: "text", Text: prompt},
					{Type: "image_url", ImageURL: &imageURL{URL: dataURL}},
				},
			}},
			MaxTokens: 300,
		})
		if err != nil {
			return "", apperr.Wrap(err, apperr.CodeInternal, "marshal chat request")
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(reqBody))
		if err != nil {
			return "", apperr.Wrap(err, apperr.CodeInternal, "build chat request")
		}
		req.Header.Set("Content-Type", "application/json")
		c.authorize(req)

		data, err := c.do(req, "chat")
		if err != nil {
			return "", err
		}

		var out chatResponse
		if err := json.Unmarshal(data, &out); err != nil {
			return "", apperr.Wrap(err, apperr.CodeRecognitionFailed, "unmarshal chat response")
		}
		if len(out.Choices) == 0 {
			return "", apperr.New(apperr.CodeRecognitionFailed, "no choices in chat response")
		}
		return strings.TrimSpace(out.Choices[0].Message.Content), nil
	})
}

func (c *Client) authorize(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

// do executes req and returns the body, mapping failures to the error taxonomy.
func (c *Client) do(req *http.Request, op string) ([]byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		if req.Context().Err() != nil {
			return nil, apperr.Wrap(err, apperr.CodeCancelled, op+" cancelled")
		}
		return nil, apperr.Wrap(err, apperr.CodeInferenceDown, op+" request failed")
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeInferenceDown, op+" read body")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp.StatusCode, op)
	}
	return data, nil
}

func statusError(status int, op string) error {
	switch {
	case status == http.StatusTooManyRequests:
		return apperr.Newf(apperr.CodeRateLimited, "%s rate limited", op)
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return apperr.Newf(apperr.CodeTimeout, "%s timed out", op)
	case status >= 500:
		return apperr.Newf(apperr.CodeInferenceDown, "%s failed: HTTP %d", op, status)
	default:
		return apperr.Newf(apperr.CodeRecognitionFailed, "%s failed: HTTP %d", op, status)
	}
}

// stripFences removes a markdown code fence wrapper if the model added one.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// chat wire types (OpenAI-compatible).
type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string        `json:"role"`
	Content []contentPart `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}
