// Package ocr turns document images into raw text through Google Cloud Vision.
package ocr

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/avivago/avivago-backend/pkg/config"
)

// JPEG and PNG magic bytes for image detection
var (
	jpegMagic = []byte{0xFF, 0xD8, 0xFF}
	pngMagic  = []byte{0x89, 0x50, 0x4E, 0x47}
)

// ErrNotImage is returned for uploads that are not JPEG or PNG
var ErrNotImage = errors.New("ocr: data is not a JPEG or PNG image")

// TextDetector reads all text on a document image
type TextDetector interface {
	DetectText(ctx context.Context, image []byte) (string, error)
}

// VisionClient calls the Cloud Vision images:annotate endpoint with
// DOCUMENT_TEXT_DETECTION.
type VisionClient struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
}

// NewVisionClient creates a Vision client from configuration
func NewVisionClient(cfg config.VisionConfig) *VisionClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &VisionClient{
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// DetectText returns the full text Vision read from the image, which is
// empty when the image has no text.
func (c *VisionClient) DetectText(ctx context.Context, image []byte) (string, error) {
	if !IsImage(image) {
		return "", ErrNotImage
	}

	payload := annotateRequest{
		Requests: []annotateImageRequest{{
			Image:    visionImage{Content: base64.StdEncoding.EncodeToString(image)},
			Features: []visionFeature{{Type: "DOCUMENT_TEXT_DETECTION"}},
			ImageContext: &imageContext{
				LanguageHints: []string{"es", "en"},
			},
		}},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("ocr: marshal request: %w", err)
	}

	endpoint := c.endpoint
	if c.apiKey != "" {
		endpoint += "?key=" + url.QueryEscape(c.apiKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("ocr: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("ocr: vision request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("ocr: read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ocr: vision returned %d: %s", resp.StatusCode, string(respBody))
	}

	var annotated annotateResponse
	if err := json.Unmarshal(respBody, &annotated); err != nil {
		return "", fmt.Errorf("ocr: parse response: %w", err)
	}
	if len(annotated.Responses) == 0 {
		return "", nil
	}

	r := annotated.Responses[0]
	if r.Error != nil && r.Error.Message != "" {
		return "", fmt.Errorf("ocr: vision error %d: %s", r.Error.Code, r.Error.Message)
	}
	if r.FullTextAnnotation != nil && r.FullTextAnnotation.Text != "" {
		return r.FullTextAnnotation.Text, nil
	}
	if len(r.TextAnnotations) > 0 {
		return r.TextAnnotations[0].Description, nil
	}
	return "", nil
}

// IsImage checks for JPEG or PNG magic bytes at the start of the data.
func IsImage(data []byte) bool {
	if len(data) < 4 {
		return false
	}
	return bytes.HasPrefix(data, jpegMagic) || bytes.HasPrefix(data, pngMagic)
}

type annotateRequest struct {
	Requests []annotateImageRequest `json:"requests"`
}

type annotateImageRequest struct {
	Image        visionImage     `json:"image"`
	Features     []visionFeature `json:"features"`
	ImageContext *imageContext   `json:"imageContext,omitempty"`
}

type visionImage struct {
	Content string `json:"content"`
}

type visionFeature struct {
	Type string `json:"type"`
}

type imageContext struct {
	LanguageHints []string `json:"languageHints,omitempty"`
}

type annotateResponse struct {
	Responses []annotateImageResponse `json:"responses"`
}

type annotateImageResponse struct {
	FullTextAnnotation *struct {
		Text string `json:"text"`
	} `json:"fullTextAnnotation,omitempty"`
	TextAnnotations []struct {
		Description string `json:"description"`
	} `json:"textAnnotations,omitempty"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}
