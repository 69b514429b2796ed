package sampledata

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/okian/celestial/internal/adapters/tabular"
	"github.com/okian/celestial/internal/domain/model"
)

// ErrStatus is returned when the service answers with an unexpected status.
var ErrStatus = errors.New("unexpected status")

// ErrVerify is returned when an export does not match its submission.
var ErrVerify = errors.New("export verification failed")

// Client talks to the classifier HTTP API.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client with the given request timeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// Health checks GET /healthz.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", http.NoBody)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("health check: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: health %d", ErrStatus, resp.StatusCode)
	}
	return nil
}

// Submit uploads a CSV document as a multipart form and returns the
// classification reply.
func (c *Client) Submit(ctx context.Context, filename string, data []byte) (Submission, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return Submission{}, err
	}
	if _, err := part.Write(data); err != nil {
		return Submission{}, err
	}
	if err := mw.Close(); err != nil {
		return Submission{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/classify", &body)
	if err != nil {
		return Submission{}, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return Submission{}, fmt.Errorf("submit %s: %w", filename, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Submission{}, fmt.Errorf("read reply: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return Submission{}, fmt.Errorf("%w: classify %d: %s", ErrStatus, resp.StatusCode, bytes.TrimSpace(raw))
	}

	var sub Submission
	if err := json.Unmarshal(raw, &sub); err != nil {
		return Submission{}, fmt.Errorf("decode reply: %w", err)
	}
	return sub, nil
}

// Export downloads the CSV export of a stored result.
func (c *Client) Export(ctx context.Context, id string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/results/"+url.PathEscape(id), http.NoBody)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("export %s: %w", id, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: export %d", ErrStatus, resp.StatusCode)
	}
	return raw, nil
}

// Verify checks that an export holds the canonical columns plus Prediction,
// one row per submitted prediction, and the same labels in the same order.
func Verify(ctx context.Context, sub Submission, export []byte) error {
	parsed, err := tabular.ParseBytes(ctx, export)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrVerify, err)
	}
	t := parsed.Table

	want := tabular.Header()
	if len(t.Header) != len(want) {
		return fmt.Errorf("%w: header has %d columns, want %d", ErrVerify, len(t.Header), len(want))
	}
	for i := range want {
		if t.Header[i] != want[i] {
			return fmt.Errorf("%w: column %d is %q, want %q", ErrVerify, i, t.Header[i], want[i])
		}
	}
	if t.Len() != sub.Rows || t.Len() != len(sub.Predictions) {
		return fmt.Errorf("%w: %d rows exported, %d submitted", ErrVerify, t.Len(), sub.Rows)
	}
	for i, p := range t.Column(model.PredictionColumn) {
		if !model.Label(p).Valid() {
			return fmt.Errorf("%w: row %d has label %q", ErrVerify, i, p)
		}
		if p != sub.Predictions[i] {
			return fmt.Errorf("%w: row %d is %q, reply said %q", ErrVerify, i, p, sub.Predictions[i])
		}
	}
	return nil
}
