package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"kioskd/pkg/channel"
)

// FBS is the library-system collaborator the engine talks to on behalf
// of kiosks. The wire protocol behind it is opaque to this repository;
// implementations only promise these operations.
type FBS interface {
	Authenticate(ctx context.Context, username, pin string) (patronID string, err error)
	Loans(ctx context.Context, patronID string) ([]channel.Item, error)
	Holds(ctx context.Context, patronID string) ([]channel.Item, error)
	Fines(ctx context.Context, patronID string) ([]channel.Item, error)
	Checkout(ctx context.Context, patronID, itemID string) (channel.Item, error)
	Checkin(ctx context.Context, itemID string) (channel.Item, error)
}

// ErrPatronRejected reports failed patron authentication.
var ErrPatronRejected = errors.New("patron rejected by library system")

// HTTPFBS talks to an FBS gateway over HTTP with a bearer credential.
type HTTPFBS struct {
	client  *http.Client
	baseURL string
	token   string
}

// NewHTTPFBS creates an FBS client against the given gateway base URL.
func NewHTTPFBS(baseURL, token string) (*HTTPFBS, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, errors.New("fbs base url is required")
	}
	return &HTTPFBS{
		client:  &http.Client{Timeout: 15 * time.Second},
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
	}, nil
}

func (f *HTTPFBS) Authenticate(ctx context.Context, username, pin string) (string, error) {
	var out struct {
		PatronID string `json:"patron_id"`
	}
	err := f.post(ctx, "/v1/patrons/authenticate", map[string]any{
		"username": username,
		"pin":      pin,
	}, &out)
	if err != nil {
		return "", err
	}
	if out.PatronID == "" {
		return "", ErrPatronRejected
	}
	return out.PatronID, nil
}

func (f *HTTPFBS) Loans(ctx context.Context, patronID string) ([]channel.Item, error) {
	return f.items(ctx, "/v1/patrons/"+patronID+"/loans")
}

func (f *HTTPFBS) Holds(ctx context.Context, patronID string) ([]channel.Item, error) {
	return f.items(ctx, "/v1/patrons/"+patronID+"/holds")
}

func (f *HTTPFBS) Fines(ctx context.Context, patronID string) ([]channel.Item, error) {
	return f.items(ctx, "/v1/patrons/"+patronID+"/fines")
}

func (f *HTTPFBS) Checkout(ctx context.Context, patronID, itemID string) (channel.Item, error) {
	var item channel.Item
	err := f.post(ctx, "/v1/circulation/checkout", map[string]any{
		"patron_id": patronID,
		"item_id":   itemID,
	}, &item)
	return item, err
}

func (f *HTTPFBS) Checkin(ctx context.Context, itemID string) (channel.Item, error) {
	var item channel.Item
	err := f.post(ctx, "/v1/circulation/checkin", map[string]any{
		"item_id": itemID,
	}, &item)
	return item, err
}

func (f *HTTPFBS) items(ctx context.Context, path string) ([]channel.Item, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	var items []channel.Item
	if err := f.do(req, &items); err != nil {
		return nil, err
	}
	return items, nil
}

func (f *HTTPFBS) post(ctx context.Context, path string, payload map[string]any, dest any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return f.do(req, dest)
}

func (f *HTTPFBS) do(req *http.Request, dest any) error {
	if f.token != "" {
		req.Header.Set("Authorization", "Bearer "+f.token)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("fbs request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		_, _ = io.Copy(io.Discard, resp.Body)
		return ErrPatronRejected
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("fbs unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	if dest == nil {
		_, err := io.Copy(io.Discard, resp.Body)
		return err
	}
	return json.NewDecoder(resp.Body).Decode(dest)
}
