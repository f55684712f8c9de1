package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kimhsiao/resaletally/internal/models"
	syncpkg "github.com/kimhsiao/resaletally/internal/sync"
)

// codeNoRows is the PostgREST error code for a single-row request that
// matched nothing.
const codeNoRows = "PGRST116"

// PostgRESTConfig holds Supabase / PostgREST configuration.
type PostgRESTConfig struct {
	URL     string        // Project URL, e.g. https://xyz.supabase.co
	APIKey  string        // anon key
	Table   string        // default: user_data
	Timeout time.Duration // per request (default: 30s)
}

// APIError is a non-2xx PostgREST response.
type APIError struct {
	StatusCode int
	Code       string `json:"code"`
	Message    string `json:"message"`
	Details    string `json:"details"`
	Hint       string `json:"hint"`
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("postgrest %d %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("postgrest %d: %s", e.StatusCode, e.Message)
}

// PostgRESTStore talks to the user_data table through the PostgREST API
// that Supabase exposes under /rest/v1.
type PostgRESTStore struct {
	client  *http.Client
	baseURL string
	apiKey  string
	table   string

	beacons
}

// NewPostgRESTStore creates a new PostgRESTStore.
func NewPostgRESTStore(cfg PostgRESTConfig) (*PostgRESTStore, error) {
	u, err := url.Parse(strings.TrimSuffix(strings.TrimSpace(cfg.URL), "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid PostgREST url %q", cfg.URL)
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("PostgREST api key is required")
	}

	table := cfg.Table
	if table == "" {
		table = models.RemoteDocument{}.TableName()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &PostgRESTStore{
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				IdleConnTimeout:     90 * time.Second,
				MaxIdleConnsPerHost: 4,
			},
		},
		baseURL: u.String() + "/rest/v1/" + url.PathEscape(table),
		apiKey:  cfg.APIKey,
		table:   table,
	}, nil
}

// Fetch returns the row for userID.
func (s *PostgRESTStore) Fetch(ctx context.Context, userID string) (*models.RemoteDocument, error) {
	q := url.Values{}
	q.Set("user_id", "eq."+userID)
	q.Set("select", "*")

	req, err := s.newRequest(ctx, http.MethodGet, "?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", userID, err)
	}
	defer resp.Body.Close()

	if err := checkResponse(resp); err != nil {
		if apiErr, ok := err.(*APIError); ok && apiErr.Code == codeNoRows {
			return nil, syncpkg.ErrRemoteNotFound
		}
		return nil, err
	}

	var rows []models.RemoteDocument
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return nil, fmt.Errorf("decode %s: %w", userID, err)
	}
	if len(rows) == 0 {
		return nil, syncpkg.ErrRemoteNotFound
	}
	return &rows[0], nil
}

// Upsert inserts or merges the row keyed by user_id.
func (s *PostgRESTStore) Upsert(ctx context.Context, doc *models.RemoteDocument) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}

	req, err := s.newRequest(ctx, http.MethodPost, "?on_conflict=user_id", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Prefer", "resolution=merge-duplicates,return=minimal")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("upsert %s: %w", doc.UserID, err)
	}
	defer resp.Body.Close()

	return checkResponse(resp)
}

// Ping issues a cheap read against the table.
func (s *PostgRESTStore) Ping(ctx context.Context) error {
	req, err := s.newRequest(ctx, http.MethodGet, "?select=user_id&limit=1", nil)
	if err != nil {
		return err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	defer resp.Body.Close()

	return checkResponse(resp)
}

// SendBeacon upserts doc in the background.
func (s *PostgRESTStore) SendBeacon(doc *models.RemoteDocument) {
	s.send("postgrest", s.Upsert, doc)
}

// WaitBeacons waits for in-flight beacons.
func (s *PostgRESTStore) WaitBeacons(timeout time.Duration) bool {
	return s.wait(timeout)
}

func (s *PostgRESTStore) newRequest(ctx context.Context, method, query string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+query, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("apikey", s.apiKey)
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func checkResponse(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	apiErr := &APIError{StatusCode: resp.StatusCode}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := json.Unmarshal(body, apiErr); err != nil || apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(string(body))
		if apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
	}
	return apiErr
}

var (
	_ syncpkg.RemoteStore  = (*PostgRESTStore)(nil)
	_ syncpkg.BeaconSender = (*PostgRESTStore)(nil)
	_ syncpkg.Pinger       = (*PostgRESTStore)(nil)
)
