package evidence

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/miradorstack/mirador-responder/internal/models"
)

// HTTPSource reads evidence from a remote query endpoint.
type HTTPSource struct {
	baseURL    string
	queryPath  string
	httpClient *http.Client
}

// NewHTTPSource constructs a client targeting baseURL + queryPath.
func NewHTTPSource(baseURL, queryPath string, timeout time.Duration) *HTTPSource {
	return &HTTPSource{
		baseURL:   strings.TrimRight(baseURL, "/"),
		queryPath: queryPath,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Query posts the window and kinds and returns the evidence sorted by timestamp.
func (c *HTTPSource) Query(ctx context.Context, serviceID string, window models.TimeRange, kinds models.KindSet) ([]models.Evidence, error) {
	if c == nil {
		return nil, fmt.Errorf("evidence source not initialised")
	}
	if c.baseURL == "" {
		return nil, fmt.Errorf("evidence base URL not configured")
	}

	requested := make([]string, 0, len(kinds))
	for k := range kinds {
		requested = append(requested, string(k))
	}
	sort.Strings(requested)

	payload := map[string]any{
		"service_id": serviceID,
		"start":      window.Start.UTC().Format(time.RFC3339Nano),
		"end":        window.End.UTC().Format(time.RFC3339Nano),
		"kinds":      requested,
	}

	var response struct {
		Evidence []models.Evidence `json:"evidence"`
	}
	if err := c.postJSON(ctx, c.resolvePath(c.queryPath), payload, &response); err != nil {
		return nil, fmt.Errorf("evidence query failed: %w", err)
	}

	out := make([]models.Evidence, 0, len(response.Evidence))
	for _, item := range response.Evidence {
		if err := item.Validate(); err != nil {
			return nil, fmt.Errorf("evidence query returned malformed item: %w", err)
		}
		if item.ServiceID() != serviceID || !window.Contains(item.Timestamp()) || !kinds.Has(item.Kind) {
			continue
		}
		out = append(out, item)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp().Before(out[j].Timestamp()) })
	return out, nil
}

func (c *HTTPSource) resolvePath(p string) string {
	cleaned := "/" + strings.TrimLeft(p, "/")
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return c.baseURL + cleaned
	}
	u.Path = path.Join(u.Path, cleaned)
	return u.String()
}

func (c *HTTPSource) postJSON(ctx context.Context, endpoint string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("evidence endpoint returned %s", resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
