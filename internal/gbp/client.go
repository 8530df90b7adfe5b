// Package gbp wraps the review platform API: paginated review listing per
// location and reply posting per review, authenticated through an OAuth2
// refresh-token flow. Error classification here drives the caller's
// retry-vs-alert decisions.
package gbp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/oauth2"

	"github.com/tensormd/repops/internal/config"
)

// Client talks to the review platform on behalf of one connected business
// account (one refresh token).
type Client struct {
	baseURL    string
	pageSize   int
	maxPages   int
	httpClient *http.Client
}

// NewClient builds a client whose HTTP transport injects freshly refreshed
// access tokens. Retries are left to the caller's backoff wrapper so that
// only explicitly retryable failures are repeated.
func NewClient(ctx context.Context, cfg config.ReviewsConfig, refreshToken string) *Client {
	oc := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint:     oauth2.Endpoint{TokenURL: cfg.TokenURL},
	}
	ts := oc.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})

	httpClient := oauth2.NewClient(ctx, oauth2.ReuseTokenSource(nil, ts))
	httpClient.Timeout = cfg.Timeout()

	return &Client{
		baseURL:    cfg.BaseURL,
		pageSize:   cfg.PageSize,
		maxPages:   cfg.MaxPages,
		httpClient: httpClient,
	}
}

// ListReviews pages through all reviews for a location resource name
// ("accounts/{id}/locations/{id}"), newest first.
func (c *Client) ListReviews(ctx context.Context, locationName string) ([]Review, error) {
	if !strings.HasPrefix(locationName, "accounts/") || !strings.Contains(locationName, "/locations/") {
		return nil, fmt.Errorf("location name %q must look like accounts/{id}/locations/{id}", locationName)
	}

	var (
		out       []Review
		pageToken string
	)

	for page := 0; page < c.maxPages; page++ {
		params := url.Values{}
		params.Set("pageSize", strconv.Itoa(c.pageSize))
		params.Set("orderBy", "updateTime desc")
		if pageToken != "" {
			params.Set("pageToken", pageToken)
		}

		body, err := c.doGet(ctx, fmt.Sprintf("/%s/reviews", locationName), params)
		if err != nil {
			return nil, err
		}

		var parsed listReviewsResponse
		if err := json.Unmarshal(body, &parsed); err != nil {
			return nil, fmt.Errorf("decoding reviews page: %w", err)
		}

		for _, raw := range parsed.Reviews {
			r, ok := raw.toReview()
			if !ok {
				continue
			}
			out = append(out, r)
		}

		pageToken = parsed.NextPageToken
		if pageToken == "" {
			break
		}
	}
	return out, nil
}

// PostReply publishes a public reply on the review resource name
// ("accounts/{id}/locations/{id}/reviews/{id}").
func (c *Client) PostReply(ctx context.Context, reviewName, text string) error {
	if !strings.HasPrefix(reviewName, "accounts/") || !strings.Contains(reviewName, "/reviews/") {
		return fmt.Errorf("review name %q must look like accounts/{id}/locations/{id}/reviews/{id}", reviewName)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return fmt.Errorf("reply text is empty")
	}

	payload, _ := json.Marshal(map[string]string{"comment": text})
	req, err := http.NewRequestWithContext(ctx, http.MethodPut,
		fmt.Sprintf("%s/%s/reply", c.baseURL, reviewName), bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("creating reply request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post reply: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return apiErrorFrom(resp, "post reply")
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}

func (c *Client) doGet(ctx context.Context, path string, params url.Values) ([]byte, error) {
	fullURL := c.baseURL + path
	if len(params) > 0 {
		fullURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, apiErrorFrom(resp, "list reviews")
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	return body, nil
}

func apiErrorFrom(resp *http.Response, op string) *APIError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	msg := fmt.Sprintf("%s failed (%d)", op, resp.StatusCode)

	var payload struct {
		Error struct {
			Message string `json:"message"`
			Status  string `json:"status"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error.Message != "" {
		msg = fmt.Sprintf("%s: %s", msg, payload.Error.Message)
	}

	return &APIError{
		Op:         op,
		StatusCode: resp.StatusCode,
		Status:     payload.Error.Status,
		Message:    msg,
	}
}
