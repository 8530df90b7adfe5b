// Package apollo wraps the contact search and enrichment API. Search is a
// zero-cost call returning partial "shells"; bulk enrichment is the costed
// call resolving shells into contacts with verified emails.
package apollo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"

	"github.com/tensormd/repops/internal/config"
	"github.com/tensormd/repops/internal/domain"
	"github.com/tensormd/repops/internal/pkg/httpretry"
)

// bulkMatchMax is the API's hard limit per bulk enrichment call.
const bulkMatchMax = 10

// Client is the search/enrich API client.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient httpretry.HTTPDoer
}

// NewClient creates a client with retrying transport.
func NewClient(cfg config.ApolloConfig) *Client {
	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		httpClient: httpretry.New(&http.Client{
			Timeout: cfg.Timeout(),
		}, 3),
	}
}

// SearchQuery filters the people search. Limit is clamped to the API page
// maximum of 50.
type SearchQuery struct {
	OrgName    string
	OrgDomains []string
	Titles     []string
	Limit      int
}

func (c *Client) doPost(ctx context.Context, path string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Api-Key", c.apiKey)
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(raw)), nil
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, truncate(string(body), 300))
	}
	return body, nil
}

// Search runs the zero-cost people search and returns contact shells.
func (c *Client) Search(ctx context.Context, q SearchQuery) ([]domain.Shell, error) {
	limit := q.Limit
	if limit <= 0 || limit > 50 {
		limit = 50
	}

	payload := map[string]any{"page": 1, "per_page": limit}
	if q.OrgName != "" {
		payload["q_organization_name"] = q.OrgName
	}
	if len(q.OrgDomains) > 0 {
		payload["q_organization_domains"] = q.OrgDomains
	}
	if len(q.Titles) > 0 {
		payload["person_titles"] = q.Titles
	}

	body, err := c.doPost(ctx, "/mixed_people/api_search", payload)
	if err != nil {
		return nil, fmt.Errorf("people search: %w", err)
	}

	var parsed searchResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decoding search response: %w", err)
	}

	people := parsed.People
	if len(people) == 0 {
		people = parsed.Contacts
	}

	shells := make([]domain.Shell, 0, len(people))
	for _, p := range people {
		id := p.id()
		if id == "" {
			continue
		}
		shells = append(shells, domain.Shell{
			PersonID:  id,
			FirstName: p.FirstName,
			LastName:  p.LastName,
			Title:     p.Title,
			OrgName:   p.orgName(),
			OrgDomain: p.orgDomain(),
			City:      p.City,
			State:     p.State,
		})
	}
	if len(shells) > limit {
		shells = shells[:limit]
	}
	return shells, nil
}

// BulkEnrich resolves shells into verified contacts, spending enrichment
// quota. IDs are sent in batches of at most 10; a failed batch is logged and
// skipped so the rest of the run continues.
func (c *Client) BulkEnrich(ctx context.Context, personIDs []string) ([]domain.EnrichedContact, int, error) {
	var (
		contacts  []domain.EnrichedContact
		attempted int
	)

	for start := 0; start < len(personIDs); start += bulkMatchMax {
		end := start + bulkMatchMax
		if end > len(personIDs) {
			end = len(personIDs)
		}
		batch := personIDs[start:end]

		got, err := c.bulkMatch(ctx, batch)
		if err != nil {
			log.Printf("[apollo] bulk enrich batch of %d failed, skipping: %v", len(batch), err)
			continue
		}
		attempted += len(batch)
		contacts = append(contacts, got...)

		if err := ctx.Err(); err != nil {
			return contacts, attempted, err
		}
	}
	return contacts, attempted, nil
}

func (c *Client) bulkMatch(ctx context.Context, ids []string) ([]domain.EnrichedContact, error) {
	people := make([]map[string]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		people = append(people, map[string]string{"person_id": id})
	}
	if len(people) == 0 {
		return nil, nil
	}

	body, err := c.doPost(ctx, "/people/bulk_match", map[string]any{"people": people})
	if err != nil {
		return nil, fmt.Errorf("bulk match: %w", err)
	}

	var parsed searchResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decoding bulk match response: %w", err)
	}

	matched := parsed.People
	if len(matched) == 0 {
		matched = parsed.Contacts
	}

	out := make([]domain.EnrichedContact, 0, len(matched))
	for _, p := range matched {
		id := p.id()
		if id == "" {
			continue
		}
		out = append(out, domain.EnrichedContact{
			PersonID:  id,
			FirstName: p.FirstName,
			LastName:  p.LastName,
			Title:     p.Title,
			OrgName:   p.orgName(),
			OrgDomain: p.orgDomain(),
			Email:     p.Email,
			City:      p.City,
			State:     p.State,
		})
	}
	return out, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
