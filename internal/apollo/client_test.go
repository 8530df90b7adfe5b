package apollo

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tensormd/repops/internal/config"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(config.ApolloConfig{
		APIKey:         "test-key",
		BaseURL:        srv.URL,
		TimeoutSeconds: 5,
	})
}

func TestSearchParsesShells(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/mixed_people/api_search", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-Api-Key"))

		var payload map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "Acme HVAC", payload["q_organization_name"])
		assert.Equal(t, float64(25), payload["per_page"])

		json.NewEncoder(w).Encode(map[string]any{
			"people": []map[string]any{
				{
					"id": "p1", "first_name": "Pat", "last_name": "Lee", "title": "Owner",
					"organization": map[string]any{"name": "Acme HVAC", "primary_domain": "acmehvac.com"},
					"city":         "Austin", "state": "TX",
				},
				{"first_name": "No", "last_name": "ID"}, // dropped: no person id
			},
		})
	})

	shells, err := c.Search(context.Background(), SearchQuery{OrgName: "Acme HVAC", Limit: 25})
	require.NoError(t, err)
	require.Len(t, shells, 1)
	assert.Equal(t, "p1", shells[0].PersonID)
	assert.Equal(t, "Acme HVAC", shells[0].OrgName)
	assert.Equal(t, "acmehvac.com", shells[0].OrgDomain)
	assert.Equal(t, "Owner", shells[0].Title)
}

func TestSearchClampsLimit(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, float64(50), payload["per_page"])
		json.NewEncoder(w).Encode(map[string]any{"people": []any{}})
	})

	_, err := c.Search(context.Background(), SearchQuery{Limit: 500})
	require.NoError(t, err)
}

func TestBulkEnrichBatchesOfTen(t *testing.T) {
	var batchSizes []int
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/people/bulk_match", r.URL.Path)
		var payload struct {
			People []map[string]string `json:"people"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		batchSizes = append(batchSizes, len(payload.People))

		out := make([]map[string]any, 0, len(payload.People))
		for _, p := range payload.People {
			out = append(out, map[string]any{
				"id":    p["person_id"],
				"email": p["person_id"] + "@acme.com",
			})
		}
		json.NewEncoder(w).Encode(map[string]any{"people": out})
	})

	ids := make([]string, 23)
	for i := range ids {
		ids[i] = "p" + string(rune('a'+i))
	}

	contacts, attempted, err := c.BulkEnrich(context.Background(), ids)
	require.NoError(t, err)
	assert.Equal(t, []int{10, 10, 3}, batchSizes)
	assert.Equal(t, 23, attempted)
	assert.Len(t, contacts, 23)
}

func TestBulkEnrichSkipsFailedBatch(t *testing.T) {
	call := 0
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		call++
		if call == 1 {
			// Non-retryable client error: the batch is dropped, not the run.
			w.WriteHeader(http.StatusForbidden)
			return
		}
		var payload struct {
			People []map[string]string `json:"people"`
		}
		json.NewDecoder(r.Body).Decode(&payload)
		out := make([]map[string]any, 0, len(payload.People))
		for _, p := range payload.People {
			out = append(out, map[string]any{"id": p["person_id"], "email": "x@y.com"})
		}
		json.NewEncoder(w).Encode(map[string]any{"people": out})
	})

	ids := make([]string, 15)
	for i := range ids {
		ids[i] = "p" + string(rune('a'+i))
	}

	contacts, attempted, err := c.BulkEnrich(context.Background(), ids)
	require.NoError(t, err)
	assert.Equal(t, 5, attempted, "only the second batch counts")
	assert.Len(t, contacts, 5)
}
