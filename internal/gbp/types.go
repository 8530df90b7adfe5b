package gbp

import (
	"errors"
	"strings"
	"time"
)

// Review is one platform review as returned by the list call.
type Review struct {
	ResourceName string
	ReviewerName string
	Rating       int
	Comment      string
	ReviewTime   time.Time
	HasReply     bool
	ReplyText    string
}

// APIError carries the platform's status code so callers can classify.
type APIError struct {
	Op         string
	StatusCode int
	Status     string
	Message    string
}

func (e *APIError) Error() string { return e.Message }

// IsRetryable reports whether err is a transient platform failure
// (timeout, 429, or 5xx) worth retrying with backoff.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429 || apiErr.StatusCode >= 500
	}
	// Network-level errors (timeouts, resets) surface as plain errors.
	return true
}

// IsAuthError reports whether err means our access has been revoked.
func IsAuthError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && (apiErr.StatusCode == 401 || apiErr.StatusCode == 403)
}

// IsQuotaError reports whether err is the platform quota/rate limit.
func IsQuotaError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) &&
		(apiErr.StatusCode == 429 || apiErr.Status == "RESOURCE_EXHAUSTED")
}

// IsVerificationError reports whether err means the location is not
// verified on the platform.
func IsVerificationError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) &&
		strings.Contains(strings.ToLower(apiErr.Message), "not verified")
}

// listReviewsResponse is one page of the review list call.
type listReviewsResponse struct {
	Reviews       []rawReview `json:"reviews"`
	NextPageToken string      `json:"nextPageToken"`
}

var starWords = map[string]int{
	"ONE": 1, "TWO": 2, "THREE": 3, "FOUR": 4, "FIVE": 5,
}

type rawReview struct {
	Name     string `json:"name"`
	Reviewer struct {
		DisplayName string `json:"displayName"`
	} `json:"reviewer"`
	StarRating interface{} `json:"starRating"`
	Comment    string      `json:"comment"`
	CreateTime string      `json:"createTime"`
	UpdateTime string      `json:"updateTime"`
	Reply      struct {
		Comment string `json:"comment"`
	} `json:"reviewReply"`
}

func (r rawReview) toReview() (Review, bool) {
	name := strings.TrimSpace(r.Name)
	if name == "" {
		return Review{}, false
	}

	// The platform returns ratings as the words ONE..FIVE; older payloads
	// use plain numbers.
	rating := 0
	switch v := r.StarRating.(type) {
	case string:
		rating = starWords[strings.ToUpper(v)]
	case float64:
		rating = int(v)
	}

	reviewer := strings.TrimSpace(r.Reviewer.DisplayName)
	if reviewer == "" {
		reviewer = "Anonymous"
	}

	reply := strings.TrimSpace(r.Reply.Comment)

	return Review{
		ResourceName: name,
		ReviewerName: reviewer,
		Rating:       rating,
		Comment:      strings.TrimSpace(r.Comment),
		ReviewTime:   parseTime(r.CreateTime, r.UpdateTime),
		HasReply:     reply != "",
		ReplyText:    reply,
	}, true
}

func parseTime(candidates ...string) time.Time {
	for _, s := range candidates {
		if s == "" {
			continue
		}
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
