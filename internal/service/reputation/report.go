package reputation

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tensormd/repops/internal/domain"
)

// weekWindow is the report lookback.
const weekWindow = 7 * 24 * time.Hour

// weekStats aggregates one client's reviews over the report window.
type weekStats struct {
	Total   int
	ByStar  [6]int // index 1..5
	Replied int
	Pending int
}

// WeeklyReport builds and persists a 7-day review digest per active
// client. Clients with no reviews in the window still get a report so
// the weekly email never goes silent.
func (s *Service) WeeklyReport(ctx context.Context) (ReportResult, error) {
	var res ReportResult

	end := s.now().UTC()
	start := end.Add(-weekWindow)

	clients, err := s.repo.ActiveClients(ctx)
	if err != nil {
		return res, fmt.Errorf("list active clients: %w", err)
	}

	for _, client := range clients {
		reviews, err := s.repo.ReviewsInWindow(ctx, client.ID, start, end)
		if err != nil {
			log.Printf("[reputation] weekly report for client %s: %v", client.ID, err)
			continue
		}

		stats := tallyWeek(reviews)
		report := &domain.WeeklyReport{
			ID:        uuid.NewString(),
			ClientID:  client.ID,
			WeekStart: start,
			WeekEnd:   end,
			Summary:   renderWeekly(client.Name, start, end, stats),
			CreatedAt: end,
		}
		if err := s.repo.InsertWeeklyReport(ctx, report); err != nil {
			log.Printf("[reputation] save weekly report for client %s: %v", client.ID, err)
			continue
		}
		res.Reports++
	}

	log.Printf("[reputation] weekly reports done: reports=%d window=%s..%s",
		res.Reports, start.Format("2006-01-02"), end.Format("2006-01-02"))
	return res, nil
}

func tallyWeek(reviews []domain.Review) weekStats {
	var st weekStats
	for _, r := range reviews {
		st.Total++
		if r.Rating >= 1 && r.Rating <= 5 {
			st.ByStar[r.Rating]++
		}
		if r.HasReply || r.Status == domain.ReviewPosted {
			st.Replied++
		}
		if r.Status == domain.ReviewNeedsApproval || r.Status == domain.ReviewDrafted {
			st.Pending++
		}
	}
	return st
}

func renderWeekly(clientName string, start, end time.Time, st weekStats) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Weekly review report: %s\n\n", clientName)
	fmt.Fprintf(&b, "Window: %s to %s\n\n", start.Format("2006-01-02"), end.Format("2006-01-02"))
	fmt.Fprintf(&b, "New reviews: %d\n\n", st.Total)
	if st.Total == 0 {
		b.WriteString("No new reviews this week.\n")
		return b.String()
	}
	b.WriteString("| Stars | Count |\n|---|---|\n")
	for star := 5; star >= 1; star-- {
		fmt.Fprintf(&b, "| %d | %d |\n", star, st.ByStar[star])
	}
	fmt.Fprintf(&b, "\nReplied: %d\nPending approval: %d\n", st.Replied, st.Pending)
	return b.String()
}
