package services

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"bin-dates/models"
	"bin-dates/utils"
)

// Upcoming is one stream's next collection relative to today.
type Upcoming struct {
	Stream    models.WasteStream
	Date      time.Time
	DaysUntil int
	IsToday   bool
}

// Summary orders a CollectionResult by date for display.
type Summary struct {
	UPRN     models.UPRN
	Address  string
	Today    time.Time
	Upcoming []Upcoming
	// Next holds every stream sharing the earliest date.
	Next []models.WasteStream
}

type SummaryService struct {
	logger *utils.Logger
}

func NewSummaryService(logger *utils.Logger) *SummaryService {
	return &SummaryService{logger: logger}
}

func (s *SummaryService) Generate(uprn models.UPRN, address string, r models.CollectionResult, policy DayPolicy) *Summary {
	sum := &Summary{
		UPRN:    uprn,
		Address: address,
		Today:   policy.Today(),
	}

	for _, stream := range models.WasteStreams {
		date := r.Date(stream)
		sum.Upcoming = append(sum.Upcoming, Upcoming{
			Stream:    stream,
			Date:      date,
			DaysUntil: policy.DaysUntil(date),
			IsToday:   policy.IsToday(date),
		})
	}

	// Stable so streams due on the same day keep display order.
	sort.SliceStable(sum.Upcoming, func(i, j int) bool {
		return sum.Upcoming[i].DaysUntil < sum.Upcoming[j].DaysUntil
	})

	for _, u := range sum.Upcoming {
		if u.DaysUntil != sum.Upcoming[0].DaysUntil {
			break
		}
		sum.Next = append(sum.Next, u.Stream)
	}

	for _, u := range sum.Upcoming {
		if u.DaysUntil < 0 {
			s.logger.Warn("[summary] %s date %s is already in the past", u.Stream, u.Date.Format(time.DateOnly))
		}
	}
	return sum
}

func (s *SummaryService) Print(w io.Writer, sum *Summary) {
	sep := strings.Repeat("═", 54)
	thin := strings.Repeat("─", 54)

	fmt.Fprintf(w, "\n\033[1;35m%s\033[0m\n", sep)
	fmt.Fprintf(w, "\033[1;35m  🗑  AMBER VALLEY BIN DATES\033[0m\n")
	fmt.Fprintf(w, "\033[1;35m%s\033[0m\n\n", sep)

	fmt.Fprintf(w, "\033[1;33m  Property\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	if sum.Address != "" {
		fmt.Fprintf(w, "  Address : %s\n", truncate(sum.Address, 50))
	}
	fmt.Fprintf(w, "  UPRN    : \033[1m%s\033[0m\n", sum.UPRN)
	fmt.Fprintf(w, "  Today   : %s\n\n", sum.Today.Format("Mon 02 Jan 2006"))

	fmt.Fprintf(w, "\033[1;33m  Next collections\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	for _, u := range sum.Upcoming {
		fmt.Fprintf(w, "  %-10s %s  %s\n", u.Stream, u.Date.Format("Mon 02 Jan 2006"), describeDays(u))
	}

	fmt.Fprintf(w, "\n\033[1;35m%s\033[0m\n\n", sep)
}

func describeDays(u Upcoming) string {
	switch {
	case u.IsToday:
		return "\033[1;32mTODAY\033[0m"
	case u.DaysUntil == 1:
		return "tomorrow"
	case u.DaysUntil < 0:
		return fmt.Sprintf("\033[1;31m%d days ago\033[0m", -u.DaysUntil)
	}
	return fmt.Sprintf("in %d days", u.DaysUntil)
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}
