package usecase

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"StoryIndexer/internal/domain"
)

// Report summarizes one pipeline run.
type Report struct {
	Name     string
	Started  time.Time
	Finished time.Time
	Fetched  int
	Accepted int
	Saved    int
	Labels   int
	Commits  int
	Indexed  int
	Rejected map[Verdict]int
	Failures []domain.RowFailure
}

func newReport(name string, started time.Time) Report {
	return Report{
		Name:     name,
		Started:  started,
		Rejected: map[Verdict]int{},
	}
}

func (r *Report) add(result domain.SaveResult) {
	if result.Inserted {
		r.Saved++
	}
	r.Labels += result.Labels
	r.Failures = append(r.Failures, result.Failures...)
}

// Duration returns the wall time of the run.
func (r Report) Duration() time.Duration {
	if r.Finished.IsZero() {
		return 0
	}
	return r.Finished.Sub(r.Started)
}

// Summary formats the report as a short plain-text digest.
func (r Report) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", r.Name)
	fmt.Fprintf(&b, "Fetched: %d, accepted: %d, saved: %d, labels: %d\n", r.Fetched, r.Accepted, r.Saved, r.Labels)

	if len(r.Rejected) > 0 {
		verdicts := make([]string, 0, len(r.Rejected))
		for v := range r.Rejected {
			verdicts = append(verdicts, string(v))
		}
		sort.Strings(verdicts)

		parts := make([]string, 0, len(verdicts))
		for _, v := range verdicts {
			parts = append(parts, fmt.Sprintf("%s=%d", v, r.Rejected[Verdict(v)]))
		}
		fmt.Fprintf(&b, "Rejected: %s\n", strings.Join(parts, ", "))
	}

	if len(r.Failures) > 0 {
		fmt.Fprintf(&b, "Row failures: %d\n", len(r.Failures))
	}
	fmt.Fprintf(&b, "Indexed: %d\nDuration: %s", r.Indexed, r.Duration().Round(time.Millisecond))

	return b.String()
}
