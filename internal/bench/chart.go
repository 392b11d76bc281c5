package bench

import (
	"fmt"
	"io"
	"strings"
	"time"
)

// chartWidth is the length in cells of the longest bar.
const chartWidth = 40

// WriteChart renders results as a horizontal bar chart of mean latency.
// Bars are scaled to the slowest result.
func WriteChart(w io.Writer, title string, results ...Result) error {
	if title != "" {
		if _, err := fmt.Fprintln(w, title); err != nil {
			return err
		}
	}
	var slowest time.Duration
	labelWidth := 0
	for _, r := range results {
		slowest = max(slowest, r.Mean)
		labelWidth = max(labelWidth, len(r.Label))
	}
	for _, r := range results {
		cells := 0
		if slowest > 0 {
			cells = int(float64(chartWidth) * float64(r.Mean) / float64(slowest))
		}
		if r.Mean > 0 {
			cells = max(cells, 1)
		}
		bar := strings.Repeat("█", cells) + strings.Repeat("·", chartWidth-cells)
		if _, err := fmt.Fprintf(w, "%-*s |%s| %s\n", labelWidth, r.Label, bar, formatLatency(r.Mean)); err != nil {
			return err
		}
	}
	return nil
}

func formatLatency(d time.Duration) string {
	return fmt.Sprintf("%.3f ms", float64(d)/float64(time.Millisecond))
}
