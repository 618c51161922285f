package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"

	"github.com/rewired-gh/nightrate/internal/models"
)

// printDecisions writes one row per date.
func printDecisions(w io.Writer, decisions []*models.Decision, currency string) {
	fmt.Fprintf(w, "%-10s  %-3s  %8s  %6s  %6s  %-24s  %s\n", "DATE", "DAY", "PRICE", "BASE", "CONF", "EVENT", "FACTORS")
	fmt.Fprintln(w, strings.Repeat("-", 100))

	for _, d := range decisions {
		event := "-"
		if d.HasEvent() {
			event = truncate(d.EventName, 24)
		}
		fmt.Fprintf(w, "%-10s  %-3s  %8s  %6s  %6.2f  %-24s  %s\n",
			models.FormatDate(d.Date),
			d.Date.Weekday().String()[:3],
			currency+d.SuggestedPrice.StringFixed(0),
			d.BasePrice.StringFixed(0),
			d.Confidence,
			event,
			strings.Join(d.Reasoning.Factors, "; "),
		)
	}
}

// printSummary writes the average rate and revenue at full occupancy.
func printSummary(w io.Writer, decisions []*models.Decision, currency string) {
	if len(decisions) == 0 {
		return
	}

	total := decimal.Zero
	events := 0
	for _, d := range decisions {
		total = total.Add(d.SuggestedPrice)
		if d.HasEvent() {
			events++
		}
	}
	avg := total.Div(decimal.NewFromInt(int64(len(decisions)))).Round(0)

	fmt.Fprintln(w, strings.Repeat("-", 100))
	fmt.Fprintf(w, "Nights: %d (%d with events)\n", len(decisions), events)
	fmt.Fprintf(w, "Average rate: %s%s\n", currency, humanize.Comma(avg.IntPart()))
	fmt.Fprintf(w, "Revenue at full occupancy: %s%s\n", currency, humanize.Comma(total.Round(0).IntPart()))
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
