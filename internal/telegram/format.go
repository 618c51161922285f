package telegram

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/dustin/go-humanize/english"
	"github.com/shopspring/decimal"

	"github.com/rewired-gh/nightrate/internal/ingest"
	"github.com/rewired-gh/nightrate/internal/models"
)

const displayDate = "Mon 02/01/2006"

func money(currency string, d decimal.Decimal) string {
	return currency + humanize.Comma(d.Round(0).IntPart())
}

func bold(s string) string {
	return "*" + escapeMarkdownV2(s) + "*"
}

func formatWelcome() string {
	return "👋 " + bold("nightrate") + "\n\n" +
		escapeMarkdownV2("I suggest a nightly price from events, season, weekday and competitor prices.") +
		"\n\n" + escapeMarkdownV2("Send /help to see the commands.")
}

func formatHelp() string {
	lines := []string{
		"🤖 " + bold("Commands"),
		"",
		"📊 " + bold("Prices"),
		escapeMarkdownV2("/today - suggested price for today"),
		escapeMarkdownV2("/tomorrow - suggested price for tomorrow"),
		escapeMarkdownV2("/week - 7-day outlook"),
		escapeMarkdownV2("/price YYYY-MM-DD - suggested price for a date"),
		"",
		"📅 " + bold("Events"),
		escapeMarkdownV2("/events - upcoming events"),
		escapeMarkdownV2("/ingest - pull event feeds now"),
		"",
		escapeMarkdownV2("/help - this message"),
	}
	return strings.Join(lines, "\n")
}

func formatUsage(usage string) string {
	return "⚠️ " + escapeMarkdownV2("Usage: "+usage)
}

func formatUnknown(command string) string {
	return "❓ " + escapeMarkdownV2(fmt.Sprintf("Unknown command /%s. Send /help for the list.", command))
}

func formatUnavailable() string {
	return "⚠️ " + escapeMarkdownV2("Pricing data is temporarily unavailable. Please try again later.")
}

func formatDecision(title string, d *models.Decision, currency string) string {
	var b strings.Builder

	b.WriteString("💰 " + bold(title+" · "+d.Date.Format(displayDate)) + "\n\n")
	b.WriteString(escapeMarkdownV2("Suggested price: ") + bold(money(currency, d.SuggestedPrice)) + "\n")
	b.WriteString(escapeMarkdownV2("Base price: "+money(currency, d.BasePrice)) + "\n")

	if d.HasEvent() {
		b.WriteString("⭐ " + escapeMarkdownV2(fmt.Sprintf("Event: %s (x%s)", d.EventName, d.EventMultiplier.String())) + "\n")
	}
	if d.MarketAvg != nil {
		b.WriteString("📊 " + escapeMarkdownV2("Market average: "+currency+d.MarketAvg.StringFixed(0)) + "\n")
	}

	if len(d.Reasoning.Factors) > 0 {
		b.WriteString("\n" + bold("Factors") + "\n")
		for _, f := range d.Reasoning.Factors {
			b.WriteString(escapeMarkdownV2("• "+f) + "\n")
		}
	}

	b.WriteString("\n✅ " + escapeMarkdownV2(fmt.Sprintf("Confidence: %.0f%%", d.Confidence*100)))
	return b.String()
}

func formatWeek(ds []*models.Decision, currency string) string {
	var b strings.Builder
	b.WriteString("📈 " + bold("7-day outlook") + "\n\n")

	total := decimal.Zero
	for _, d := range ds {
		line := fmt.Sprintf("%s  %s", d.Date.Format("Mon 02/01"), money(currency, d.SuggestedPrice))
		if d.HasEvent() {
			line += " ⭐ " + d.EventName
		}
		b.WriteString(escapeMarkdownV2(line) + "\n")
		total = total.Add(d.SuggestedPrice)
	}

	if len(ds) > 0 {
		avg := total.Div(decimal.NewFromInt(int64(len(ds))))
		b.WriteString("\n" + escapeMarkdownV2("Average: "+money(currency, avg)) + "\n")
		b.WriteString(escapeMarkdownV2("Estimated revenue: ") + bold(money(currency, total)))
	}
	return b.String()
}

func formatEvents(events []models.Event, today time.Time) string {
	if len(events) == 0 {
		return "📅 " + escapeMarkdownV2("No upcoming events.")
	}

	var b strings.Builder
	b.WriteString("📅 " + bold("Upcoming events") + "\n")
	for _, e := range events {
		var status string
		switch days := models.DaysBetween(today, e.StartDate); {
		case e.Covers(today) || days <= 0:
			status = "🔴 Ongoing"
		case days == 1:
			status = "🟠 Tomorrow"
		case days <= 7:
			status = fmt.Sprintf("🟡 In %d days", days)
		default:
			status = fmt.Sprintf("⚪ In %d days", days)
		}

		b.WriteString("\n" + escapeMarkdownV2(status) + "\n")
		b.WriteString(bold(e.Name) + "\n")
		b.WriteString(escapeMarkdownV2(fmt.Sprintf("📍 %s - %s", e.StartDate.Format("02/01"), e.EndDate.Format("02/01/2006"))) + "\n")
		b.WriteString(escapeMarkdownV2(fmt.Sprintf("💰 Multiplier: x%s", e.Multiplier.String())) + "\n")
	}
	return b.String()
}

func formatIngestResult(r *ingest.Result) string {
	lines := []string{
		"🔄 " + bold("Ingestion finished"),
		"",
		escapeMarkdownV2(fmt.Sprintf("New events: %d", r.Stored)),
		escapeMarkdownV2(fmt.Sprintf("Already known: %d", r.Duplicates)),
		escapeMarkdownV2(fmt.Sprintf("Skipped (no dates): %d", r.Discarded)),
	}
	for _, fe := range r.FeedErrors {
		lines = append(lines, "⚠️ "+escapeMarkdownV2(fmt.Sprintf("Feed %s unavailable", fe.Feed)))
	}
	if n := len(r.RecordErrors); n > 0 {
		lines = append(lines, "⚠️ "+escapeMarkdownV2(fmt.Sprintf("%d event(s) could not be saved", n)))
	}
	lines = append(lines, "", escapeMarkdownV2("⏱ Took "+formatDuration(r.Duration)))
	return strings.Join(lines, "\n")
}

func formatDailyReport(today, tomorrow *models.Decision, currency string) string {
	var b strings.Builder
	b.WriteString("☀️ " + bold("Daily report · "+today.Date.Format("02/01/2006")) + "\n\n")
	b.WriteString("💰 " + bold("Suggested price today: "+money(currency, today.SuggestedPrice)) + "\n")

	if today.HasEvent() {
		b.WriteString("\n⭐ " + bold("Event today:") + " " + escapeMarkdownV2(today.EventName) + "\n")
	}
	if tomorrow.HasEvent() {
		b.WriteString("\n🔔 " + bold("Tomorrow:") + " " + escapeMarkdownV2(tomorrow.EventName) + "\n")
		b.WriteString(escapeMarkdownV2("Suggested price: "+money(currency, tomorrow.SuggestedPrice)) + "\n")
	}

	b.WriteString("\n📊 " + escapeMarkdownV2("Send /week for the 7-day outlook"))
	return b.String()
}

func formatError(err error) string {
	return "🚨 " + bold("Ingestion failed") + "\n\n" + escapeMarkdownV2(err.Error())
}

func formatRecovery(failures int) string {
	return "✅ " + bold("Ingestion recovered") + "\n\n" +
		escapeMarkdownV2(fmt.Sprintf("Back to normal after %s.", english.Plural(failures, "failed run", "failed runs")))
}
