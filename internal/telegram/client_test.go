package telegram

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/shopspring/decimal"

	"github.com/rewired-gh/nightrate/internal/ingest"
	"github.com/rewired-gh/nightrate/internal/models"
	"github.com/rewired-gh/nightrate/internal/pricing"
)

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		duration time.Duration
		expected string
	}{
		{1 * time.Hour, "1h"},
		{2 * time.Hour, "2h"},
		{30 * time.Minute, "30m"},
		{1 * time.Minute, "1m"},
		{1500 * time.Millisecond, "1s"},
	}

	for _, tt := range tests {
		result := formatDuration(tt.duration)
		if result != tt.expected {
			t.Errorf("formatDuration(%v) = %s, expected %s", tt.duration, result, tt.expected)
		}
	}
}

func TestEscapeMarkdownV2(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"plain text", "plain text"},
		{"Event: Salone (x2.5)", "Event: Salone \\(x2\\.5\\)"},
		{"adj: €+21!", "adj: €\\+21\\!"},
		{"a_b*c", "a\\_b\\*c"},
		{`back\slash`, `back\\slash`},
	}
	for _, tt := range tests {
		if got := escapeMarkdownV2(tt.in); got != tt.want {
			t.Errorf("escapeMarkdownV2(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

// fakeBot records sent messages and fails the first failures sends.
type fakeBot struct {
	failures int
	calls    int
	sent     []tgbotapi.MessageConfig
}

func (b *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	b.calls++
	if b.calls <= b.failures {
		return tgbotapi.Message{}, errors.New("Too Many Requests: retry after 1")
	}
	b.sent = append(b.sent, c.(tgbotapi.MessageConfig))
	return tgbotapi.Message{}, nil
}

func (b *fakeBot) GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return make(chan tgbotapi.Update)
}

func (b *fakeBot) StopReceivingUpdates() {}

func TestClientSendRetries(t *testing.T) {
	bot := &fakeBot{failures: 2}
	c := newClient(bot, 42, 3, time.Millisecond)

	if err := c.Send("hello"); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if bot.calls != 3 {
		t.Errorf("Expected 3 attempts, got %d", bot.calls)
	}
	if len(bot.sent) != 1 || bot.sent[0].ChatID != 42 || bot.sent[0].ParseMode != tgbotapi.ModeMarkdownV2 {
		t.Errorf("Unexpected sent message: %+v", bot.sent)
	}
}

func TestClientSendGivesUp(t *testing.T) {
	bot := &fakeBot{failures: 10}
	c := newClient(bot, 42, 2, time.Millisecond)

	if err := c.Send("hello"); err == nil {
		t.Fatal("Expected error after exhausting retries")
	}
	if bot.calls != 2 {
		t.Errorf("Expected 2 attempts, got %d", bot.calls)
	}
}

type fakeEvents struct {
	event *models.Event
}

func (f fakeEvents) EventForDate(ctx context.Context, date time.Time) (*models.Event, error) {
	if f.event != nil && f.event.Covers(date) {
		return f.event, nil
	}
	return nil, nil
}

func (f fakeEvents) UpcomingEvents(ctx context.Context, from time.Time, limit int) ([]models.Event, error) {
	if f.event == nil {
		return nil, nil
	}
	return []models.Event{*f.event}, nil
}

type fakeMarket struct{ err error }

func (f fakeMarket) MarketAverage(ctx context.Context, date time.Time) (decimal.NullDecimal, error) {
	return decimal.NullDecimal{}, f.err
}

type fakeIngester struct {
	result *ingest.Result
	err    error
}

func (f fakeIngester) Ingest(ctx context.Context) (*ingest.Result, error) {
	return f.result, f.err
}

func date(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := models.ParseDate(s)
	if err != nil {
		t.Fatal(err)
	}
	return d
}

func newTestCommands(t *testing.T, ev fakeEvents, mkt fakeMarket, in Ingester) *Commands {
	t.Helper()
	engine, err := pricing.New(pricing.DefaultConfig(), ev, mkt)
	if err != nil {
		t.Fatal(err)
	}
	h := NewCommands(engine, ev, in, "€", time.UTC)
	// Friday 2026-02-06, 08:30.
	h.now = func() time.Time { return time.Date(2026, 2, 6, 8, 30, 0, 0, time.UTC) }
	return h
}

func salone(t *testing.T) *models.Event {
	return &models.Event{
		Name:        "Salone del Mobile",
		StartDate:   date(t, "2026-02-07"),
		EndDate:     date(t, "2026-02-12"),
		Category:    models.CategoryFair,
		ImpactScore: 10,
		Multiplier:  decimal.RequireFromString("2.5"),
		Source:      models.SourceCurated,
	}
}

func TestCommands_Today(t *testing.T) {
	h := newTestCommands(t, fakeEvents{}, fakeMarket{}, nil)
	reply := h.Handle(context.Background(), "today", "")

	for _, want := range []string{"Fri 06/02/2026", "*€121*", "Day: Fri \\(x1\\.15\\)", "Confidence: 70%"} {
		if !strings.Contains(reply, want) {
			t.Errorf("reply missing %q:\n%s", want, reply)
		}
	}
}

func TestCommands_TomorrowWithEvent(t *testing.T) {
	h := newTestCommands(t, fakeEvents{event: salone(t)}, fakeMarket{}, nil)
	reply := h.Handle(context.Background(), "tomorrow", "")

	// Saturday: 105 × 2.5 × 1.15 = 301.875, capped at 250.
	for _, want := range []string{"Sat 07/02/2026", "*€250*", "Event: Salone del Mobile \\(x2\\.5\\)", "Confidence: 80%"} {
		if !strings.Contains(reply, want) {
			t.Errorf("reply missing %q:\n%s", want, reply)
		}
	}
}

func TestCommands_Price(t *testing.T) {
	h := newTestCommands(t, fakeEvents{}, fakeMarket{}, nil)

	reply := h.Handle(context.Background(), "price", "2026-02-10")
	if !strings.Contains(reply, "*€80*") {
		t.Errorf("Expected weekday price, got:\n%s", reply)
	}

	for _, args := range []string{"", "10/02/2026", "tomorrow"} {
		reply := h.Handle(context.Background(), "price", args)
		if !strings.Contains(reply, "Usage: /price YYYY\\-MM\\-DD") {
			t.Errorf("Expected usage for %q, got:\n%s", args, reply)
		}
	}
}

func TestCommands_Week(t *testing.T) {
	h := newTestCommands(t, fakeEvents{}, fakeMarket{}, nil)
	reply := h.Handle(context.Background(), "week", "")

	// Fri 121, Sat 121, Sun 76, Mon-Thu 80.
	for _, want := range []string{"Fri 06/02  €121", "Sun 08/02  €76", "Average: €91", "*€638*"} {
		if !strings.Contains(reply, want) {
			t.Errorf("reply missing %q:\n%s", want, reply)
		}
	}
}

func TestCommands_Events(t *testing.T) {
	h := newTestCommands(t, fakeEvents{event: salone(t)}, fakeMarket{}, nil)
	reply := h.Handle(context.Background(), "events", "")
	for _, want := range []string{"Tomorrow", "*Salone del Mobile*", "07/02 \\- 12/02/2026", "x2\\.5"} {
		if !strings.Contains(reply, want) {
			t.Errorf("reply missing %q:\n%s", want, reply)
		}
	}

	empty := newTestCommands(t, fakeEvents{}, fakeMarket{}, nil)
	if reply := empty.Handle(context.Background(), "events", ""); !strings.Contains(reply, "No upcoming events") {
		t.Errorf("Expected empty notice, got:\n%s", reply)
	}
}

func TestFormatEventsStatus(t *testing.T) {
	today := date(t, "2026-02-06")
	mk := func(start, end string) models.Event {
		return models.Event{Name: "e", StartDate: date(t, start), EndDate: date(t, end), Multiplier: decimal.RequireFromString("1.2")}
	}

	tests := []struct {
		event models.Event
		want  string
	}{
		{mk("2026-02-01", "2026-02-10"), "🔴 Ongoing"},
		{mk("2026-02-07", "2026-02-08"), "🟠 Tomorrow"},
		{mk("2026-02-11", "2026-02-12"), "🟡 In 5 days"},
		{mk("2026-04-21", "2026-04-26"), "⚪ In 74 days"},
	}
	for _, tt := range tests {
		if got := formatEvents([]models.Event{tt.event}, today); !strings.Contains(got, tt.want) {
			t.Errorf("Expected %q in:\n%s", tt.want, got)
		}
	}
}

func TestCommands_Ingest(t *testing.T) {
	ctx := context.Background()

	h := newTestCommands(t, fakeEvents{}, fakeMarket{}, nil)
	if reply := h.Handle(ctx, "ingest", ""); !strings.Contains(reply, "not configured") {
		t.Errorf("Expected not-configured reply, got:\n%s", reply)
	}

	h = newTestCommands(t, fakeEvents{}, fakeMarket{}, fakeIngester{err: ingest.ErrRunInProgress})
	if reply := h.Handle(ctx, "ingest", ""); !strings.Contains(reply, "already in progress") {
		t.Errorf("Expected in-progress reply, got:\n%s", reply)
	}

	result := &ingest.Result{
		Stored:       3,
		Duplicates:   5,
		Discarded:    1,
		FeedErrors:   []ingest.FeedError{{Feed: "city", Err: models.ErrFeedUnavailable}},
		RecordErrors: []ingest.RecordError{{Event: "x", Err: models.ErrStoreUnavailable}},
		Duration:     2 * time.Second,
	}
	h = newTestCommands(t, fakeEvents{}, fakeMarket{}, fakeIngester{result: result})
	reply := h.Handle(ctx, "ingest", "")
	for _, want := range []string{"New events: 3", "Already known: 5", "Feed city unavailable", "1 event\\(s\\) could not be saved", "Took 2s"} {
		if !strings.Contains(reply, want) {
			t.Errorf("reply missing %q:\n%s", want, reply)
		}
	}
}

func TestCommands_StoreUnavailable(t *testing.T) {
	h := newTestCommands(t, fakeEvents{}, fakeMarket{err: errors.New("database is closed")}, nil)
	for _, cmd := range []string{"today", "week"} {
		if reply := h.Handle(context.Background(), cmd, ""); !strings.Contains(reply, "temporarily unavailable") {
			t.Errorf("/%s: expected unavailable reply, got:\n%s", cmd, reply)
		}
	}
}

func TestCommands_HelpAndUnknown(t *testing.T) {
	h := newTestCommands(t, fakeEvents{}, fakeMarket{}, nil)

	help := h.Handle(context.Background(), "help", "")
	for _, cmd := range []string{"/today", "/tomorrow", "/week", "/price", "/events", "/ingest"} {
		if !strings.Contains(help, cmd) {
			t.Errorf("help missing %s", cmd)
		}
	}

	if reply := h.Handle(context.Background(), "oggi", ""); !strings.Contains(reply, "Unknown command /oggi") {
		t.Errorf("Unexpected reply: %s", reply)
	}
}

func TestCommands_DailyReport(t *testing.T) {
	h := newTestCommands(t, fakeEvents{event: salone(t)}, fakeMarket{}, nil)

	text, today, err := h.DailyReport(context.Background())
	if err != nil {
		t.Fatalf("DailyReport failed: %v", err)
	}
	if models.FormatDate(today.Date) != "2026-02-06" {
		t.Errorf("Expected today's decision, got %s", models.FormatDate(today.Date))
	}
	for _, want := range []string{"Daily report · 06/02/2026", "Suggested price today: €121", "*Tomorrow:* Salone del Mobile", "Suggested price: €250"} {
		if !strings.Contains(text, want) {
			t.Errorf("report missing %q:\n%s", want, text)
		}
	}
	if strings.Contains(text, "Event today") {
		t.Errorf("No event today, got:\n%s", text)
	}
}

func TestHandleUpdate_OnlyConfiguredChat(t *testing.T) {
	bot := &fakeBot{}
	c := newClient(bot, 42, 1, time.Millisecond)
	h := newTestCommands(t, fakeEvents{}, fakeMarket{}, nil)

	command := func(chatID int64) tgbotapi.Update {
		return tgbotapi.Update{Message: &tgbotapi.Message{
			Text:     "/help",
			Chat:     &tgbotapi.Chat{ID: chatID},
			Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: 5}},
		}}
	}

	c.handleUpdate(context.Background(), h, command(99))
	if len(bot.sent) != 0 {
		t.Fatalf("Expected no reply to a foreign chat, got %d", len(bot.sent))
	}

	c.handleUpdate(context.Background(), h, tgbotapi.Update{Message: &tgbotapi.Message{Text: "hi", Chat: &tgbotapi.Chat{ID: 42}}})
	if len(bot.sent) != 0 {
		t.Fatalf("Expected plain text to be ignored")
	}

	c.handleUpdate(context.Background(), h, command(42))
	if len(bot.sent) != 1 || !strings.Contains(bot.sent[0].Text, "/today") {
		t.Fatalf("Expected help reply, got %+v", bot.sent)
	}
}

func TestFormatRecovery(t *testing.T) {
	if got := formatRecovery(3); !strings.Contains(got, "after 3 failed runs") {
		t.Errorf("Unexpected recovery text: %s", got)
	}
}
