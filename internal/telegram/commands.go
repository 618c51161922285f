package telegram

import (
	"context"
	"errors"
	"time"

	"github.com/rewired-gh/nightrate/internal/ingest"
	"github.com/rewired-gh/nightrate/internal/logger"
	"github.com/rewired-gh/nightrate/internal/models"
)

// Pricer produces pricing decisions.
type Pricer interface {
	Price(ctx context.Context, date time.Time) (*models.Decision, error)
	PriceRange(ctx context.Context, from time.Time, days int) ([]*models.Decision, error)
}

// EventLister lists events that have not yet ended.
type EventLister interface {
	UpcomingEvents(ctx context.Context, from time.Time, limit int) ([]models.Event, error)
}

// Ingester runs an on-demand ingestion pass.
type Ingester interface {
	Ingest(ctx context.Context) (*ingest.Result, error)
}

const upcomingLimit = 10

// Commands answers operator commands. Every reply is MarkdownV2 text.
type Commands struct {
	pricer   Pricer
	events   EventLister
	ingester Ingester // optional
	currency string
	loc      *time.Location
	now      func() time.Time
}

// NewCommands creates a command handler. "Today" is evaluated in loc.
func NewCommands(p Pricer, ev EventLister, in Ingester, currency string, loc *time.Location) *Commands {
	if loc == nil {
		loc = time.Local
	}
	return &Commands{
		pricer:   p,
		events:   ev,
		ingester: in,
		currency: currency,
		loc:      loc,
		now:      time.Now,
	}
}

func (h *Commands) today() time.Time {
	return models.Civil(h.now().In(h.loc))
}

// Handle dispatches one command (without the leading slash) and returns the reply.
func (h *Commands) Handle(ctx context.Context, command, args string) string {
	switch command {
	case "start":
		return formatWelcome()
	case "help":
		return formatHelp()
	case "today":
		return h.priceReply(ctx, "Today", h.today())
	case "tomorrow":
		return h.priceReply(ctx, "Tomorrow", h.today().AddDate(0, 0, 1))
	case "price":
		if args == "" {
			return formatUsage("/price YYYY-MM-DD")
		}
		date, err := models.ParseDate(args)
		if err != nil {
			return formatUsage("/price YYYY-MM-DD")
		}
		return h.priceReply(ctx, "Price", date)
	case "week":
		ds, err := h.pricer.PriceRange(ctx, h.today(), 7)
		if err != nil {
			logger.Error("Week outlook failed: %v", err)
			return formatUnavailable()
		}
		return formatWeek(ds, h.currency)
	case "events":
		today := h.today()
		events, err := h.events.UpcomingEvents(ctx, today, upcomingLimit)
		if err != nil {
			logger.Error("Listing events failed: %v", err)
			return formatUnavailable()
		}
		return formatEvents(events, today)
	case "ingest":
		if h.ingester == nil {
			return escapeMarkdownV2("Ingestion is not configured.")
		}
		result, err := h.ingester.Ingest(ctx)
		if errors.Is(err, ingest.ErrRunInProgress) {
			return escapeMarkdownV2("An ingestion run is already in progress, try again later.")
		}
		if result == nil {
			logger.Error("On-demand ingestion failed: %v", err)
			return formatError(err)
		}
		return formatIngestResult(result)
	default:
		return formatUnknown(command)
	}
}

func (h *Commands) priceReply(ctx context.Context, title string, date time.Time) string {
	d, err := h.pricer.Price(ctx, date)
	if err != nil {
		logger.Error("Pricing %s failed: %v", models.FormatDate(date), err)
		return formatUnavailable()
	}
	return formatDecision(title, d, h.currency)
}

// DailyReport renders the morning report and returns today's decision so the
// caller can persist what was sent.
func (h *Commands) DailyReport(ctx context.Context) (string, *models.Decision, error) {
	today := h.today()
	ds, err := h.pricer.PriceRange(ctx, today, 2)
	if err != nil {
		return "", nil, err
	}
	return formatDailyReport(ds[0], ds[1], h.currency), ds[0], nil
}
