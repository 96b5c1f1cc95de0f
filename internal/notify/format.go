// Package notify renders run results into chat messages and delivers them.
package notify

import (
	"fmt"
	"math"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/seti-park/Skyscanner/internal/config"
	"github.com/seti-park/Skyscanner/internal/providers"
	"github.com/seti-park/Skyscanner/internal/service"
)

// maxErrorText bounds the error excerpt in a failure message.
const maxErrorText = 200

var printer = message.NewPrinter(language.English)

// FormatOptions control rendering only; none of them filter offers.
type FormatOptions struct {
	TopN            int
	GreatPriceTotal float64
	CheckInterval   time.Duration
	// BookingLink is a URL template. Placeholders: {origin} {destination}
	// {departure} {return} {adults} {currency} {offer_id} {carrier}.
	BookingLink string
}

func FormatOptionsFromConfig(cfg *config.Config) FormatOptions {
	return FormatOptions{
		TopN:            cfg.Notify.TopN,
		GreatPriceTotal: cfg.Criteria.GreatPriceTotal,
		CheckInterval:   cfg.Notify.CheckInterval,
		BookingLink:     cfg.Notify.BookingLink,
	}
}

// Message is a rendered notification.
type Message struct {
	Text string
	// Flights is how many offers the message was rendered from.
	Flights int
}

// Empty reports whether the message is the "nothing qualified" variant.
func (m Message) Empty() bool { return m.Flights == 0 }

// Format renders the ranked flights. flights must already be in ranking order.
// With no flights it returns the same text for the same query and options.
func Format(flights []service.QualifiedFlight, q providers.SearchQuery, opts FormatOptions) Message {
	if opts.TopN < 1 {
		opts.TopN = 5
	}

	var b strings.Builder
	if len(flights) == 0 {
		fmt.Fprintf(&b, "🔍 No qualifying flights for %s\n", route(q))
		b.WriteString(window(q) + "\n")
		if opts.CheckInterval > 0 {
			fmt.Fprintf(&b, "Next check in %s", humanDuration(opts.CheckInterval))
		} else {
			b.WriteString("Next check on the next scheduled run")
		}
		return Message{Text: b.String()}
	}

	fmt.Fprintf(&b, "✈️ %d qualifying flight%s for %s\n", len(flights), plural(len(flights)), route(q))
	b.WriteString(window(q) + "\n")

	shown := flights
	if len(shown) > opts.TopN {
		shown = shown[:opts.TopN]
	}
	for i, f := range shown {
		b.WriteString("\n")
		fmt.Fprintf(&b, "%d. %s (%s)", i+1, f.AirlineName, f.CarrierCode)
		if i == 0 && opts.GreatPriceTotal > 0 && f.PriceTotal <= opts.GreatPriceTotal {
			b.WriteString(" 🔥 great price")
		}
		b.WriteString("\n")
		fmt.Fprintf(&b, "   💰 %s %s total (%s per person)\n",
			formatAmount(f.PriceTotal), f.Currency, formatAmount(f.PricePerPerson))
		if f.PriceUnconfirmed {
			b.WriteString("   ⚠️ price not confirmed\n")
		}
		fmt.Fprintf(&b, "   ➡️ %s\n", formatLeg(f.Outbound))
		fmt.Fprintf(&b, "   ⬅️ %s\n", formatLeg(f.Inbound))
		if link := bookingLink(opts.BookingLink, q, f); link != "" {
			fmt.Fprintf(&b, "   🔗 %s\n", link)
		}
	}
	if rest := len(flights) - len(shown); rest > 0 {
		fmt.Fprintf(&b, "\n...and %d more offer%s", rest, plural(rest))
	}

	return Message{Text: strings.TrimRight(b.String(), "\n"), Flights: len(flights)}
}

// FormatSearchFailure renders the failure notification for an aborted run.
func FormatSearchFailure(q providers.SearchQuery, err error) Message {
	reason := "unknown error"
	if err != nil {
		reason = err.Error()
	}
	if r := []rune(reason); len(r) > maxErrorText {
		reason = string(r[:maxErrorText]) + "..."
	}
	return Message{Text: fmt.Sprintf("❌ Flight monitor failed for %s\n%s\n%s", route(q), window(q), reason)}
}

func route(q providers.SearchQuery) string {
	return q.Origin + " → " + q.Destination
}

func window(q providers.SearchQuery) string {
	s := fmt.Sprintf("📅 %s ~ %s · %d adult%s", q.DepartureDate, q.ReturnDate, q.Adults, plural(q.Adults))
	if q.NonStopOnly {
		s += " · non-stop only"
	}
	return s
}

func formatLeg(l service.Leg) string {
	s := fmt.Sprintf("%s %s %s → %s %s",
		l.DepartureAt.Format("01/02"), l.Origin, l.DepartureAt.Format("15:04"),
		l.Destination, l.ArrivalAt.Format("15:04"))
	if days := dayShift(l.DepartureAt, l.ArrivalAt); days != 0 {
		s += fmt.Sprintf(" (%+d)", days)
	}
	s += " " + l.FlightNumber

	var details []string
	if l.Duration > 0 {
		details = append(details, humanDuration(l.Duration))
	}
	switch l.Stops {
	case 0:
		details = append(details, "non-stop")
	case 1:
		details = append(details, "1 stop")
	default:
		details = append(details, fmt.Sprintf("%d stops", l.Stops))
	}
	return s + " (" + strings.Join(details, ", ") + ")"
}

// dayShift counts calendar days between two wall-clock times.
func dayShift(from, to time.Time) int {
	y1, m1, d1 := from.Date()
	y2, m2, d2 := to.Date()
	a := time.Date(y1, m1, d1, 0, 0, 0, 0, time.UTC)
	b := time.Date(y2, m2, d2, 0, 0, 0, 0, time.UTC)
	return int(b.Sub(a).Hours() / 24)
}

func humanDuration(d time.Duration) string {
	d = d.Round(time.Minute)
	h := int(d / time.Hour)
	m := int((d % time.Hour) / time.Minute)
	switch {
	case h == 0:
		return fmt.Sprintf("%dm", m)
	case m == 0:
		return fmt.Sprintf("%dh", h)
	default:
		return fmt.Sprintf("%dh%02dm", h, m)
	}
}

// formatAmount groups thousands and drops the fraction for whole amounts.
func formatAmount(v float64) string {
	if v == math.Trunc(v) {
		return printer.Sprintf("%d", int64(v))
	}
	return printer.Sprintf("%.2f", v)
}

func bookingLink(tpl string, q providers.SearchQuery, f service.QualifiedFlight) string {
	if tpl == "" {
		return ""
	}
	return strings.NewReplacer(
		"{origin}", q.Origin,
		"{destination}", q.Destination,
		"{departure}", q.DepartureDate,
		"{return}", q.ReturnDate,
		"{adults}", fmt.Sprint(q.Adults),
		"{currency}", f.Currency,
		"{offer_id}", f.BookingReference,
		"{carrier}", f.CarrierCode,
	).Replace(tpl)
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}
