package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/Laisky/errors/v2"
	"github.com/tidwall/gjson"

	"github.com/seti-park/Skyscanner/internal/config"
)

var (
	// ErrAuth means no bearer token could be issued. Fatal for a run.
	ErrAuth = errors.New("provider authentication failed")
	// ErrSearch means the offer search produced no usable response. Fatal for a run.
	ErrSearch = errors.New("offer search failed")
	// ErrConfirm means one price confirmation attempt failed.
	ErrConfirm = errors.New("price confirmation failed")
)

// RequestError describes a failed provider call. It matches its Kind with errors.Is
// and also unwraps to the underlying transport or decode error, if any.
type RequestError struct {
	Kind       error
	Op         string
	StatusCode int
	Body       string
	Err        error
}

func (e *RequestError) Error() string {
	msg := fmt.Sprintf("%s: %v", e.Op, e.Kind)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(": status %d", e.StatusCode)
	}
	if e.Body != "" {
		msg += ": " + e.Body
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *RequestError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Retryable reports whether repeating the same request might succeed.
func (e *RequestError) Retryable() bool {
	return e.StatusCode == 0 || e.StatusCode == 429 || e.StatusCode >= 500
}

// SearchQuery is the immutable description of the watched round trip.
type SearchQuery struct {
	Origin        string
	Destination   string
	DepartureDate string
	ReturnDate    string
	Adults        int
	NonStopOnly   bool
	Currency      string
	MaxResults    int
}

func QueryFromConfig(c config.SearchConfig) SearchQuery {
	return SearchQuery{
		Origin:        c.Origin,
		Destination:   c.Destination,
		DepartureDate: c.DepartureDate,
		ReturnDate:    c.ReturnDate,
		Adults:        c.Adults,
		NonStopOnly:   c.NonStopOnly,
		Currency:      c.Currency,
		MaxResults:    c.MaxResults,
	}
}

// ConfirmedPrice is the outcome of the price confirmation stage for one offer.
// When Confirmed is false, Total is the search-time price.
type ConfirmedPrice struct {
	Total     float64
	Currency  string
	Confirmed bool
	Attempts  int
	Err       error
}

// RawOffer is one provider offer kept as the provider's own JSON document
// (Amadeus flight-offer schema). Fields are read lazily with gjson paths.
type RawOffer struct {
	ID      string
	Payload json.RawMessage

	// Confirmation is set once the confirmation stage ran for this offer.
	Confirmation *ConfirmedPrice
}

func NewRawOffer(payload json.RawMessage) RawOffer {
	return RawOffer{
		ID:      gjson.GetBytes(payload, "id").String(),
		Payload: payload,
	}
}

// Field returns the value at a gjson path inside the offer document.
func (o RawOffer) Field(path string) gjson.Result {
	return gjson.GetBytes(o.Payload, path)
}

// SearchPrice returns the total price reported by the search call.
// ok is false when the provider omitted it or it is not a number.
func (o RawOffer) SearchPrice() (total float64, currency string, ok bool) {
	p := o.Field("price.total")
	if !p.Exists() {
		return 0, "", false
	}
	switch p.Type {
	case gjson.Number:
		total = p.Float()
	case gjson.String:
		v, err := strconv.ParseFloat(strings.TrimSpace(p.Str), 64)
		if err != nil {
			return 0, "", false
		}
		total = v
	default:
		return 0, "", false
	}
	if math.IsNaN(total) || math.IsInf(total, 0) {
		return 0, "", false
	}
	return total, o.Field("price.currency").String(), true
}

// Price returns the confirmed price when present, the search price otherwise.
func (o RawOffer) Price() (total float64, currency string, ok bool) {
	if o.Confirmation != nil {
		return o.Confirmation.Total, o.Confirmation.Currency, true
	}
	return o.SearchPrice()
}

// WithConfirmation returns a copy of the offer carrying cp.
func (o RawOffer) WithConfirmation(cp ConfirmedPrice) RawOffer {
	o.Confirmation = &cp
	return o
}

// SearchResult is what one successful search returns.
type SearchResult struct {
	Offers []RawOffer
	// Carriers maps carrier code to display name.
	Carriers map[string]string
}

// FlightProvider is the capability a flight-search backend has to offer.
// Token handling is internal to each implementation.
type FlightProvider interface {
	Name() string
	Search(ctx context.Context, q SearchQuery) (*SearchResult, error)
	ConfirmPrice(ctx context.Context, offer RawOffer) (RawOffer, error)
}
