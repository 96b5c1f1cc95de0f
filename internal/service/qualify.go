package service

import (
	"sort"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/seti-park/Skyscanner/internal/config"
	"github.com/seti-park/Skyscanner/internal/providers"
)

// Criteria are the price ceilings an offer has to meet. Both apply together;
// a zero ceiling is not enforced.
type Criteria struct {
	MaxPriceTotal     float64
	MaxPricePerPerson float64
}

func CriteriaFromConfig(c config.CriteriaConfig) Criteria {
	return Criteria{
		MaxPriceTotal:     c.MaxPriceTotal,
		MaxPricePerPerson: c.MaxPricePerPerson,
	}
}

// Leg is one direction of the round trip.
type Leg struct {
	Origin       string
	Destination  string
	DepartureAt  time.Time
	ArrivalAt    time.Time
	FlightNumber string
	Duration     time.Duration
	Stops        int
}

// QualifiedFlight is an offer that passed every check, in canonical form.
// PriceUnconfirmed is set when re-pricing was attempted and gave up;
// BookingReference is the provider's offer id.
type QualifiedFlight struct {
	OfferID          string
	AirlineName      string
	CarrierCode      string
	PriceTotal       float64
	PricePerPerson   float64
	Currency         string
	PriceUnconfirmed bool
	Outbound         Leg
	Inbound          Leg
	BookingReference string
}

// DropReason says which check rejected an offer.
type DropReason string

const (
	DropNoPrice       DropReason = "no_price"
	DropNotRoundTrip  DropReason = "not_round_trip"
	DropNotNonStop    DropReason = "not_non_stop"
	DropOverTotal     DropReason = "over_total_ceiling"
	DropOverPerPerson DropReason = "over_per_person_ceiling"
	DropMalformed     DropReason = "malformed"
	dropNone          DropReason = ""
)

// Rejections counts dropped offers per reason.
type Rejections map[DropReason]int

// Qualify filters offers against q and c, normalizes the survivors and orders them
// by total price. Ties keep provider order. It has no side effects.
func Qualify(offers []providers.RawOffer, carriers map[string]string, q providers.SearchQuery, c Criteria) []QualifiedFlight {
	flights, _ := Evaluate(offers, carriers, q, c)
	return flights
}

// Evaluate is Qualify that also reports why offers were dropped.
func Evaluate(offers []providers.RawOffer, carriers map[string]string, q providers.SearchQuery, c Criteria) ([]QualifiedFlight, Rejections) {
	flights := make([]QualifiedFlight, 0, len(offers))
	rejected := Rejections{}
	for _, offer := range offers {
		f, reason := qualifyOne(offer, carriers, q, c)
		if reason != dropNone {
			rejected[reason]++
			continue
		}
		flights = append(flights, f)
	}

	sort.SliceStable(flights, func(i, j int) bool {
		return flights[i].PriceTotal < flights[j].PriceTotal
	})
	return flights, rejected
}

// Passes reports whether a single offer would qualify.
func Passes(offer providers.RawOffer, carriers map[string]string, q providers.SearchQuery, c Criteria) bool {
	_, reason := qualifyOne(offer, carriers, q, c)
	return reason == dropNone
}

func qualifyOne(offer providers.RawOffer, carriers map[string]string, q providers.SearchQuery, c Criteria) (QualifiedFlight, DropReason) {
	total, currency, ok := offer.Price()
	if !ok || total <= 0 {
		return QualifiedFlight{}, DropNoPrice
	}

	itineraries := offer.Field("itineraries").Array()
	if len(itineraries) != 2 {
		return QualifiedFlight{}, DropNotRoundTrip
	}
	for _, it := range itineraries {
		if len(it.Get("segments").Array()) == 0 {
			return QualifiedFlight{}, DropMalformed
		}
	}

	if q.NonStopOnly {
		for _, it := range itineraries {
			if len(it.Get("segments").Array()) != 1 {
				return QualifiedFlight{}, DropNotNonStop
			}
		}
	}

	adults := q.Adults
	if adults < 1 {
		adults = 1
	}
	perPerson := total / float64(adults)
	if c.MaxPriceTotal > 0 && total > c.MaxPriceTotal {
		return QualifiedFlight{}, DropOverTotal
	}
	if c.MaxPricePerPerson > 0 && perPerson > c.MaxPricePerPerson {
		return QualifiedFlight{}, DropOverPerPerson
	}

	outbound, ok := parseLeg(itineraries[0])
	if !ok {
		return QualifiedFlight{}, DropMalformed
	}
	inbound, ok := parseLeg(itineraries[1])
	if !ok {
		return QualifiedFlight{}, DropMalformed
	}

	code := offer.Field("validatingAirlineCodes.0").String()
	if code == "" {
		code = itineraries[0].Get("segments.0.carrierCode").String()
	}
	if code == "" {
		return QualifiedFlight{}, DropMalformed
	}
	name := carriers[code]
	if name == "" {
		name = code
	}

	if currency == "" {
		currency = q.Currency
	}

	return QualifiedFlight{
		OfferID:          offer.ID,
		AirlineName:      name,
		CarrierCode:      code,
		PriceTotal:       total,
		PricePerPerson:   perPerson,
		Currency:         currency,
		PriceUnconfirmed: offer.Confirmation != nil && !offer.Confirmation.Confirmed,
		Outbound:         outbound,
		Inbound:          inbound,
		BookingReference: offer.ID,
	}, dropNone
}

func parseLeg(it gjson.Result) (Leg, bool) {
	segments := it.Get("segments").Array()
	first, last := segments[0], segments[len(segments)-1]

	dep, err := providers.ParseLocalTime(first.Get("departure.at").String())
	if err != nil {
		return Leg{}, false
	}
	arr, err := providers.ParseLocalTime(last.Get("arrival.at").String())
	if err != nil {
		return Leg{}, false
	}

	numbers := make([]string, 0, len(segments))
	var segTotal time.Duration
	for _, s := range segments {
		numbers = append(numbers, s.Get("carrierCode").String()+s.Get("number").String())
		if d, ok := providers.ParseISODuration(s.Get("duration").String()); ok {
			segTotal += d
		}
	}

	dur, ok := providers.ParseISODuration(it.Get("duration").String())
	if !ok {
		dur = segTotal
	}

	return Leg{
		Origin:       first.Get("departure.iataCode").String(),
		Destination:  last.Get("arrival.iataCode").String(),
		DepartureAt:  dep,
		ArrivalAt:    arr,
		FlightNumber: strings.Join(numbers, "/"),
		Duration:     dur,
		Stops:        len(segments) - 1,
	}, true
}
