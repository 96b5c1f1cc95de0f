package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/seti-park/Skyscanner/internal/providers"
)

// ProviderMock is a scripted FlightProvider for tests.
type ProviderMock struct {
	ProviderName string
	Result       *providers.SearchResult
	SearchErr    error
	Delay        time.Duration
	// ConfirmFunc answers ConfirmPrice; call counts from 1. Nil echoes the offer.
	ConfirmFunc func(call int, offer providers.RawOffer) (providers.RawOffer, error)

	searchCalls  int32
	confirmCalls int32
}

func (p *ProviderMock) Name() string {
	if p.ProviderName == "" {
		return "mock"
	}
	return p.ProviderName
}

func (p *ProviderMock) Search(ctx context.Context, q providers.SearchQuery) (*providers.SearchResult, error) {
	atomic.AddInt32(&p.searchCalls, 1)
	if p.Delay > 0 {
		select {
		case <-time.After(p.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if p.SearchErr != nil {
		return nil, p.SearchErr
	}
	if p.Result == nil {
		return &providers.SearchResult{Carriers: map[string]string{}}, nil
	}
	return p.Result, nil
}

func (p *ProviderMock) ConfirmPrice(ctx context.Context, offer providers.RawOffer) (providers.RawOffer, error) {
	n := int(atomic.AddInt32(&p.confirmCalls, 1))
	if p.ConfirmFunc == nil {
		return offer, nil
	}
	return p.ConfirmFunc(n, offer)
}

func (p *ProviderMock) SearchCalls() int  { return int(atomic.LoadInt32(&p.searchCalls)) }
func (p *ProviderMock) ConfirmCalls() int { return int(atomic.LoadInt32(&p.confirmCalls)) }

// MockOffer builds an Amadeus-shaped round-trip offer. An empty price omits the
// price object; segment counts of 0 leave that itinerary without segments.
func MockOffer(id, price string, outSegments, inSegments int) providers.RawOffer {
	doc := map[string]any{
		"id":                     id,
		"validatingAirlineCodes": []string{"KE"},
		"itineraries": []any{
			mockItinerary("ICN", "HNL", "2025-10-04", 53, outSegments),
			mockItinerary("HNL", "ICN", "2025-10-08", 54, inSegments),
		},
	}
	if price != "" {
		doc["price"] = map[string]any{"currency": "KRW", "total": price}
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		panic(err)
	}
	return providers.NewRawOffer(raw)
}

func mockItinerary(from, to, date string, number, segments int) map[string]any {
	segs := make([]any, 0, segments)
	for i := 0; i < segments; i++ {
		dep, arr := from, to
		if segments > 1 {
			if i > 0 {
				dep = "NRT"
			}
			if i < segments-1 {
				arr = "NRT"
			}
		}
		segs = append(segs, map[string]any{
			"carrierCode": "KE",
			"number":      fmt.Sprint(number + i*100),
			"duration":    "PT4H",
			"departure":   map[string]any{"iataCode": dep, "at": fmt.Sprintf("%sT%02d:30:00", date, 8+i*5)},
			"arrival":     map[string]any{"iataCode": arr, "at": fmt.Sprintf("%sT%02d:30:00", date, 12+i*5)},
		})
	}
	return map[string]any{
		"duration": fmt.Sprintf("PT%dH", 4*segments+segments-1),
		"segments": segs,
	}
}
