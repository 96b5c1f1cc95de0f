package monitor

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Laisky/errors/v2"
	"github.com/stretchr/testify/require"

	"github.com/seti-park/Skyscanner/internal/config"
	"github.com/seti-park/Skyscanner/internal/logger"
	"github.com/seti-park/Skyscanner/internal/notify"
	"github.com/seti-park/Skyscanner/internal/providers"
	"github.com/seti-park/Skyscanner/internal/service"
)

type fakeNotifier struct {
	mu     sync.Mutex
	sent   []notify.Message
	result notify.DeliveryResult
}

func (f *fakeNotifier) Send(_ context.Context, msg notify.Message) notify.DeliveryResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	if f.result == (notify.DeliveryResult{}) {
		return notify.DeliveryResult{Delivered: true, MessageID: len(f.sent)}
	}
	return f.result
}

func (f *fakeNotifier) messages() []notify.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]notify.Message(nil), f.sent...)
}

func testConfig() *config.Config {
	return &config.Config{
		Search: config.SearchConfig{
			Origin:        "ICN",
			Destination:   "HNL",
			DepartureDate: "2025-10-04",
			ReturnDate:    "2025-10-08",
			Adults:        2,
			NonStopOnly:   true,
			Currency:      "KRW",
			MaxResults:    20,
		},
		Criteria: config.CriteriaConfig{MaxPriceTotal: 1500000},
		Confirm:  config.ConfirmConfig{Attempts: 3},
		Notify:   config.NotifyConfig{TopN: 5, CheckInterval: 30 * time.Minute},
	}
}

func searchResult(offers ...providers.RawOffer) *providers.SearchResult {
	return &providers.SearchResult{Offers: offers, Carriers: map[string]string{"KE": "KOREAN AIR"}}
}

func TestRunNotifiesRankedFlights(t *testing.T) {
	p := &service.ProviderMock{Result: searchResult(
		service.MockOffer("b", "1100000.00", 1, 1),
		service.MockOffer("missing", "", 1, 1),
		service.MockOffer("a", "900000.00", 1, 1),
		service.MockOffer("layover", "700000.00", 2, 1),
	)}
	n := &fakeNotifier{}

	report, err := New(testConfig(), p, n, logger.NewNop()).Run(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, report.RunID)
	require.Equal(t, 4, report.OffersSeen)
	require.Len(t, report.Flights, 2)
	require.Equal(t, 900000.0, report.Flights[0].PriceTotal)
	require.Equal(t, 1100000.0, report.Flights[1].PriceTotal)
	require.Equal(t, service.Rejections{service.DropNoPrice: 1, service.DropNotNonStop: 1}, report.Rejections)

	sent := n.messages()
	require.Len(t, sent, 1)
	require.Equal(t, report.Message, sent[0])
	require.Less(t, strings.Index(sent[0].Text, "900,000"), strings.Index(sent[0].Text, "1,100,000"))
	require.NotNil(t, report.Delivery)
	require.True(t, report.Delivery.Delivered)

	// confirmation disabled by default
	require.Zero(t, p.ConfirmCalls())
	require.Equal(t, 1, p.SearchCalls())
}

func TestRunNothingQualifies(t *testing.T) {
	for _, onEmpty := range []bool{false, true} {
		cfg := testConfig()
		cfg.Notify.OnEmpty = onEmpty
		p := &service.ProviderMock{Result: searchResult(service.MockOffer("a", "2000000", 1, 1))}
		n := &fakeNotifier{}

		report, err := New(cfg, p, n, logger.NewNop()).Run(context.Background())
		require.NoError(t, err)
		require.Empty(t, report.Flights)
		require.True(t, report.Message.Empty())
		require.Contains(t, report.Message.Text, "No qualifying flights for ICN → HNL")

		if onEmpty {
			require.Len(t, n.messages(), 1)
			require.NotNil(t, report.Delivery)
		} else {
			require.Empty(t, n.messages())
			require.Nil(t, report.Delivery)
		}
	}
}

func TestRunSearchFailure(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		notify   bool
		wantKind error
	}{
		{"search silent", &providers.RequestError{Kind: providers.ErrSearch, Op: "search", StatusCode: http.StatusInternalServerError}, false, providers.ErrSearch},
		{"search notified", &providers.RequestError{Kind: providers.ErrSearch, Op: "search", StatusCode: http.StatusInternalServerError}, true, providers.ErrSearch},
		{"auth notified", &providers.RequestError{Kind: providers.ErrAuth, Op: "token", StatusCode: http.StatusUnauthorized}, true, providers.ErrAuth},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.Notify.OnSearchFailure = tt.notify
			p := &service.ProviderMock{SearchErr: tt.err}
			n := &fakeNotifier{}

			report, err := New(cfg, p, n, logger.NewNop()).Run(context.Background())
			require.ErrorIs(t, err, tt.wantKind)
			require.NotNil(t, report)
			require.Empty(t, report.Flights)

			if tt.notify {
				sent := n.messages()
				require.Len(t, sent, 1)
				require.True(t, strings.HasPrefix(sent[0].Text, "❌ Flight monitor failed for ICN → HNL"))
			} else {
				require.Empty(t, n.messages())
				require.Nil(t, report.Delivery)
			}
		})
	}
}

func TestRunNilSearchResultIsFailure(t *testing.T) {
	p := &nilProvider{}
	report, err := New(testConfig(), p, &fakeNotifier{}, logger.NewNop()).Run(context.Background())
	require.ErrorIs(t, err, providers.ErrSearch)
	require.Zero(t, report.OffersSeen)
}

type nilProvider struct{ service.ProviderMock }

func (nilProvider) Search(context.Context, providers.SearchQuery) (*providers.SearchResult, error) {
	return nil, nil
}

func TestRunConfirmsCandidates(t *testing.T) {
	cfg := testConfig()
	cfg.Confirm.Enabled = true
	cfg.Confirm.Attempts = 2

	var (
		mu    sync.Mutex
		order []string
	)
	p := &service.ProviderMock{
		Result: searchResult(
			service.MockOffer("b", "1400000", 1, 1),
			service.MockOffer("expensive", "2000000", 1, 1),
			service.MockOffer("a", "900000", 1, 1),
		),
		ConfirmFunc: func(_ int, offer providers.RawOffer) (providers.RawOffer, error) {
			mu.Lock()
			order = append(order, offer.ID)
			mu.Unlock()
			switch offer.ID {
			case "a":
				return providers.RawOffer{}, &providers.RequestError{Kind: providers.ErrConfirm, Op: "pricing", StatusCode: http.StatusInternalServerError}
			case "b":
				return service.MockOffer("b", "1600000", 1, 1), nil
			}
			return offer, nil
		},
	}
	n := &fakeNotifier{}

	report, err := New(cfg, p, n, logger.NewNop()).Run(context.Background())
	require.NoError(t, err)

	// cheapest candidate first, non-qualifying offers never re-priced
	require.Equal(t, []string{"a", "a", "b"}, order)
	require.Equal(t, 1, report.Confirmed)
	require.Equal(t, 1, report.Unconfirmed)

	// b rose above the ceiling, a fell back to its search price
	require.Len(t, report.Flights, 1)
	require.Equal(t, "a", report.Flights[0].OfferID)
	require.Equal(t, 900000.0, report.Flights[0].PriceTotal)
	require.True(t, report.Flights[0].PriceUnconfirmed)
	require.Contains(t, n.messages()[0].Text, "price not confirmed")
}

func TestRunConfirmLimit(t *testing.T) {
	cfg := testConfig()
	cfg.Confirm.Enabled = true
	cfg.Confirm.MaxOffers = 1
	p := &service.ProviderMock{Result: searchResult(
		service.MockOffer("b", "1000000", 1, 1),
		service.MockOffer("a", "900000", 1, 1),
	)}

	report, err := New(cfg, p, &fakeNotifier{}, logger.NewNop()).Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, p.ConfirmCalls())
	require.Equal(t, 1, report.Confirmed)
	require.Len(t, report.Flights, 2)
}

func TestRunDeliveryFailureIsContained(t *testing.T) {
	p := &service.ProviderMock{Result: searchResult(service.MockOffer("a", "900000", 1, 1))}
	n := &fakeNotifier{result: notify.DeliveryResult{Err: errors.New("telegram down")}}

	report, err := New(testConfig(), p, n, logger.NewNop()).Run(context.Background())
	require.NoError(t, err)
	require.Len(t, n.messages(), 1)
	require.False(t, report.Delivery.Delivered)
	require.Error(t, report.Delivery.Err)
}
