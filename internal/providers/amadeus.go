package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Laisky/errors/v2"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/seti-park/Skyscanner/internal/config"
	"github.com/seti-park/Skyscanner/internal/logger"
)

// maxErrorBody bounds how much of an error response ends up in logs and errors.
const maxErrorBody = 512

// Amadeus talks to the Amadeus Self-Service flight APIs with one client-credentials
// pair. It owns its credential cache.
type Amadeus struct {
	host        string
	searchPath  string
	pricingPath string
	client      *http.Client
	id          string
	secret      string
	oauth       *clientcredentials.Config
	creds       *CredentialCache
	logger      *logger.Logger
}

func NewAmadeus(cfg *config.Config, lg *logger.Logger) *Amadeus {
	a := &Amadeus{
		host:        cfg.Amadeus.URL,
		searchPath:  "/v2/shopping/flight-offers",
		pricingPath: "/v1/shopping/flight-offers/pricing",
		id:          cfg.Amadeus.ClientID,
		secret:      cfg.Amadeus.ClientSecret,
		client:      &http.Client{Timeout: cfg.Amadeus.Timeout},
		logger:      lg.Named("amadeus"),
	}
	a.oauth = &clientcredentials.Config{
		ClientID:     a.id,
		ClientSecret: a.secret,
		TokenURL:     a.host + "/v1/security/oauth2/token",
		AuthStyle:    oauth2.AuthStyleInParams,
	}
	a.creds = NewCredentialCache(a.fetchToken)
	return a
}

func (a *Amadeus) Name() string { return "amadeus" }

// Credentials exposes the token cache owned by this client.
func (a *Amadeus) Credentials() *CredentialCache { return a.creds }

// Authenticate makes sure a token can be issued with the configured credentials.
func (a *Amadeus) Authenticate(ctx context.Context) error {
	_, err := a.creds.Token(ctx)
	return err
}

func (a *Amadeus) fetchToken(ctx context.Context) (string, time.Duration, error) {
	if a.id == "" || a.secret == "" {
		return "", 0, &RequestError{Kind: ErrAuth, Op: "token", Err: errors.New("amadeus credentials missing")}
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, a.client)
	tok, err := a.oauth.Token(ctx)
	if err != nil {
		rerr := &RequestError{Kind: ErrAuth, Op: "token", Err: err}
		var retrieve *oauth2.RetrieveError
		if errors.As(err, &retrieve) && retrieve.Response != nil {
			rerr.StatusCode = retrieve.Response.StatusCode
			rerr.Body = truncate(string(retrieve.Body))
			rerr.Err = nil
		}
		return "", 0, rerr
	}

	// zero lets the cache apply its default lifetime
	var ttl time.Duration
	if v, ok := tok.Extra("expires_in").(float64); ok && v > 0 {
		ttl = time.Duration(v) * time.Second
	}

	a.logger.Debug("issued access token", zap.Duration("expires_in", ttl))
	return tok.AccessToken, ttl, nil
}

// Search issues exactly one flight-offers search. Authentication failures match
// ErrAuth, every other failure matches ErrSearch; neither is retried here.
func (a *Amadeus) Search(ctx context.Context, q SearchQuery) (*SearchResult, error) {
	tok, err := a.creds.Token(ctx)
	if err != nil {
		a.logger.Error("cannot search without token", zap.Error(err))
		return nil, err
	}

	params := url.Values{}
	params.Set("originLocationCode", q.Origin)
	params.Set("destinationLocationCode", q.Destination)
	params.Set("departureDate", q.DepartureDate)
	params.Set("returnDate", q.ReturnDate)
	params.Set("adults", strconv.Itoa(q.Adults))
	params.Set("nonStop", strconv.FormatBool(q.NonStopOnly))
	params.Set("currencyCode", q.Currency)
	params.Set("max", strconv.Itoa(q.MaxResults))
	u := a.host + a.searchPath + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, &RequestError{Kind: ErrSearch, Op: "search", Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+tok)
	req.Header.Set("Accept", "application/vnd.amadeus+json")

	resp, err := a.client.Do(req)
	if err != nil {
		a.logger.Warn("search request failed", zap.Error(err))
		return nil, &RequestError{Kind: ErrSearch, Op: "search", Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode == http.StatusUnauthorized {
			a.creds.Invalidate()
		}
		rerr := &RequestError{Kind: ErrSearch, Op: "search", StatusCode: resp.StatusCode, Body: readErrorBody(resp.Body)}
		a.logger.Warn("search rejected", zap.Int("status", resp.StatusCode), zap.String("body", rerr.Body))
		return nil, rerr
	}

	var payload struct {
		Data         []json.RawMessage `json:"data"`
		Dictionaries struct {
			Carriers map[string]string `json:"carriers"`
		} `json:"dictionaries"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		a.logger.Warn("undecodable search response", zap.Error(err))
		return nil, &RequestError{Kind: ErrSearch, Op: "search", Err: errors.Wrap(err, "decode search response")}
	}

	out := &SearchResult{
		Offers:   make([]RawOffer, 0, len(payload.Data)),
		Carriers: payload.Dictionaries.Carriers,
	}
	if out.Carriers == nil {
		out.Carriers = map[string]string{}
	}
	for _, raw := range payload.Data {
		out.Offers = append(out.Offers, NewRawOffer(raw))
	}

	a.logger.Info("search finished",
		zap.String("route", q.Origin+"-"+q.Destination),
		zap.Int("offers", len(out.Offers)))
	return out, nil
}

// ConfirmPrice re-prices one offer. The returned offer is the provider's re-priced
// document. A token failure matches ErrAuth, anything else ErrConfirm.
func (a *Amadeus) ConfirmPrice(ctx context.Context, offer RawOffer) (RawOffer, error) {
	tok, err := a.creds.Token(ctx)
	if err != nil {
		return RawOffer{}, err
	}

	body, err := json.Marshal(map[string]any{
		"data": map[string]any{
			"type":         "flight-offers-pricing",
			"flightOffers": []json.RawMessage{offer.Payload},
		},
	})
	if err != nil {
		return RawOffer{}, &RequestError{Kind: ErrConfirm, Op: "pricing", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.host+a.pricingPath, bytes.NewReader(body))
	if err != nil {
		return RawOffer{}, &RequestError{Kind: ErrConfirm, Op: "pricing", Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+tok)
	req.Header.Set("Content-Type", "application/vnd.amadeus+json")
	req.Header.Set("X-HTTP-Method-Override", http.MethodGet)

	resp, err := a.client.Do(req)
	if err != nil {
		return RawOffer{}, &RequestError{Kind: ErrConfirm, Op: "pricing", Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode == http.StatusUnauthorized {
			a.creds.Invalidate()
		}
		return RawOffer{}, &RequestError{Kind: ErrConfirm, Op: "pricing", StatusCode: resp.StatusCode, Body: readErrorBody(resp.Body)}
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return RawOffer{}, &RequestError{Kind: ErrConfirm, Op: "pricing", Err: err}
	}
	priced := gjson.GetBytes(respBody, "data.flightOffers.0")
	if !priced.IsObject() {
		return RawOffer{}, &RequestError{Kind: ErrConfirm, Op: "pricing", Err: errors.New("no priced offer in response")}
	}

	out := NewRawOffer(json.RawMessage(priced.Raw))
	if out.ID == "" {
		out.ID = offer.ID
	}
	return out, nil
}

func readErrorBody(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, maxErrorBody))
	return strings.TrimSpace(string(b))
}

func truncate(s string) string {
	if len(s) > maxErrorBody {
		s = s[:maxErrorBody]
	}
	return strings.TrimSpace(s)
}
