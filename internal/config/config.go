package config

import (
	"os"
	"strings"
	"time"

	"github.com/Laisky/errors/v2"
	"github.com/spf13/viper"
)

const dateLayout = "2006-01-02"

type Config struct {
	Search   SearchConfig
	Criteria CriteriaConfig
	Confirm  ConfirmConfig
	Amadeus  AmadeusConfig
	Telegram TelegramConfig
	Notify   NotifyConfig
	Log      LogConfig
}

// SearchConfig is the fixed round trip the monitor watches.
type SearchConfig struct {
	Origin        string
	Destination   string
	DepartureDate string
	ReturnDate    string
	Adults        int
	NonStopOnly   bool
	Currency      string
	MaxResults    int
}

// CriteriaConfig holds the qualification ceilings. A zero value disables that ceiling.
type CriteriaConfig struct {
	MaxPriceTotal     float64
	MaxPricePerPerson float64
	GreatPriceTotal   float64
}

// ConfirmConfig drives re-pricing. MaxOffers caps how many qualifying offers are
// re-priced per run, cheapest first; 0 re-prices all of them.
type ConfirmConfig struct {
	Enabled   bool
	Attempts  int
	Backoff   time.Duration
	MaxOffers int
}

type AmadeusConfig struct {
	URL          string
	ClientID     string
	ClientSecret string
	Timeout      time.Duration
}

type TelegramConfig struct {
	Token   string
	ChatID  string
	API     string
	Timeout time.Duration
}

type NotifyConfig struct {
	OnEmpty         bool
	OnSearchFailure bool
	TopN            int
	CheckInterval   time.Duration
	BookingLink     string
}

type LogConfig struct {
	Level  string
	Format string
	File   string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("search.origin", "ICN")
	v.SetDefault("search.destination", "HNL")
	v.SetDefault("search.departure_date", "2025-10-04")
	v.SetDefault("search.return_date", "2025-10-08")
	v.SetDefault("search.adults", 2)
	v.SetDefault("search.non_stop_only", true)
	v.SetDefault("search.currency", "KRW")
	v.SetDefault("search.max_results", 20)

	v.SetDefault("criteria.max_price_total", 1500000)
	v.SetDefault("criteria.max_price_per_person", 0)
	v.SetDefault("criteria.great_price_total", 0)

	v.SetDefault("confirm.enabled", false)
	v.SetDefault("confirm.attempts", 3)
	v.SetDefault("confirm.backoff", "2s")
	v.SetDefault("confirm.max_offers", 5)

	v.SetDefault("amadeus.url", "https://api.amadeus.com")
	v.SetDefault("amadeus.timeout", "30s")

	v.SetDefault("telegram.api", "https://api.telegram.org")
	v.SetDefault("telegram.timeout", "10s")

	v.SetDefault("notify.on_empty", false)
	v.SetDefault("notify.on_search_failure", false)
	v.SetDefault("notify.top_n", 5)
	v.SetDefault("notify.check_interval", "30m")
	v.SetDefault("notify.booking_link",
		"https://www.google.com/travel/flights?q=Flights%20from%20{origin}%20to%20{destination}%20on%20{departure}%20through%20{return}")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.file", "")
}

// Load reads defaults, an optional config file and the environment, in that order of
// precedence (environment wins). path overrides FLIGHTMON_CONFIG and the search paths.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path == "" {
		path = os.Getenv("FLIGHTMON_CONFIG")
	}
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/flightmon")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, errors.Wrap(err, "read config file")
		}
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// names used by the original cron deployment
	_ = v.BindEnv("amadeus.client_id", "AMADEUS_CLIENT_ID", "AMADEUS_API_KEY")
	_ = v.BindEnv("amadeus.client_secret", "AMADEUS_CLIENT_SECRET", "AMADEUS_API_SECRET")
	_ = v.BindEnv("telegram.token", "TELEGRAM_TOKEN", "TELEGRAM_BOT_TOKEN")
	_ = v.BindEnv("telegram.chat_id", "TELEGRAM_CHAT_ID")

	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	durations := map[string]*time.Duration{}
	cfg := &Config{
		Search: SearchConfig{
			Origin:        strings.ToUpper(strings.TrimSpace(v.GetString("search.origin"))),
			Destination:   strings.ToUpper(strings.TrimSpace(v.GetString("search.destination"))),
			DepartureDate: v.GetString("search.departure_date"),
			ReturnDate:    v.GetString("search.return_date"),
			Adults:        v.GetInt("search.adults"),
			NonStopOnly:   v.GetBool("search.non_stop_only"),
			Currency:      strings.ToUpper(v.GetString("search.currency")),
			MaxResults:    v.GetInt("search.max_results"),
		},
		Criteria: CriteriaConfig{
			MaxPriceTotal:     v.GetFloat64("criteria.max_price_total"),
			MaxPricePerPerson: v.GetFloat64("criteria.max_price_per_person"),
			GreatPriceTotal:   v.GetFloat64("criteria.great_price_total"),
		},
		Confirm: ConfirmConfig{
			Enabled:   v.GetBool("confirm.enabled"),
			Attempts:  v.GetInt("confirm.attempts"),
			MaxOffers: v.GetInt("confirm.max_offers"),
		},
		Amadeus: AmadeusConfig{
			URL:          strings.TrimRight(v.GetString("amadeus.url"), "/"),
			ClientID:     v.GetString("amadeus.client_id"),
			ClientSecret: v.GetString("amadeus.client_secret"),
		},
		Telegram: TelegramConfig{
			Token:  v.GetString("telegram.token"),
			ChatID: v.GetString("telegram.chat_id"),
			API:    strings.TrimRight(v.GetString("telegram.api"), "/"),
		},
		Notify: NotifyConfig{
			OnEmpty:         v.GetBool("notify.on_empty"),
			OnSearchFailure: v.GetBool("notify.on_search_failure"),
			TopN:            v.GetInt("notify.top_n"),
			BookingLink:     v.GetString("notify.booking_link"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			File:   v.GetString("log.file"),
		},
	}

	durations["confirm.backoff"] = &cfg.Confirm.Backoff
	durations["amadeus.timeout"] = &cfg.Amadeus.Timeout
	durations["telegram.timeout"] = &cfg.Telegram.Timeout
	durations["notify.check_interval"] = &cfg.Notify.CheckInterval
	for key, dst := range durations {
		d, err := time.ParseDuration(v.GetString(key))
		if err != nil {
			return nil, errors.Wrapf(err, "bad %s", key)
		}
		*dst = d
	}

	return cfg, nil
}

// Validate reports every problem at once so a misconfigured deployment can be fixed
// in a single pass.
func (c *Config) Validate() error {
	var problems []string
	missing := func(key, val string) {
		if strings.TrimSpace(val) == "" {
			problems = append(problems, key+" is required")
		}
	}

	missing("amadeus.client_id", c.Amadeus.ClientID)
	missing("amadeus.client_secret", c.Amadeus.ClientSecret)
	missing("telegram.token", c.Telegram.Token)
	missing("telegram.chat_id", c.Telegram.ChatID)
	missing("search.origin", c.Search.Origin)
	missing("search.destination", c.Search.Destination)

	dep, depErr := time.Parse(dateLayout, c.Search.DepartureDate)
	if depErr != nil {
		problems = append(problems, "search.departure_date must be YYYY-MM-DD")
	}
	ret, retErr := time.Parse(dateLayout, c.Search.ReturnDate)
	if retErr != nil {
		problems = append(problems, "search.return_date must be YYYY-MM-DD")
	}
	if depErr == nil && retErr == nil && ret.Before(dep) {
		problems = append(problems, "search.return_date is before search.departure_date")
	}

	if c.Search.Adults < 1 || c.Search.Adults > 9 {
		problems = append(problems, "search.adults must be between 1 and 9")
	}
	if c.Search.MaxResults < 1 {
		problems = append(problems, "search.max_results must be positive")
	}
	if len(c.Search.Currency) != 3 {
		problems = append(problems, "search.currency must be an ISO 4217 code")
	}
	if c.Criteria.MaxPriceTotal < 0 || c.Criteria.MaxPricePerPerson < 0 || c.Criteria.GreatPriceTotal < 0 {
		problems = append(problems, "criteria prices must not be negative")
	}
	if c.Confirm.Attempts < 1 {
		problems = append(problems, "confirm.attempts must be at least 1")
	}
	if c.Confirm.Backoff < 0 {
		problems = append(problems, "confirm.backoff must not be negative")
	}
	if c.Confirm.MaxOffers < 0 {
		problems = append(problems, "confirm.max_offers must not be negative")
	}
	if c.Amadeus.Timeout <= 0 || c.Telegram.Timeout <= 0 {
		problems = append(problems, "timeouts must be positive")
	}
	if c.Notify.TopN < 1 {
		problems = append(problems, "notify.top_n must be positive")
	}

	if len(problems) > 0 {
		return errors.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}
