package external

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/cenkalti/backoff"
	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"MediaSteGo/pkg/config"
	"MediaSteGo/pkg/models"
)

// Reputation is a threat intelligence verdict about a URL or file source
type Reputation struct {
	Service     string         `json:"service"`
	Target      string         `json:"target"`
	IsMalicious bool           `json:"isMalicious"`
	Confidence  float64        `json:"confidence"`
	ThreatType  string         `json:"threatType,omitempty"`
	Status      string         `json:"status,omitempty"`
	Raw         map[string]any `json:"raw,omitempty"`
}

// ReputationService looks a target up in a threat intelligence source
type ReputationService interface {
	Lookup(ctx context.Context, target string) (*Reputation, error)
}

// urlhausKnownConfidence is reported for URLs present in the URLhaus database
const urlhausKnownConfidence = 0.9

// URLhaus queries the abuse.ch URLhaus API. Calls are rate limited and transient
// failures are retried with exponential backoff.
type URLhaus struct {
	BaseURL    string
	APIKey     string
	Client     *http.Client
	Limiter    *rate.Limiter
	MaxRetries uint64

	newBackOff func() backoff.BackOff
}

// NewURLhaus builds a client from the reputation configuration
func NewURLhaus(cfg config.ReputationConfig) *URLhaus {
	return &URLhaus{
		BaseURL:    strings.TrimRight(cfg.URLhausURL, "/"),
		APIKey:     cfg.APIKey,
		Client:     &http.Client{Timeout: cfg.Timeout},
		Limiter:    rate.NewLimiter(rate.Limit(cfg.RatePerSecond), 1),
		MaxRetries: cfg.MaxRetries,
		newBackOff: func() backoff.BackOff { return backoff.NewExponentialBackOff() },
	}
}

type urlhausResponse struct {
	QueryStatus string `json:"query_status"`
	URLStatus   string `json:"url_status"`
	Threat      string `json:"threat"`
	ThreatType  string `json:"threat_type"`
	DateAdded   string `json:"date_added"`
	Reporter    string `json:"reporter"`
	Host        string `json:"host"`
}

func (u *URLhaus) Lookup(ctx context.Context, target string) (*Reputation, error) {
	var (
		body      []byte
		permanent error
	)

	op := func() error {
		if err := u.Limiter.Wait(ctx); err != nil {
			permanent = err
			return nil
		}

		form := url.Values{"url": {target}}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.BaseURL+"/url/", strings.NewReader(form.Encode()))
		if err != nil {
			permanent = err
			return nil
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("Accept", "application/json")
		if u.APIKey != "" {
			req.Header.Set("Auth-Key", u.APIKey)
		}

		resp, err := u.Client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
			return fmt.Errorf("urlhaus: status %d", resp.StatusCode)
		case resp.StatusCode != http.StatusOK:
			permanent = fmt.Errorf("urlhaus: status %d", resp.StatusCode)
			return nil
		}

		body, err = io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		return err
	}

	b := u.backOff()
	if err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(b, u.MaxRetries), ctx)); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrCollaboratorUnavailable, err)
	}
	if permanent != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrCollaboratorUnavailable, permanent)
	}

	var res urlhausResponse
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, fmt.Errorf("failed to parse urlhaus response: %w", err)
	}

	rep := &Reputation{
		Service: "urlhaus",
		Target:  target,
		Raw: map[string]any{
			"query_status": res.QueryStatus,
			"date_added":   res.DateAdded,
			"reporter":     res.Reporter,
			"host":         res.Host,
		},
	}
	if res.QueryStatus == "ok" {
		rep.IsMalicious = true
		rep.Confidence = urlhausKnownConfidence
		rep.Status = res.URLStatus
		rep.ThreatType = res.Threat
		if rep.ThreatType == "" {
			rep.ThreatType = res.ThreatType
		}
		if rep.ThreatType == "" {
			rep.ThreatType = "malware"
		}
	}
	return rep, nil
}

func (u *URLhaus) backOff() backoff.BackOff {
	if u.newBackOff != nil {
		return u.newBackOff()
	}
	return backoff.NewExponentialBackOff()
}

