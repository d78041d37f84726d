// Package nhle fetches the NHL GameCenter scoreboard feed. The feed serves
// JSONP, so the payload is unwrapped before decoding.
package nhle

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	sonic "github.com/bytedance/sonic"
	crerr "github.com/cockroachdb/errors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/hkropp/nhl-goal-light/internal/platform/logging"
	"github.com/hkropp/nhl-goal-light/internal/platform/resilience"
	"github.com/hkropp/nhl-goal-light/internal/usecase"
)

const (
	defaultBaseURL   = "http://live.nhle.com/GameData/GCScoreboard"
	feedDateLayout   = "2006-01-02"
	maxResponseBytes = 2 << 20
)

var errScoreboardTransient = crerr.New("scoreboard transient failure")

// currentDate arrives in US short form ("3/11/2017"); ISO is accepted as well
// in case the feed ever normalizes.
var currentDateLayouts = []string{"1/2/2006", "2006-01-02"}

type ClientConfig struct {
	HTTPClient     *http.Client
	BaseURL        string
	Timeout        time.Duration
	MaxRetries     int
	Logger         *logging.Logger
	CircuitBreaker resilience.BreakerConfig
}

type Client struct {
	httpClient *http.Client
	baseURL    string
	maxRetries int
	logger     *logging.Logger
	breaker    *resilience.Breaker
	flight     resilience.SingleFlight
}

func NewClient(cfg ClientConfig) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	if httpClient.Timeout <= 0 {
		httpClient.Timeout = 20 * time.Second
	}
	if _, ok := httpClient.Transport.(*otelhttp.Transport); !ok {
		httpClient.Transport = otelhttp.NewTransport(httpClient.Transport)
	}

	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	return &Client{
		httpClient: httpClient,
		baseURL:    baseURL,
		maxRetries: maxInt(cfg.MaxRetries, 0),
		logger:     logger,
		breaker:    resilience.NewBreaker(cfg.CircuitBreaker),
	}
}

// FetchScoreboard retrieves the scoreboard for the given day and maps it into
// the tracker's snapshot shape.
func (c *Client) FetchScoreboard(ctx context.Context, date time.Time) (usecase.ScoreboardSnapshot, error) {
	day := date.Format(feedDateLayout)
	fullURL := c.baseURL + "/" + day + ".jsonp"

	// The breaker check lives inside the flight fn so shared callers never
	// reserve half-open probe slots they cannot release.
	out, err, _ := c.flight.Do(fullURL, func() (any, error) {
		if allowErr := c.breaker.Allow(); allowErr != nil {
			c.logger.WarnContext(ctx, "scoreboard circuit breaker rejected request", "state", c.breaker.State())
			return nil, fmt.Errorf("%w: scoreboard feed is temporarily unavailable", usecase.ErrDependencyUnavailable)
		}
		raw, reqErr := c.executeRequest(ctx, fullURL)
		c.breaker.Observe(reqErr != nil && isScoreboardTransient(reqErr))
		return raw, reqErr
	})
	if err != nil {
		return usecase.ScoreboardSnapshot{}, err
	}

	raw, ok := out.([]byte)
	if !ok {
		return usecase.ScoreboardSnapshot{}, fmt.Errorf("unexpected response payload type %T", out)
	}

	body, err := stripJSONPWrapper(raw)
	if err != nil {
		return usecase.ScoreboardSnapshot{}, fmt.Errorf("unwrap scoreboard payload day=%s: %w", day, err)
	}

	var envelope scoreboardEnvelope
	if err := sonic.Unmarshal(body, &envelope); err != nil {
		return usecase.ScoreboardSnapshot{}, fmt.Errorf("decode scoreboard payload day=%s: %w", day, err)
	}

	return mapEnvelope(envelope, date), nil
}

func (c *Client) executeRequest(ctx context.Context, fullURL string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("accept", "application/javascript, application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("%w: send request: %v", errScoreboardTransient, err)
		} else {
			raw, readErr := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
			_ = resp.Body.Close()
			if readErr != nil {
				lastErr = fmt.Errorf("%w: read response body: %v", errScoreboardTransient, readErr)
			} else if resp.StatusCode >= 200 && resp.StatusCode < 300 {
				return raw, nil
			} else if isRetryableStatus(resp.StatusCode) {
				lastErr = fmt.Errorf("%w: feed status=%d", errScoreboardTransient, resp.StatusCode)
			} else {
				return nil, fmt.Errorf("feed status=%d", resp.StatusCode)
			}
		}

		if attempt == c.maxRetries {
			break
		}
		backoff := time.Duration(attempt+1) * time.Second
		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("feed request failed")
	}
	c.logger.WarnContext(ctx, "scoreboard request failed", "url", fullURL, "error", lastErr)
	return nil, lastErr
}

// stripJSONPWrapper cuts the loadScoreboard(...) callback shell off the
// payload, leaving the JSON object between the outermost braces.
func stripJSONPWrapper(raw []byte) ([]byte, error) {
	start := bytes.IndexByte(raw, '{')
	if start < 0 {
		return nil, fmt.Errorf("no JSON object in payload")
	}
	end := bytes.LastIndexByte(raw, '}')
	if end < start {
		return nil, fmt.Errorf("unterminated JSON object in payload")
	}
	return raw[start : end+1], nil
}

func mapEnvelope(envelope scoreboardEnvelope, requested time.Time) usecase.ScoreboardSnapshot {
	currentDate, err := parseCurrentDate(envelope.CurrentDate)
	if err != nil {
		// A missing feed date is not fatal, the requested day stands in.
		currentDate = requested
	}

	snapshot := usecase.ScoreboardSnapshot{
		CurrentDate: currentDate,
		Games:       make([]usecase.GameUpdate, 0, len(envelope.Games)),
	}
	for _, item := range envelope.Games {
		snapshot.Games = append(snapshot.Games, usecase.GameUpdate{
			GameID:    strconv.Itoa(int(item.ID)),
			Status:    strings.TrimSpace(item.Status),
			HomeAbbr:  strings.ToUpper(strings.TrimSpace(item.HomeAbbr)),
			HomeName:  strings.TrimSpace(item.HomeName),
			HomeCity:  strings.TrimSpace(item.HomeCity),
			HomeScore: int(item.HomeScore),
			HomeShots: int(item.HomeShots),
			AwayAbbr:  strings.ToUpper(strings.TrimSpace(item.AwayAbbr)),
			AwayName:  strings.TrimSpace(item.AwayName),
			AwayCity:  strings.TrimSpace(item.AwayCity),
			AwayScore: int(item.AwayScore),
			AwayShots: int(item.AwayShots),
		})
	}
	return snapshot
}

func parseCurrentDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("empty currentDate")
	}
	var lastErr error
	for _, layout := range currentDateLayouts {
		parsed, err := time.ParseInLocation(layout, value, time.Local)
		if err == nil {
			return parsed, nil
		}
		lastErr = err
	}
	return time.Time{}, fmt.Errorf("parse currentDate %q: %w", value, lastErr)
}

func isScoreboardTransient(err error) bool {
	return stderrors.Is(err, errScoreboardTransient)
}

func isRetryableStatus(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
