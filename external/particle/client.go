// Package particle publishes events to the Particle Cloud, which relays them
// to the goal-light device subscribed to the event stream.
package particle

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	sonic "github.com/bytedance/sonic"
	crerr "github.com/cockroachdb/errors"
	"github.com/valyala/bytebufferpool"
	"github.com/valyala/fasthttp"

	"github.com/hkropp/nhl-goal-light/internal/platform/logging"
	"github.com/hkropp/nhl-goal-light/internal/platform/resilience"
	"github.com/hkropp/nhl-goal-light/internal/usecase"
)

const (
	defaultBaseURL = "https://api.particle.io"
	publishPath    = "/v1/devices/events"
	defaultTTL     = 60

	// Event names the device firmware subscribes to. EventGameStatus is
	// reserved for period and intermission updates.
	EventGoal       = "nhl-goal"
	EventGameDay    = "nhl-gameday"
	EventGameStatus = "nhl-gamestatus"
)

var errParticleTransient = crerr.New("particle transient failure")

type ClientConfig struct {
	BaseURL        string
	AccessToken    string
	Timeout        time.Duration
	Logger         *logging.Logger
	CircuitBreaker resilience.BreakerConfig
}

type Client struct {
	httpClient *fasthttp.Client
	baseURL    string
	token      string
	timeout    time.Duration
	logger     *logging.Logger
	breaker    *resilience.Breaker
}

func NewClient(cfg ClientConfig) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	return &Client{
		httpClient: &fasthttp.Client{
			ReadTimeout:  timeout,
			WriteTimeout: timeout,
		},
		baseURL: baseURL,
		token:   strings.TrimSpace(cfg.AccessToken),
		timeout: timeout,
		logger:  logger,
		breaker: resilience.NewBreaker(cfg.CircuitBreaker),
	}
}

// PublishGoal announces a goal as "ABR:score", the cumulative score after the
// goal was counted.
func (c *Client) PublishGoal(ctx context.Context, teamAbbr string, score int) error {
	teamAbbr = strings.ToUpper(strings.TrimSpace(teamAbbr))
	if teamAbbr == "" {
		return fmt.Errorf("%w: team abbreviation is required", usecase.ErrInvalidInput)
	}
	if score < 0 {
		score = 0
	}
	return c.publish(ctx, EventGoal, teamAbbr+":"+strconv.Itoa(score))
}

// PublishGameDay announces the day's matchups, "HOME:AWAY" pairs joined with
// semicolons.
func (c *Client) PublishGameDay(ctx context.Context, matchups []string) error {
	if len(matchups) == 0 {
		return nil
	}
	return c.publish(ctx, EventGameDay, strings.Join(matchups, ";"))
}

func (c *Client) publish(ctx context.Context, event, data string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.token == "" {
		return fmt.Errorf("%w: particle access token is not configured", usecase.ErrDependencyUnavailable)
	}
	if err := c.breaker.Allow(); err != nil {
		c.logger.WarnContext(ctx, "particle circuit breaker rejected request", "state", c.breaker.State())
		return fmt.Errorf("%w: particle cloud is temporarily unavailable", usecase.ErrDependencyUnavailable)
	}

	body := bytebufferpool.Get()
	defer bytebufferpool.Put(body)
	appendFormField(body, "name", event)
	appendFormField(body, "data", data)
	appendFormField(body, "private", "true")
	appendFormField(body, "ttl", strconv.Itoa(defaultTTL))

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.baseURL + publishPath)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.SetBody(body.Bytes())

	err := c.doPublish(req, resp, event)
	c.breaker.Observe(err != nil && isParticleTransient(err))
	if err != nil {
		c.logger.WarnContext(ctx, "particle publish failed", "event", event, "error", err)
		return err
	}

	c.logger.InfoContext(ctx, "particle event published", "event", event, "data", data)
	return nil
}

func (c *Client) doPublish(req *fasthttp.Request, resp *fasthttp.Response, event string) error {
	if err := c.httpClient.DoTimeout(req, resp, c.timeout); err != nil {
		return fmt.Errorf("%w: publish event=%s: %v", errParticleTransient, event, err)
	}

	status := resp.StatusCode()
	if status/100 != 2 {
		if isParticleRetryableStatus(status) {
			return fmt.Errorf("%w: publish event=%s status=%d", errParticleTransient, event, status)
		}
		return fmt.Errorf("publish event=%s status=%d body=%s", event, status, abbreviateBody(resp.Body()))
	}

	var ack struct {
		OK bool `json:"ok"`
	}
	if err := sonic.Unmarshal(resp.Body(), &ack); err != nil {
		return fmt.Errorf("decode publish ack event=%s: %w", event, err)
	}
	if !ack.OK {
		return fmt.Errorf("publish event=%s rejected by cloud", event)
	}
	return nil
}

func appendFormField(buf *bytebufferpool.ByteBuffer, name, value string) {
	if buf.Len() > 0 {
		_ = buf.WriteByte('&')
	}
	_, _ = buf.WriteString(name)
	_ = buf.WriteByte('=')
	_, _ = buf.WriteString(url.QueryEscape(value))
}

func abbreviateBody(raw []byte) string {
	const max = 512
	text := strings.TrimSpace(string(raw))
	if len(text) > max {
		return text[:max] + "...(truncated)"
	}
	return text
}

func isParticleTransient(err error) bool {
	return stderrors.Is(err, errParticleTransient)
}

func isParticleRetryableStatus(status int) bool {
	return status == fasthttp.StatusRequestTimeout ||
		status == fasthttp.StatusTooManyRequests ||
		status >= fasthttp.StatusInternalServerError
}
