package nhle

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/hkropp/nhl-goal-light/internal/platform/logging"
	"github.com/hkropp/nhl-goal-light/internal/platform/resilience"
)

const scoreboardPayload = `loadScoreboard({
	"currentDate": "3/11/2017",
	"games": [
		{
			"id": 2016020428,
			"bs": "7:00 pm",
			"hta": "pit",
			"htcommon": "Penguins",
			"htn": "Pittsburgh",
			"hts": null,
			"htsog": null,
			"ata": "cbj",
			"atcommon": "Blue Jackets",
			"atn": "Columbus",
			"ats": null,
			"atsog": null
		},
		{
			"id": 2016020429,
			"bs": "2nd Period",
			"hta": "PHI",
			"htcommon": "Flyers",
			"htn": "Philadelphia",
			"hts": "2",
			"htsog": 18,
			"ata": "NJD",
			"atcommon": "Devils",
			"atn": "New Jersey",
			"ats": 1,
			"atsog": "11"
		}
	]
})`

func TestFetchScoreboard_UnwrapsAndMapsPayload(t *testing.T) {
	t.Parallel()

	var requestedPath atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestedPath.Store(r.URL.Path)
		w.Header().Set("Content-Type", "application/javascript")
		_, _ = w.Write([]byte(scoreboardPayload))
	}))
	defer srv.Close()

	client := NewClient(ClientConfig{
		HTTPClient: srv.Client(),
		BaseURL:    srv.URL,
		Logger:     logging.NewNop(),
	})

	date := time.Date(2017, time.March, 11, 9, 0, 0, 0, time.Local)
	snapshot, err := client.FetchScoreboard(context.Background(), date)
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}

	if got := requestedPath.Load(); got != "/2017-03-11.jsonp" {
		t.Fatalf("unexpected request path: %v", got)
	}

	wantDate := time.Date(2017, time.March, 11, 0, 0, 0, 0, time.Local)
	if !snapshot.CurrentDate.Equal(wantDate) {
		t.Fatalf("expected currentDate=%s, got=%s", wantDate, snapshot.CurrentDate)
	}

	if len(snapshot.Games) != 2 {
		t.Fatalf("expected two games, got %d", len(snapshot.Games))
	}

	pregame := snapshot.Games[0]
	if pregame.GameID != "2016020428" {
		t.Fatalf("unexpected game id: %s", pregame.GameID)
	}
	if pregame.HomeAbbr != "PIT" || pregame.AwayAbbr != "CBJ" {
		t.Fatalf("expected abbreviations uppercased, got home=%s away=%s", pregame.HomeAbbr, pregame.AwayAbbr)
	}
	if pregame.HomeScore != 0 || pregame.AwayScore != 0 {
		t.Fatalf("expected null scores coerced to 0, got home=%d away=%d", pregame.HomeScore, pregame.AwayScore)
	}
	if pregame.Status != "7:00 pm" {
		t.Fatalf("unexpected status: %q", pregame.Status)
	}

	live := snapshot.Games[1]
	if live.HomeScore != 2 || live.AwayScore != 1 {
		t.Fatalf("expected mixed numeric encodings decoded, got home=%d away=%d", live.HomeScore, live.AwayScore)
	}
	if live.HomeShots != 18 || live.AwayShots != 11 {
		t.Fatalf("unexpected shots: home=%d away=%d", live.HomeShots, live.AwayShots)
	}
}

func TestFetchScoreboard_NonRetryableStatusFailsOnce(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	client := NewClient(ClientConfig{
		HTTPClient: srv.Client(),
		BaseURL:    srv.URL,
		MaxRetries: 3,
		Logger:     logging.NewNop(),
	})

	_, err := client.FetchScoreboard(context.Background(), time.Now())
	if err == nil {
		t.Fatalf("expected error for 404")
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("expected no retries on a non-retryable status, got %d calls", got)
	}
}

func TestFetchScoreboard_RetriesTransientStatus(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/javascript")
		_, _ = w.Write([]byte(scoreboardPayload))
	}))
	defer srv.Close()

	client := NewClient(ClientConfig{
		HTTPClient: srv.Client(),
		BaseURL:    srv.URL,
		MaxRetries: 1,
		Logger:     logging.NewNop(),
	})

	snapshot, err := client.FetchScoreboard(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("expected retry to recover, got %v", err)
	}
	if got := calls.Load(); got != 2 {
		t.Fatalf("expected two calls, got %d", got)
	}
	if len(snapshot.Games) != 2 {
		t.Fatalf("expected payload after retry, got %d games", len(snapshot.Games))
	}
}

func TestNewClient_InstrumentsTransport(t *testing.T) {
	t.Parallel()

	client := NewClient(ClientConfig{Logger: logging.NewNop()})
	if _, ok := client.httpClient.Transport.(*otelhttp.Transport); !ok {
		t.Fatalf("expected an instrumented transport, got %T", client.httpClient.Transport)
	}
}

func TestFetchScoreboard_ConcurrentCallersShareHalfOpenProbe(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	hit := make(chan struct{})
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch calls.Add(1) {
		case 1:
			w.WriteHeader(http.StatusServiceUnavailable)
		default:
			close(hit)
			<-release
			_, _ = w.Write([]byte(scoreboardPayload))
		}
	}))
	defer srv.Close()

	client := NewClient(ClientConfig{
		HTTPClient: srv.Client(),
		BaseURL:    srv.URL,
		Logger:     logging.NewNop(),
		CircuitBreaker: resilience.BreakerConfig{
			Enabled:          true,
			FailureThreshold: 1,
			OpenTimeout:      50 * time.Millisecond,
			HalfOpenMaxReq:   1,
		},
	})

	date := time.Date(2017, time.March, 11, 9, 0, 0, 0, time.Local)
	if _, err := client.FetchScoreboard(context.Background(), date); err == nil {
		t.Fatalf("expected the tripping fetch to fail")
	}
	time.Sleep(60 * time.Millisecond)

	// Two callers during the single half-open probe: the second joins the
	// in-flight request instead of burning a probe slot of its own.
	errs := make(chan error, 2)
	go func() {
		_, err := client.FetchScoreboard(context.Background(), date)
		errs <- err
	}()
	<-hit
	go func() {
		_, err := client.FetchScoreboard(context.Background(), date)
		errs <- err
	}()
	time.Sleep(50 * time.Millisecond)
	close(release)

	for i := 0; i < 2; i++ {
		if err := <-errs; err != nil {
			t.Fatalf("expected shared half-open fetch to succeed, got %v", err)
		}
	}
	if got := calls.Load(); got != 2 {
		t.Fatalf("expected one probe request after the trip, got %d calls", got)
	}
}

func TestStripJSONPWrapper(t *testing.T) {
	t.Parallel()

	out, err := stripJSONPWrapper([]byte(`loadScoreboard({"currentDate":"3/11/2017","games":[]})`))
	if err != nil {
		t.Fatalf("unwrap failed: %v", err)
	}
	if string(out) != `{"currentDate":"3/11/2017","games":[]}` {
		t.Fatalf("unexpected unwrapped payload: %s", out)
	}

	if _, err := stripJSONPWrapper([]byte(`loadScoreboard()`)); err == nil {
		t.Fatalf("expected error for payload without a JSON object")
	}
}

func TestFlexIntTolerantDecoding(t *testing.T) {
	t.Parallel()

	cases := map[string]int{
		`7`:     7,
		`"12"`:  12,
		`""`:    0,
		`null`:  0,
		`"n/a"`: 0,
		`" 3 "`: 3,
	}
	for raw, want := range cases {
		var f flexInt
		if err := f.UnmarshalJSON([]byte(raw)); err != nil {
			t.Fatalf("decode %s failed: %v", raw, err)
		}
		if int(f) != want {
			t.Fatalf("decode %s: expected %d, got %d", raw, want, f)
		}
	}
}
