package clublogbridge

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/jpalmerr/clublogbridge/clublog"
	"github.com/jpalmerr/clublogbridge/discovery"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var testCreds = clublog.Credentials{
	APIKey:      "key-123",
	Email:       "op@example.com",
	AppPassword: "s3cret",
	Callsign:    "M0ABC",
}

// fixtureBodies are canned upstream responses keyed by path.
var fixtureBodies = map[string]string{
	clublog.PathDXCCMatrix:  `{"1":{"20":1,"40":2},"100":{"20":3,"15":1},"200":{"10":2},"291":{"20":1,"40":1,"80":3}}`,
	clublog.PathWatch:       `{"clublog_user":true,"is_expedition":0,"has_oqrs":"1","clublog_info":{"total_qsos":"15234","last_upload":"2026-02-01 14:30:00"}}`,
	clublog.PathMostWanted:  `{"1":"237","2":"4","3":"246"}`,
	clublog.PathExpeditions: `[["3Y0K","2026-01-15",45000],["VP8A","2026-01-20",1200]]`,
	clublog.PathLivestreams: `[["3Y0K","199","2026-01-15","https://example.com/3Y0K"]]`,
	clublog.PathActivity:    `{"20m":[10,20,30],"40m":[5]}`,
}

// fakeClubLog serves fixtureBodies and lets tests override the status of
// individual paths.
type fakeClubLog struct {
	server *httptest.Server

	mu        sync.Mutex
	status    map[string]int
	hits      map[string]int
	userAgent string
}

func newFakeClubLog(t *testing.T) *fakeClubLog {
	t.Helper()
	f := &fakeClubLog{
		status: make(map[string]int),
		hits:   make(map[string]int),
	}
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.hits[r.URL.Path]++
		f.userAgent = r.Header.Get("User-Agent")
		code := f.status[r.URL.Path]
		f.mu.Unlock()

		if code != 0 && code != http.StatusOK {
			w.WriteHeader(code)
			return
		}
		body, ok := fixtureBodies[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeClubLog) setStatus(path string, code int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status[path] = code
}

func (f *fakeClubLog) failAll(code int) {
	for path := range fixtureBodies {
		f.setStatus(path, code)
	}
}

func (f *fakeClubLog) hitCount(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hits[path]
}

func (f *fakeClubLog) lastUserAgent() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.userAgent
}

func (f *fakeClubLog) totalHits() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, h := range f.hits {
		n += h
	}
	return n
}

// fakeClock is a manually advanced clock safe for use from the polling
// goroutine and the test.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func noJitter(d time.Duration) time.Duration { return d }

// testOptions returns the options shared by coordinator tests: the fake
// upstream, no request pacing, a fake clock and deterministic scheduling.
func testOptions(f *fakeClubLog, clock *fakeClock) []Option {
	return []Option{
		WithLogger(testLogger()),
		WithBaseURL(f.server.URL),
		WithMinRequestGap(0),
		WithStagger(0),
		WithJitter(noJitter),
		withClock(clock.Now),
	}
}

// fakePublisher records every published sensor.
type fakePublisher struct {
	mu        sync.Mutex
	published []discovery.Sensor
	err       error
	closed    bool
}

// Publish fails like a broker client would once ctx is done.
func (p *fakePublisher) Publish(ctx context.Context, s discovery.Sensor) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, s)
	return p.err
}

func (p *fakePublisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
}

func (p *fakePublisher) sensors() []discovery.Sensor {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]discovery.Sensor(nil), p.published...)
}

func (p *fakePublisher) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// latest returns the last published state per sensor id.
func (p *fakePublisher) latest() map[string]discovery.Sensor {
	out := make(map[string]discovery.Sensor)
	for _, s := range p.sensors() {
		out[s.ID] = s
	}
	return out
}
