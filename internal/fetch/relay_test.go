package fetch_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sirupsen/logrus"

	"github.com/fjglira/qagen/internal/config"
	"github.com/fjglira/qagen/internal/domain"
	"github.com/fjglira/qagen/internal/fetch"
)

// relayServer answers each relay path with a scripted status and records hits.
type relayServer struct {
	mu       sync.Mutex
	hits     []string
	headers  map[string]http.Header
	statuses map[string]int
	srv      *httptest.Server
}

func newRelayServer(statuses map[string]int) *relayServer {
	rs := &relayServer{statuses: statuses, headers: map[string]http.Header{}}
	rs.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rs.mu.Lock()
		rs.hits = append(rs.hits, r.URL.Path)
		rs.headers[r.URL.Path] = r.Header.Clone()
		status := rs.statuses[r.URL.Path]
		rs.mu.Unlock()
		if status == 0 {
			status = http.StatusOK
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(r.URL.Query().Get("target")))
	}))
	return rs
}

func (rs *relayServer) Hits() []string {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return append([]string(nil), rs.hits...)
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func testFetchConfig(api, image []string) config.FetchConfig {
	cfg := config.DefaultConfig().Fetch
	cfg.APIRelays = api
	cfg.ImageRelays = image
	cfg.CacheBust = false
	return cfg
}

var _ = Describe("FetchThroughRelay", func() {
	var (
		rs     *relayServer
		pauses []time.Duration
		sleep  func(context.Context, time.Duration) error
	)

	BeforeEach(func() {
		pauses = nil
		sleep = func(ctx context.Context, d time.Duration) error {
			pauses = append(pauses, d)
			return ctx.Err()
		}
	})

	AfterEach(func() {
		if rs != nil {
			rs.srv.Close()
		}
	})

	relays := func(paths ...string) []string {
		out := make([]string, len(paths))
		for i, p := range paths {
			out[i] = rs.srv.URL + p + "?target={url}"
		}
		return out
	}

	It("should try every relay exactly once in order when all return 500", func() {
		rs = newRelayServer(map[string]int{"/a": 500, "/b": 502, "/c": 503})
		c := fetch.NewClient(testFetchConfig(relays("/a", "/b", "/c"), nil), nil, quietLogger(), fetch.WithSleep(sleep))

		_, err := c.FetchThroughRelay(context.Background(), "https://api.figma.com/v1/files/k", nil, fetch.ClassAPI)
		Expect(err).To(HaveOccurred())
		Expect(errors.Is(err, domain.ErrNoRelay)).To(BeTrue())
		Expect(rs.Hits()).To(Equal([]string{"/a", "/b", "/c"}))
	})

	It("should return 404 immediately without trying further relays", func() {
		rs = newRelayServer(map[string]int{"/a": 404})
		c := fetch.NewClient(testFetchConfig(relays("/a", "/b"), nil), nil, quietLogger(), fetch.WithSleep(sleep))

		resp, err := c.FetchThroughRelay(context.Background(), "https://x/y", nil, fetch.ClassAPI)
		Expect(err).ToNot(HaveOccurred())
		Expect(resp.StatusCode).To(Equal(404))
		Expect(rs.Hits()).To(Equal([]string{"/a"}))
	})

	It("should move past a 429 to the next relay after a short pause", func() {
		rs = newRelayServer(map[string]int{"/a": 429})
		c := fetch.NewClient(testFetchConfig(relays("/a", "/b"), nil), nil, quietLogger(), fetch.WithSleep(sleep))

		resp, err := c.FetchThroughRelay(context.Background(), "https://x/y", nil, fetch.ClassAPI)
		Expect(err).ToNot(HaveOccurred())
		Expect(resp.StatusCode).To(Equal(200))
		Expect(string(resp.Body)).To(Equal("https://x/y"))
		Expect(rs.Hits()).To(Equal([]string{"/a", "/b"}))
		Expect(pauses).To(Equal([]time.Duration{500 * time.Millisecond}))
	})

	It("should return a 429 from the last relay to the caller", func() {
		rs = newRelayServer(map[string]int{"/a": 500, "/b": 429})
		c := fetch.NewClient(testFetchConfig(relays("/a", "/b"), nil), nil, quietLogger(), fetch.WithSleep(sleep))

		resp, err := c.FetchThroughRelay(context.Background(), "https://x/y", nil, fetch.ClassAPI)
		Expect(err).ToNot(HaveOccurred())
		Expect(resp.StatusCode).To(Equal(429))
	})

	It("should surface the last network error when relays are unreachable", func() {
		rs = newRelayServer(nil)
		dead := httptest.NewServer(http.NotFoundHandler())
		deadURL := dead.URL
		dead.Close()

		cfg := testFetchConfig([]string{deadURL + "/gone?target={url}"}, nil)
		c := fetch.NewClient(cfg, nil, quietLogger(), fetch.WithSleep(sleep))
		_, err := c.FetchThroughRelay(context.Background(), "https://x/y", nil, fetch.ClassAPI)
		Expect(errors.Is(err, domain.ErrNoRelay)).To(BeTrue())
		Expect(err.Error()).To(ContainSubstring("connect"))
	})

	It("should forward headers for API calls only", func() {
		rs = newRelayServer(nil)
		c := fetch.NewClient(testFetchConfig(relays("/api"), relays("/img")), nil, quietLogger())
		h := http.Header{"X-Figma-Token": []string{"secret"}}

		_, err := c.FetchThroughRelay(context.Background(), "https://x/y", h, fetch.ClassAPI)
		Expect(err).ToNot(HaveOccurred())
		_, err = c.FetchThroughRelay(context.Background(), "https://x/img.png", h, fetch.ClassImage)
		Expect(err).ToNot(HaveOccurred())

		Expect(rs.headers["/api"].Get("X-Figma-Token")).To(Equal("secret"))
		Expect(rs.headers["/img"].Get("X-Figma-Token")).To(BeEmpty())
	})

	It("should propagate cancellation of an in-flight request without trying more relays", func() {
		release := make(chan struct{})
		var hits []string
		var mu sync.Mutex
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			mu.Lock()
			hits = append(hits, r.URL.Path)
			mu.Unlock()
			select {
			case <-r.Context().Done():
			case <-release:
			}
		}))
		defer srv.Close()
		defer close(release)

		cfg := testFetchConfig([]string{srv.URL + "/slow?t={url}", srv.URL + "/next?t={url}"}, nil)
		c := fetch.NewClient(cfg, nil, quietLogger())

		ctx, cancel := context.WithCancel(context.Background())
		time.AfterFunc(20*time.Millisecond, cancel)

		_, err := c.FetchThroughRelay(ctx, "https://x/y", nil, fetch.ClassAPI)
		Expect(errors.Is(err, context.Canceled)).To(BeTrue())
		mu.Lock()
		defer mu.Unlock()
		Expect(hits).To(Equal([]string{"/slow"}))
	})

	It("should move past a relay that exceeds the client timeout", func() {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/slow" {
				select {
				case <-r.Context().Done():
				case <-time.After(500 * time.Millisecond):
				}
				return
			}
			_, _ = w.Write([]byte("ok"))
		}))
		defer srv.Close()

		cfg := testFetchConfig([]string{srv.URL + "/slow?t={url}", srv.URL + "/next?t={url}"}, nil)
		c := fetch.NewClient(cfg, &http.Client{Timeout: 100 * time.Millisecond}, quietLogger(), fetch.WithSleep(sleep))

		resp, err := c.FetchThroughRelay(context.Background(), "https://x/y", nil, fetch.ClassAPI)
		Expect(err).ToNot(HaveOccurred())
		Expect(string(resp.Body)).To(Equal("ok"))
		Expect(resp.Relay).To(HaveSuffix("/next?t={url}"))
	})
})

var _ = Describe("BuildRelayURL", func() {
	now := time.UnixMilli(1700000000000)

	It("should escape the target for {url}", func() {
		got := fetch.BuildRelayURL("https://proxy/?url={url}", "https://api.figma.com/v1/files/k?depth=1", false, now)
		Expect(got).To(Equal("https://proxy/?url=https%3A%2F%2Fapi.figma.com%2Fv1%2Ffiles%2Fk%3Fdepth%3D1"))
	})

	It("should pass the target through for {rawurl}", func() {
		Expect(fetch.BuildRelayURL("{rawurl}", "https://a/b", false, now)).To(Equal("https://a/b"))
	})

	It("should add a cache-busting timestamp to the target", func() {
		Expect(fetch.BuildRelayURL("{rawurl}", "https://a/b?x=1", true, now)).To(Equal("https://a/b?x=1&_cb=1700000000000"))
		Expect(fetch.BuildRelayURL("{rawurl}", "https://a/b", true, now)).To(Equal("https://a/b?_cb=1700000000000"))
	})
})
