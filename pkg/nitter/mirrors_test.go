package nitter_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sirupsen/logrus"

	"github.com/lisanmuaddib/tweet-digest/pkg/nitter"
)

type stubSource struct {
	name    string
	mirrors []string
	err     error
	block   bool
	calls   atomic.Int32
}

func (s *stubSource) Name() string {
	return s.name
}

func (s *stubSource) Discover(ctx context.Context) ([]string, error) {
	s.calls.Add(1)
	if s.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return s.mirrors, s.err
}

func testConfig() *nitter.Config {
	config := nitter.DefaultConfig()
	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)
	logger.SetOutput(GinkgoWriter)
	config.Logger = logger
	config.DelayMin = 0
	config.DelayMax = 0
	config.PerRequestDelay = false
	return config
}

var _ = Describe("Directory", func() {
	var (
		config *nitter.Config
		ctx    context.Context
	)

	BeforeEach(func() {
		config = testConfig()
		ctx = context.Background()
	})

	Context("when every discovery source fails", func() {
		It("should return the default mirrors", func() {
			failing := &stubSource{name: "a", err: errors.New("boom")}
			empty := &stubSource{name: "b"}
			dir := nitter.NewDirectoryWithSources(config, failing, empty)

			Expect(dir.ListCandidates(ctx)).To(Equal(nitter.DefaultMirrors))
			Expect(failing.calls.Load()).To(Equal(int32(1)))
			Expect(empty.calls.Load()).To(Equal(int32(1)))
		})

		It("should give up on a source after its timeout", func() {
			config.DiscoveryTimeout = 50 * time.Millisecond
			dir := nitter.NewDirectoryWithSources(config, &stubSource{name: "slow", block: true})

			start := time.Now()
			Expect(dir.ListCandidates(ctx)).To(Equal(nitter.DefaultMirrors))
			Expect(time.Since(start)).To(BeNumerically("<", 2*time.Second))
		})

		It("should not cache the defaults", func() {
			source := &stubSource{name: "a", err: errors.New("boom")}
			dir := nitter.NewDirectoryWithSources(config, source)

			dir.ListCandidates(ctx)
			dir.ListCandidates(ctx)
			Expect(source.calls.Load()).To(Equal(int32(2)))
		})
	})

	Context("when a source returns mirrors", func() {
		var first, second *stubSource

		BeforeEach(func() {
			first = &stubSource{name: "first", err: errors.New("unreachable")}
			second = &stubSource{name: "second", mirrors: []string{
				"nitter.example.org",
				"https://Nitter.Example.org/",
				"http://plain.example",
				"https://127.0.0.1",
				"https://b.example/",
				"",
			}}
		})

		It("should normalize and de-duplicate them", func() {
			dir := nitter.NewDirectoryWithSources(config, first, second)

			Expect(dir.ListCandidates(ctx)).To(Equal([]string{
				"https://nitter.example.org",
				"https://b.example",
			}))
		})

		It("should stop at the first usable source", func() {
			third := &stubSource{name: "third", mirrors: []string{"https://c.example"}}
			dir := nitter.NewDirectoryWithSources(config, second, third)

			dir.ListCandidates(ctx)
			Expect(third.calls.Load()).To(BeZero())
		})

		It("should drop blacklisted origins", func() {
			config.Blacklist = []string{"B.EXAMPLE"}
			dir := nitter.NewDirectoryWithSources(config, second)

			Expect(dir.ListCandidates(ctx)).To(Equal([]string{"https://nitter.example.org"}))
		})

		It("should cache discovered mirrors until invalidated", func() {
			dir := nitter.NewDirectoryWithSources(config, second)

			got := dir.ListCandidates(ctx)
			got[0] = "mutated"
			Expect(dir.ListCandidates(ctx)[0]).To(Equal("https://nitter.example.org"))
			Expect(second.calls.Load()).To(Equal(int32(1)))

			dir.Invalidate()
			dir.ListCandidates(ctx)
			Expect(second.calls.Load()).To(Equal(int32(2)))
		})
	})

	Context("when the blacklist covers every default", func() {
		It("should still return the defaults", func() {
			config.Blacklist = []string{"nitter"}
			dir := nitter.NewDirectoryWithSources(config)

			Expect(dir.ListCandidates(ctx)).To(Equal(nitter.DefaultMirrors))
		})
	})

	Context("with remote listings", func() {
		var server *httptest.Server

		AfterEach(func() {
			if server != nil {
				server.Close()
			}
		})

		It("should read hosts from a JSON object", func() {
			server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.Write([]byte(`{"nitter.a.org": {"healthy": true}, "nitter.b.org": {}}`))
			}))
			dir := nitter.NewDirectoryWithSources(config, nitter.NewJSONSource(server.URL, server.Client()))

			Expect(dir.ListCandidates(ctx)).To(ConsistOf("https://nitter.a.org", "https://nitter.b.org"))
		})

		It("should read hosts from a JSON array", func() {
			server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`["https://x.example", {"url": "https://y.example/"}, 42]`))
			}))
			dir := nitter.NewDirectoryWithSources(config, nitter.NewJSONSource(server.URL, server.Client()))

			Expect(dir.ListCandidates(ctx)).To(Equal([]string{"https://x.example", "https://y.example"}))
		})

		It("should fall through on a malformed listing", func() {
			server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{not json`))
			}))
			dir := nitter.NewDirectoryWithSources(config, nitter.NewJSONSource(server.URL, server.Client()))

			Expect(dir.ListCandidates(ctx)).To(Equal(nitter.DefaultMirrors))
		})

		It("should scrape mirror links from a wiki page", func() {
			server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`<html><body><table>
					<tr><td><a href="https://nitter.c.org">nitter.c.org</a></td></tr>
					<tr><td><a href="https://github.com/zedeus/nitter">source</a></td></tr>
					<tr><td><a href="https://www.ssllabs.com/ssltest/analyze.html?d=nitter.c.org">A+</a></td></tr>
					<tr><td><a href="http://plain.org">plain</a></td></tr>
					<tr><td><a href="/wiki/Home">home</a></td></tr>
				</table></body></html>`))
			}))
			dir := nitter.NewDirectoryWithSources(config, nitter.NewWikiSource(server.URL, server.Client()))

			Expect(dir.ListCandidates(ctx)).To(Equal([]string{"https://nitter.c.org"}))
		})

		It("should fall through on a failing status", func() {
			server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusServiceUnavailable)
			}))
			dir := nitter.NewDirectoryWithSources(config, nitter.NewWikiSource(server.URL, server.Client()))

			Expect(dir.ListCandidates(ctx)).To(Equal(nitter.DefaultMirrors))
		})
	})
})

var _ = DescribeTable("NormalizeOrigin",
	func(raw, want string, ok bool) {
		got, gotOK := nitter.NormalizeOrigin(raw)
		Expect(gotOK).To(Equal(ok))
		Expect(got).To(Equal(want))
	},
	Entry("bare host", "nitter.net", "https://nitter.net", true),
	Entry("trailing slash", "https://nitter.net/", "https://nitter.net", true),
	Entry("path suffix", "https://nitter.net/jack", "https://nitter.net", true),
	Entry("mixed case", "HTTPS://Nitter.NET", "https://nitter.net", true),
	Entry("port", "https://nitter.net:8443", "https://nitter.net:8443", true),
	Entry("plain http", "http://nitter.net", "", false),
	Entry("localhost", "https://localhost", "", false),
	Entry("loopback", "127.0.0.1", "", false),
	Entry("empty", "  ", "", false),
)
