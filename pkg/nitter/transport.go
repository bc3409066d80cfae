package nitter

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/net/html/charset"
)

var (
	errRedirectToLocal  = errors.New("redirected to a local address")
	errTooManyRedirects = errors.New("too many redirects")
)

// browserHeaders are sent with every page request. Accept-Encoding is left to net/http
// so compressed bodies are decoded transparently.
var browserHeaders = map[string]string{
	"User-Agent":                "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36",
	"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8",
	"Accept-Language":           "zh-CN,zh;q=0.9,en;q=0.8",
	"Upgrade-Insecure-Requests": "1",
	"Cache-Control":             "no-cache",
	"Pragma":                    "no-cache",
}

// Transport performs single page fetches against mirrors. It is safe for concurrent use.
type Transport struct {
	client       *http.Client
	timeout      time.Duration
	maxBodyBytes int64
	pacer        *Pacer
	dumpDir      string
	logger       *logrus.Logger
}

// NewTransport creates a transport from config. When config.PerRequestDelay is set every
// Fetch first waits for a courtesy delay drawn from pacer.
func NewTransport(config *Config, pacer *Pacer) *Transport {
	// Mirrors often run self-signed or misconfigured certificates, so verification is off.
	// Nothing sent to a mirror is secret and every response is treated as untrusted input.
	httpTransport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		TLSClientConfig:     &tls.Config{InsecureSkipVerify: true},
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 2,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: config.FetchTimeout,
		DialContext: (&net.Dialer{
			Timeout:   config.FetchTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	}

	maxRedirects := config.MaxRedirects
	client := &http.Client{
		Transport: httpTransport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if isLocalHost(req.URL.Hostname()) {
				return errRedirectToLocal
			}
			if len(via) > maxRedirects {
				return errTooManyRedirects
			}
			return nil
		},
	}

	t := &Transport{
		client:       client,
		timeout:      config.FetchTimeout,
		maxBodyBytes: config.MaxBodyBytes,
		logger:       config.Logger,
	}
	if config.PerRequestDelay {
		t.pacer = pacer
	}
	if config.Debug && config.DumpDir != "" {
		t.dumpDir = config.DumpDir
		t.resetDumpDir()
	}
	return t
}

// HTTPClient exposes the pooled client so discovery shares connections with page fetches.
func (t *Transport) HTTPClient() *http.Client {
	return t.client
}

// Close releases idle pooled connections.
func (t *Transport) Close() {
	t.client.CloseIdleConnections()
}

// Fetch issues one GET for rawURL. It never returns an error; failures are classified in the result.
func (t *Transport) Fetch(ctx context.Context, rawURL string) FetchResult {
	log := t.logger.WithFields(logrus.Fields{
		"method": "Fetch",
		"url":    rawURL,
	})

	if err := t.pacer.Wait(ctx); err != nil {
		return failed(rawURL, 0, classify(err))
	}

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return failed(rawURL, 0, &FetchError{Kind: KindUnknown, Err: err})
	}
	for k, v := range browserHeaders {
		req.Header.Set(k, v)
	}
	origin := req.URL.Scheme + "://" + req.URL.Host
	req.Header.Set("Referer", origin+"/")
	req.Header.Set("Origin", origin)

	log.Debug("Sending request")
	resp, err := t.client.Do(req)
	if err != nil {
		fe := classify(err)
		log.WithFields(logrus.Fields{"kind": fe.Kind, "error": err}).Debug("Request failed")
		return failed(rawURL, 0, fe)
	}
	defer resp.Body.Close()

	finalURL := resp.Request.URL.String()
	if finalURL != rawURL {
		log.WithField("final_url", finalURL).Debug("Request was redirected")
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		log.WithField("status", resp.StatusCode).Debug("Unexpected status code")
		return failed(finalURL, resp.StatusCode, &FetchError{Kind: KindHTTP, Status: resp.StatusCode})
	}

	reader, err := charset.NewReader(resp.Body, resp.Header.Get("Content-Type"))
	if err != nil {
		reader = resp.Body
	}
	body, err := io.ReadAll(io.LimitReader(reader, t.maxBodyBytes))
	if err != nil {
		return failed(finalURL, resp.StatusCode, classify(err))
	}

	text := strings.ToValidUTF8(string(body), "")
	log.WithFields(logrus.Fields{
		"status": resp.StatusCode,
		"bytes":  len(text),
	}).Debug("Request succeeded")

	t.dump(finalURL, text)

	return FetchResult{URL: finalURL, Status: resp.StatusCode, Body: text}
}

func failed(u string, status int, fe *FetchError) FetchResult {
	return FetchResult{URL: u, Status: status, Err: fe}
}

// classify maps a client error onto an ErrorKind.
func classify(err error) *FetchError {
	var (
		certErr      *tls.CertificateVerificationError
		unknownAuth  x509.UnknownAuthorityError
		hostnameErr  x509.HostnameError
		invalidCert  x509.CertificateInvalidError
		recordHeader tls.RecordHeaderError
		netErr       net.Error
		opErr        *net.OpError
		dnsErr       *net.DNSError
	)

	switch {
	case errors.Is(err, errRedirectToLocal):
		return &FetchError{Kind: KindRedirectToLocal, Err: err}
	case errors.Is(err, context.Canceled):
		return &FetchError{Kind: KindCanceled, Err: err}
	case errors.Is(err, context.DeadlineExceeded):
		return &FetchError{Kind: KindTimeout, Err: err}
	case errors.As(err, &netErr) && netErr.Timeout():
		return &FetchError{Kind: KindTimeout, Err: err}
	case errors.As(err, &certErr), errors.As(err, &unknownAuth), errors.As(err, &hostnameErr),
		errors.As(err, &invalidCert), errors.As(err, &recordHeader), strings.Contains(err.Error(), "tls:"):
		return &FetchError{Kind: KindTLS, Err: err}
	case errors.Is(err, errTooManyRedirects), errors.As(err, &opErr), errors.As(err, &dnsErr),
		errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, io.EOF):
		return &FetchError{Kind: KindNetwork, Err: err}
	default:
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			return &FetchError{Kind: KindNetwork, Err: err}
		}
		return &FetchError{Kind: KindUnknown, Err: err}
	}
}

// isLocalHost reports whether host names the local machine.
func isLocalHost(host string) bool {
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	if host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && (ip.IsLoopback() || ip.IsUnspecified())
}

func (t *Transport) resetDumpDir() {
	if err := os.RemoveAll(t.dumpDir); err != nil {
		t.logger.WithError(err).Warn("Failed to clear dump directory")
	}
	if err := os.MkdirAll(t.dumpDir, 0o755); err != nil {
		t.logger.WithError(err).Warn("Failed to create dump directory")
		t.dumpDir = ""
	}
}

func (t *Transport) dump(rawURL, body string) {
	if t.dumpDir == "" {
		return
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return
	}
	name := strings.ReplaceAll(u.Host+u.Path, "/", "_") + ".html"
	path := filepath.Join(t.dumpDir, name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.logger.WithError(err).Warn("Failed to dump page")
		return
	}
	t.logger.WithFields(logrus.Fields{"url": rawURL, "path": path}).Debug("Saved page")
}
