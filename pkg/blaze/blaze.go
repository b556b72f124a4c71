// Package blaze is a client for Firebase-style Realtime Database REST
// endpoints. It provides path-scoped CRUD over HTTPS, query parameter
// composition, an ETag-guarded atomic counter, and realtime change
// notifications via Server-Sent Events.
//
// A Reference addresses one location in the remote document tree. It is
// immutable: At returns a new Reference and never mutates the receiver,
// so references are safe to share across goroutines.
package blaze

import (
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// dataSuffix is appended to the last path segment when addressing data.
const dataSuffix = ".json"

// Doer issues a single HTTP request. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// defaultHTTPClient has connect and TLS handshake timeouts but no overall
// request timeout: event streams stay open indefinitely.
func defaultHTTPClient() *http.Client {
	dialer := &net.Dialer{
		Timeout: 5 * time.Second,
	}
	return &http.Client{
		Transport: &http.Transport{
			DialContext:         dialer.DialContext,
			TLSHandshakeTimeout: 5 * time.Second,
		},
	}
}

// Reference points at one location in the remote document tree, wrapping
// a validated https URL.
type Reference struct {
	uri    url.URL
	client Doer
	logger *slog.Logger
}

// Option is a functional option for configuring a Reference.
type Option func(*Reference)

// WithHTTPClient sets the HTTP client used for all requests issued
// through the reference and any reference derived from it.
func WithHTTPClient(c Doer) Option {
	return func(r *Reference) {
		r.client = c
	}
}

// WithLogger sets the logger used for request-level debug logging.
func WithLogger(l *slog.Logger) Option {
	return func(r *Reference) {
		r.logger = l
	}
}

// New parses rawURL and returns a root Reference. The scheme must be
// https; a trailing slash is normalized away, so "https://h" and
// "https://h/" build equal references.
func New(rawURL string, opts ...Option) (*Reference, error) {
	u, err := checkURI(rawURL)
	if err != nil {
		return nil, err
	}
	r := &Reference{uri: *u}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// NewWithAuth is New with a static `auth=<key>` query parameter attached,
// replacing any query string present in rawURL.
func NewWithAuth(rawURL, authKey string, opts ...Option) (*Reference, error) {
	r, err := New(rawURL, opts...)
	if err != nil {
		return nil, err
	}
	q := url.Values{}
	q.Set(paramAuth, authKey)
	r.uri.RawQuery = q.Encode()
	return r, nil
}

func checkURI(rawURL string) (*url.URL, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, &URLError{Raw: rawURL, Err: err}
	}
	if u.Scheme != "https" {
		return nil, ErrNotHTTPS
	}
	u.Path = strings.TrimSuffix(u.Path, "/")
	return u, nil
}

// At descends into a child location and returns the new Reference. The
// receiver is never modified. The data suffix is handled idempotently:
// At("users.json") and At("users") yield identical references, and the
// resulting path carries the suffix exactly once, at the end.
func (r *Reference) At(segment string) *Reference {
	u := r.uri

	var b strings.Builder
	for _, seg := range strings.Split(strings.Trim(u.Path, "/"), "/") {
		if seg == "" {
			continue
		}
		b.WriteString(strings.TrimSuffix(seg, dataSuffix))
		b.WriteByte('/')
	}
	b.WriteString(strings.TrimSuffix(segment, dataSuffix))

	u.Path = "/" + b.String() + dataSuffix

	clone := *r
	clone.uri = u
	return &clone
}

// URI returns the reference's full URL, query string included.
func (r *Reference) URI() string {
	return r.uri.String()
}

var defaultClient = defaultHTTPClient()

func (r *Reference) httpClient() Doer {
	if r.client != nil {
		return r.client
	}
	return defaultClient
}

func (r *Reference) log() *slog.Logger {
	if r.logger != nil {
		return r.logger
	}
	return slog.Default()
}
