// Package feed fetches and decodes GTFS-Realtime feeds and classifies
// failures into network and server errors.
package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"google.golang.org/protobuf/proto"

	"tarediiran-industries.com/clockpi/internal/common"
)

const DefaultTimeout = 10 * time.Second

type ErrorKind int

const (
	None ErrorKind = iota
	Network
	Server
)

func (kind ErrorKind) String() string {
	switch kind {
	case None:
		return "none"
	case Network:
		return "network"
	case Server:
		return "server"
	}
	return fmt.Sprintf("ErrorKind(%d)", int(kind))
}

var (
	ErrNetwork = errors.New("feed unreachable")
	ErrServer  = errors.New("feed rejected or malformed")
)

// FetchError is returned for every failed fetch. errors.Is(err, ErrNetwork)
// and errors.Is(err, ErrServer) test its class.
type FetchError struct {
	URL  string
	Kind ErrorKind
	Err  error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("%s error fetching %s: %v", e.Kind, e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

func (e *FetchError) Is(target error) bool {
	switch target {
	case ErrNetwork:
		return e.Kind == Network
	case ErrServer:
		return e.Kind == Server
	}
	return false
}

// Result is the outcome of one fetch: a decoded feed, or an error.
type Result struct {
	Feed *gtfs.FeedMessage
	Err  error
}

func (result Result) Kind() ErrorKind {
	if result.Err == nil {
		return None
	}
	var fetchErr *FetchError
	if errors.As(result.Err, &fetchErr) {
		return fetchErr.Kind
	}
	return Server
}

type Client struct {
	httpClient *http.Client
	timeout    time.Duration
	headers    http.Header
	metrics    *common.Metrics
}

type Option func(*Client)

// WithTimeout replaces the hard per-fetch timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(client *Client) {
		if timeout > 0 {
			client.timeout = timeout
		}
	}
}

// WithHeader adds a header to every request, e.g. an API key.
func WithHeader(key, value string) Option {
	return func(client *Client) {
		client.headers.Add(key, value)
	}
}

func WithMetrics(metrics *common.Metrics) Option {
	return func(client *Client) {
		client.metrics = metrics
	}
}

func WithTransport(transport http.RoundTripper) Option {
	return func(client *Client) {
		client.httpClient.Transport = transport
	}
}

func NewClient(opts ...Option) *Client {
	client := &Client{
		httpClient: &http.Client{},
		timeout:    DefaultTimeout,
		headers:    http.Header{},
	}
	for _, opt := range opts {
		opt(client)
	}
	// Deadlines come from the per-call context only; an http.Client
	// timeout would also cap FetchWithin.
	return client
}

func (client *Client) Timeout() time.Duration {
	return client.timeout
}

// Fetch performs exactly one GET against url. The client's own timeout
// bounds the call even when ctx allows longer. It never retries.
func (client *Client) Fetch(ctx context.Context, url string) Result {
	return client.FetchWithin(ctx, url, client.timeout)
}

// FetchWithin is Fetch with an explicit timeout for this call only.
func (client *Client) FetchWithin(ctx context.Context, url string, timeout time.Duration) Result {
	start := time.Now()
	feedMessage, size, err := client.fetch(ctx, url, timeout)

	if client.metrics != nil {
		client.metrics.FeedFetchSeconds.WithLabelValues(url).Observe(time.Since(start).Seconds())
		client.metrics.FeedBytesTotal.WithLabelValues(url).Add(float64(size))
	}

	if err != nil {
		result := Result{Err: err}
		if client.metrics != nil {
			client.metrics.FeedErrorsTotal.WithLabelValues(url, result.Kind().String()).Inc()
		}
		return result
	}
	return Result{Feed: feedMessage}
}

func (client *Client) fetch(ctx context.Context, url string, timeout time.Duration) (*gtfs.FeedMessage, int, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, &FetchError{URL: url, Kind: Network, Err: err}
	}
	for key, values := range client.headers {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}

	resp, err := client.httpClient.Do(req)
	if err != nil {
		return nil, 0, &FetchError{URL: url, Kind: Network, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, 0, &FetchError{URL: url, Kind: Server, Err: fmt.Errorf("HTTP status %d", resp.StatusCode)}
	}

	// A body that stalls or breaks mid-read is a transport failure, not a
	// bad payload.
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, len(body), &FetchError{URL: url, Kind: Network, Err: fmt.Errorf("read body: %w", err)}
	}

	feedMessage := &gtfs.FeedMessage{}
	if err := proto.Unmarshal(body, feedMessage); err != nil {
		return nil, len(body), &FetchError{URL: url, Kind: Server, Err: fmt.Errorf("decode feed: %w", err)}
	}

	return feedMessage, len(body), nil
}
