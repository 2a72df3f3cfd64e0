package httputil

import (
	"context"
	"io"
	"math"
	"net/http"
	"sync"
	"time"
)

// RetryPolicy configures [RetryTransport]. The zero value is not usable;
// use [DefaultRetryPolicy].
type RetryPolicy struct {
	// Total is the maximum number of attempts, including the first.
	Total int
	// Backoff is the base delay; attempt n sleeps Backoff * 2^(n-1)
	// before retrying.
	Backoff time.Duration
	// RetryStatus is the set of status codes that trigger a retry.
	RetryStatus map[int]bool
}

// DefaultRetryPolicy matches spec.md §5: total 5 attempts, 0.1s backoff,
// retry on 429/500/502/503/504.
var DefaultRetryPolicy = RetryPolicy{
	Total:   5,
	Backoff: 100 * time.Millisecond,
	RetryStatus: map[int]bool{
		http.StatusTooManyRequests:     true,
		http.StatusInternalServerError: true,
		http.StatusBadGateway:          true,
		http.StatusServiceUnavailable:  true,
		http.StatusGatewayTimeout:      true,
	},
}

var retryableMethods = map[string]bool{
	http.MethodHead:    true,
	http.MethodGet:     true,
	http.MethodOptions: true,
}

// RetryTransport wraps an [http.RoundTripper], retrying idempotent
// requests (HEAD/GET/OPTIONS) that fail with a transient status code or
// a network error, per Policy.
type RetryTransport struct {
	Next   http.RoundTripper
	Policy RetryPolicy
}

// NewRetryTransport wraps next with [DefaultRetryPolicy]. A nil next
// uses [http.DefaultTransport].
func NewRetryTransport(next http.RoundTripper) *RetryTransport {
	if next == nil {
		next = http.DefaultTransport
	}
	return &RetryTransport{Next: next, Policy: DefaultRetryPolicy}
}

// RoundTrip implements [http.RoundTripper].
func (t *RetryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if !retryableMethods[req.Method] {
		return t.Next.RoundTrip(req)
	}

	var body []byte
	if req.Body != nil {
		var err error
		body, err = io.ReadAll(req.Body)
		req.Body.Close()
		if err != nil {
			return nil, err
		}
	}

	total := t.Policy.Total
	if total < 1 {
		total = 1
	}
	var (
		resp *http.Response
		err  error
	)
	for attempt := 0; attempt < total; attempt++ {
		if attempt > 0 {
			if body != nil {
				req.Body = io.NopCloser(newByteReader(body))
			}
			delay := t.Policy.Backoff * time.Duration(math.Pow(2, float64(attempt-1)))
			select {
			case <-req.Context().Done():
				return nil, req.Context().Err()
			case <-time.After(delay):
			}
		}
		resp, err = t.Next.RoundTrip(req)
		if err != nil {
			continue
		}
		if !t.Policy.RetryStatus[resp.StatusCode] {
			return resp, nil
		}
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func newByteReader(b []byte) io.Reader {
	return &byteReader{b: b}
}

type byteReader struct {
	b   []byte
	pos int
}

func (r *byteReader) Read(p []byte) (int, error) {
	if r.pos >= len(r.b) {
		return 0, io.EOF
	}
	n := copy(p, r.b[r.pos:])
	r.pos += n
	return n, nil
}

// PooledClient returns an *http.Client configured per spec.md §5: one
// process-wide transport with >=100 pooled connections per host and the
// retry policy above.
func PooledClient() *http.Client {
	pooledOnce.Do(func() {
		base := http.DefaultTransport.(*http.Transport).Clone()
		base.MaxIdleConnsPerHost = 100
		base.MaxConnsPerHost = 0
		pooledClient = &http.Client{
			Transport: NewRetryTransport(base),
			Timeout:   0, // callers set per-request timeouts via context
		}
	})
	return pooledClient
}

var (
	pooledOnce   sync.Once
	pooledClient *http.Client
)

// WithTimeout returns a context with the given timeout, matching the
// per-call-kind defaults in spec.md §5 (repodata 60s, artifact fetch
// 120s, lookups 30s).
func WithTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, d)
}
