package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/case-reconcile/internal/model"
	"github.com/sells-group/case-reconcile/internal/resilience"
)

// HTTPOptions configures HTTPResolver.
type HTTPOptions struct {
	BaseURL   string
	UserAgent string
	Timeout   time.Duration
	// RateLimitRPS is shared by every session. <=0 disables limiting.
	RateLimitRPS   float64
	RateLimitBurst int
	// Breaker is shared by every session. Nil disables circuit breaking.
	Breaker *resilience.Breaker
	Logger  *zap.Logger
}

// HTTPResolver looks records up through the remote service's JSON API.
// Sessions share the rate limiter and breaker but nothing else: each one
// gets its own transport and cookie jar.
type HTTPResolver struct {
	base    *url.URL
	opts    HTTPOptions
	limiter *rate.Limiter
	log     *zap.Logger
}

// NewHTTPResolver validates opts and builds an HTTPResolver.
func NewHTTPResolver(opts HTTPOptions) (*HTTPResolver, error) {
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, eris.Errorf("resolver: invalid base url %q", opts.BaseURL)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "case-reconcile/1.0"
	}
	r := &HTTPResolver{base: base, opts: opts, log: opts.Logger}
	if r.log == nil {
		r.log = zap.L()
	}
	if opts.RateLimitRPS > 0 {
		burst := opts.RateLimitBurst
		if burst <= 0 {
			burst = 1
		}
		r.limiter = rate.NewLimiter(rate.Limit(opts.RateLimitRPS), burst)
	}
	return r, nil
}

// Open starts a session by accepting the service disclaimer, which sets the
// session cookie later lookups depend on.
func (r *HTTPResolver) Open(ctx context.Context) (Session, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, eris.Wrap(err, "resolver: cookie jar")
	}
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConnsPerHost: 2,
		IdleConnTimeout:     30 * time.Second,
	}
	s := &httpSession{
		r:         r,
		transport: transport,
		client: &http.Client{
			Jar:       jar,
			Transport: transport,
			Timeout:   r.opts.Timeout,
		},
	}

	resp, err := s.do(ctx, http.MethodPost, r.endpoint("session"), nil)
	if err != nil {
		s.Close() //nolint:errcheck
		return nil, err
	}
	defer resp.Body.Close() //nolint:errcheck
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode/100 != 2 {
		s.Close() //nolint:errcheck
		return nil, resilience.NewTransientError(
			eris.Errorf("resolver: open session: status %d", resp.StatusCode), resp.StatusCode)
	}
	return s, nil
}

func (r *HTTPResolver) endpoint(parts ...string) *url.URL {
	u := *r.base
	escaped := make([]string, len(parts))
	for i, p := range parts {
		escaped[i] = url.PathEscape(p)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/" + strings.Join(escaped, "/")
	return &u
}

type httpSession struct {
	r         *HTTPResolver
	client    *http.Client
	transport *http.Transport
}

// recordPayload is the lookup response body.
type recordPayload struct {
	Name        string `json:"name"`
	Location    string `json:"location"`
	Status      string `json:"status"`
	ReleaseDate string `json:"release_date"`
}

// Lookup fetches one record. The service expects the identifier without
// leading zeros.
func (s *httpSession) Lookup(ctx context.Context, q Query) (model.Fields, error) {
	id, err := strconv.ParseInt(q.CaseID, 10, 64)
	if err != nil {
		return nil, eris.Wrapf(ErrNotFound, "resolver: case id %q is not numeric", q.CaseID)
	}

	u := s.r.endpoint("records", strconv.FormatInt(id, 10))
	params := url.Values{}
	if q.FirstName != "" {
		params.Set("first_name", q.FirstName)
	}
	if q.LastName != "" {
		params.Set("last_name", q.LastName)
	}
	u.RawQuery = params.Encode()

	resp, err := s.do(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close() //nolint:errcheck

	switch {
	case resp.StatusCode == http.StatusNotFound:
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, eris.Wrapf(ErrNotFound, "resolver: case %s", q.CaseID)
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		// Session cookie rejected or expired; the next attempt opens a new one.
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, resilience.NewTransientError(
			eris.Errorf("resolver: lookup %s: session rejected: status %d", q.CaseID, resp.StatusCode), resp.StatusCode)
	case resilience.IsTransientHTTPStatus(resp.StatusCode):
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, resilience.NewTransientError(
			eris.Errorf("resolver: lookup %s: status %d", q.CaseID, resp.StatusCode), resp.StatusCode)
	case resp.StatusCode/100 != 2:
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, eris.Errorf("resolver: lookup %s: status %d", q.CaseID, resp.StatusCode)
	}

	var p recordPayload
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&p); err != nil {
		return nil, eris.Wrapf(ErrNotFound, "resolver: case %s: unreadable record: %v", q.CaseID, err)
	}

	fields := model.Fields{
		model.KeyLocation:    strings.TrimSpace(p.Location),
		model.KeyStatus:      strings.TrimSpace(p.Status),
		model.KeyReleaseDate: strings.TrimSpace(p.ReleaseDate),
	}
	if p.Name != "" {
		fields[model.KeyName] = strings.TrimSpace(p.Name)
	}
	return fields, nil
}

func (s *httpSession) Close() error {
	s.transport.CloseIdleConnections()
	return nil
}

// do waits on the shared limiter, consults the breaker and sends one request.
// Transport failures are returned as transient errors.
func (s *httpSession) do(ctx context.Context, method string, u *url.URL, body io.Reader) (*http.Response, error) {
	if s.r.limiter != nil {
		if err := s.r.limiter.Wait(ctx); err != nil {
			return nil, resilience.NewTransientError(eris.Wrap(err, "resolver: rate limit wait"), 0)
		}
	}

	br := s.r.opts.Breaker
	if br != nil {
		if err := br.Allow(); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		if br != nil {
			br.Record(nil)
		}
		return nil, eris.Wrap(err, "resolver: build request")
	}
	req.Header.Set("User-Agent", s.r.opts.UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		terr := resilience.NewTransientError(eris.Wrapf(err, "resolver: %s %s", method, u.Path), 0)
		if br != nil {
			br.Record(terr)
		}
		return nil, terr
	}

	if br != nil {
		var status error
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			status = resilience.NewTransientError(fmt.Errorf("status %d", resp.StatusCode), resp.StatusCode)
		}
		br.Record(status)
	}
	return resp, nil
}
