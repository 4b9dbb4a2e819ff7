package channels

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"staysync/internal/adapters/observability"
	"staysync/internal/domain"
)

var (
	ErrUnauthorized = errors.New("channel: unauthorized")
	ErrForbidden    = errors.New("channel: forbidden")
	ErrNotFound     = errors.New("channel: not found")
)

// restClient is the outbound HTTP plumbing every adapter shares: client-side
// rate limiting, a bounded per-request timeout, and status mapping. It never
// retries — a failed push is reported, and re-triggering is an operator or
// scheduler decision, not an adapter one.
type restClient struct {
	service string
	base    string
	hc      *http.Client
	rl      *rate.Limiter
	auth    func(*http.Request)
}

func newRESTClient(service, base string, rps int, auth func(*http.Request)) *restClient {
	if rps <= 0 {
		rps = 5
	}
	return &restClient{
		service: service,
		base:    strings.TrimRight(base, "/"),
		hc:      &http.Client{Timeout: 20 * time.Second},
		rl:      rate.NewLimiter(rate.Limit(rps), rps),
		auth:    auth,
	}
}

func (c *restClient) get(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

func (c *restClient) post(ctx context.Context, path string, body, out any) error {
	return c.do(ctx, http.MethodPost, path, body, out)
}

func (c *restClient) do(ctx context.Context, method, path string, body, out any) error {
	if err := c.rl.Wait(ctx); err != nil {
		return err
	}

	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "staysync/1.0")
	if c.auth != nil {
		c.auth(req)
	}

	start := time.Now()
	resp, err := c.hc.Do(req)
	if err != nil {
		observability.ObserveExternal(c.service, path, 0, time.Since(start))
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	defer resp.Body.Close()
	observability.ObserveExternal(c.service, path, resp.StatusCode, time.Since(start))

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusAccepted:
		if out == nil {
			_, _ = io.Copy(io.Discard, resp.Body)
			return nil
		}
		return json.NewDecoder(resp.Body).Decode(out)

	case http.StatusNoContent:
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil

	case http.StatusNotFound:
		return ErrNotFound

	case http.StatusUnauthorized:
		return ErrUnauthorized

	case http.StatusForbidden:
		return ErrForbidden

	default:
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%s: bad status %d: %s", c.service, resp.StatusCode, strings.TrimSpace(string(b)))
	}
}

// minorToDecimal renders integer minor units as the "1234.56" form the OTA
// wire formats expect. Exact; no float conversion.
func minorToDecimal(m int64) string {
	neg := ""
	if m < 0 {
		neg, m = "-", -m
	}
	return fmt.Sprintf("%s%d.%02d", neg, m/100, m%100)
}

// buildResult assembles the per-call outcome from the channel's per-item
// answers. Processed always equals the number of items attempted.
func buildResult(processed int, failures []domain.ItemFailure, start time.Time) domain.SyncResult {
	return domain.SyncResult{
		Success:   len(failures) == 0,
		Processed: processed,
		Succeeded: processed - len(failures),
		Failed:    len(failures),
		Duration:  time.Since(start),
		Failures:  failures,
		Timestamp: time.Now().UTC(),
	}
}

// failedResult reports a transport or auth failure: every attempted item
// counts as failed, none silently dropped.
func failedResult(attempted int, start time.Time) domain.SyncResult {
	return domain.SyncResult{
		Processed: attempted,
		Failed:    attempted,
		Duration:  time.Since(start),
		Timestamp: time.Now().UTC(),
	}
}

func occupancyGuests(o domain.OccupancyType) int {
	switch o {
	case domain.OccSingle:
		return 1
	case domain.OccDouble:
		return 2
	case domain.OccTriple:
		return 3
	default:
		return 4
	}
}

func connStatus(err error) (domain.ConnectionStatus, error) {
	switch {
	case err == nil:
		return domain.ConnConnected, nil
	case errors.Is(err, ErrUnauthorized), errors.Is(err, ErrForbidden):
		return domain.ConnError, err
	default:
		return domain.ConnDisconnected, err
	}
}
