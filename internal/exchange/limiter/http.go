package limiter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/parvezahmmedmahir/footprint/internal/types"
)

// Shared by all REST helpers. Stream tasks fetch rarely, so one pooled client
// per process is plenty.
var httpClient = &http.Client{Timeout: 15 * time.Second}

// Guard wraps a RateLimiter with a mutex so stream tasks sharing one
// exchange budget serialize request admission, not socket reads.
type Guard struct {
	mu      sync.Mutex
	limiter RateLimiter
}

func NewGuard(l RateLimiter) *Guard {
	return &Guard{limiter: l}
}

// RequestText issues a GET through the rate limiter and returns the response
// body. Waits computed by the limiter honor context cancellation.
func (g *Guard) RequestText(ctx context.Context, url string, weight int) (string, error) {
	for {
		g.mu.Lock()
		wait := g.limiter.PrepareRequest(weight)
		g.mu.Unlock()
		if wait <= 0 {
			break
		}

		log.Debug().Dur("wait", wait).Str("url", url).Msg("rate limiter backpressure")
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return "", types.NewFetchError("request cancelled", ctx.Err())
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", types.NewFetchError("building request", err)
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return "", types.NewFetchError("request failed", err)
	}
	defer resp.Body.Close()

	g.mu.Lock()
	g.limiter.UpdateFromResponse(resp, weight)
	hardStop := g.limiter.ShouldExitOnResponse(resp)
	g.mu.Unlock()

	if hardStop {
		return "", types.NewRateLimitedError(fmt.Sprintf("hard stop, status %d", resp.StatusCode), nil)
	}
	if resp.StatusCode != http.StatusOK {
		return "", types.NewFetchError(fmt.Sprintf("status %d for %s", resp.StatusCode, url), nil)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", types.NewFetchError("reading body", err)
	}
	return string(body), nil
}

// RequestJSON issues a GET through the rate limiter and decodes the JSON
// body into dst.
func (g *Guard) RequestJSON(ctx context.Context, url string, weight int, dst any) error {
	text, err := g.RequestText(ctx, url, weight)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(text), dst); err != nil {
		return types.NewParseError("decoding "+url, err)
	}
	return nil
}
