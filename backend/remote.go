package backend

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// RemoteBackend delegates embedding to an HTTP service:
//
//	GET  {base}/health          -> 200 when the service is reachable
//	POST {base}  {"text": ...}  -> {"embedding": [...]}
//
// It has no tokenizer or pooling step; the service returns finished vectors.
type RemoteBackend struct {
	settings Settings
	logger   *zap.Logger
	client   *resty.Client
	limiter  *rate.Limiter
}

type remoteEmbedRequest struct {
	Text string `json:"text"`
}

type remoteEmbedResponse struct {
	Embedding []float32 `json:"embedding"`
}

// NewRemote creates the remote adapter. RemoteRPS > 0 throttles outbound
// requests client-side.
func NewRemote(settings Settings, logger *zap.Logger) *RemoteBackend {
	timeout := settings.RemoteTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client := resty.New().
		SetBaseURL(settings.RemoteBaseURL).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")

	limiter := rate.NewLimiter(rate.Inf, 1)
	if settings.RemoteRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(settings.RemoteRPS), 1)
	}

	return &RemoteBackend{
		settings: settings,
		logger:   logger,
		client:   client,
		limiter:  limiter,
	}
}

func (b *RemoteBackend) Kind() Kind { return KindRemote }

// Probe performs the reachability check against the health endpoint.
func (b *RemoteBackend) Probe(ctx context.Context) error {
	resp, err := b.client.R().SetContext(ctx).Get("/health")
	if err != nil {
		return &ProbeError{Backend: KindRemote, Reason: ReasonUnreachable, Err: err}
	}
	if resp.StatusCode() != 200 {
		return &ProbeError{
			Backend: KindRemote,
			Reason:  ReasonUnreachable,
			Err:     fmt.Errorf("health check returned %d", resp.StatusCode()),
		}
	}
	b.logger.Info("remote backend ready", zap.String("base_url", b.settings.RemoteBaseURL))
	return nil
}

func (b *RemoteBackend) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var out remoteEmbedResponse
	resp, err := b.client.R().
		SetContext(ctx).
		SetBody(remoteEmbedRequest{Text: text}).
		SetResult(&out).
		Post("")
	if err != nil {
		return nil, fmt.Errorf("remote embed: %w", err)
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("remote embed returned %d", resp.StatusCode())
	}
	if len(out.Embedding) != b.settings.Dimensions {
		return nil, fmt.Errorf("remote embedding has %d dimensions, want %d",
			len(out.Embedding), b.settings.Dimensions)
	}
	return out.Embedding, nil
}

func (b *RemoteBackend) Close() error {
	b.client.GetClient().CloseIdleConnections()
	return nil
}
