package adapter

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/googleapis/gax-go/v2"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/mnemo/pkg/model"
	"github.com/m-mizutani/mnemo/pkg/utils/logging"
	"github.com/ollama/ollama/api"
	"github.com/sashabaranov/go-openai"
	"google.golang.org/genai"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// RetryPolicy bounds every call to an external service with a per-attempt timeout and
// a limited number of attempts. Only transient failures are retried.
type RetryPolicy struct {
	Timeout      time.Duration
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Timeout:      30 * time.Second,
		MaxAttempts:  3,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     5 * time.Second,
	}
}

// Do runs fn until it succeeds, fails permanently or runs out of attempts. When attempts are
// exhausted the returned error matches model.ErrTransientService.
func (p RetryPolicy) Do(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	attempts := max(p.MaxAttempts, 1)
	backoff := gax.Backoff{
		Initial:    p.InitialDelay,
		Max:        p.MaxDelay,
		Multiplier: 2,
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = p.call(ctx, fn)
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil || !IsTransient(lastErr) {
			return lastErr
		}
		if attempt == attempts {
			break
		}

		logging.From(ctx).Warn("retrying service call",
			"call", name,
			"attempt", attempt,
			"error", lastErr,
		)
		if err := gax.Sleep(ctx, backoff.Pause()); err != nil {
			return goerr.Wrap(errors.Join(lastErr, err), "retry interrupted", goerr.V("call", name))
		}
	}

	return goerr.Wrap(errors.Join(model.ErrTransientService, lastErr),
		"service call failed after retries",
		goerr.V("call", name),
		goerr.V("attempts", attempts),
	)
}

func (p RetryPolicy) call(ctx context.Context, fn func(ctx context.Context) error) error {
	if p.Timeout <= 0 {
		return fn(ctx)
	}
	callCtx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()
	return fn(callCtx)
}

// IsTransient reports whether err is worth retrying: timeouts, throttling and server side failures
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, model.ErrTransientService) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var genaiErr genai.APIError
	if errors.As(err, &genaiErr) {
		return isTransientHTTPStatus(genaiErr.Code)
	}
	var openaiErr *openai.APIError
	if errors.As(err, &openaiErr) {
		return isTransientHTTPStatus(openaiErr.HTTPStatusCode)
	}
	var requestErr *openai.RequestError
	if errors.As(err, &requestErr) {
		return isTransientHTTPStatus(requestErr.HTTPStatusCode)
	}
	var ollamaErr api.StatusError
	if errors.As(err, &ollamaErr) {
		return isTransientHTTPStatus(ollamaErr.StatusCode)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if s, ok := status.FromError(err); ok {
		switch s.Code() {
		case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted, codes.Aborted, codes.Internal:
			return true
		}
	}
	return false
}

func isTransientHTTPStatus(code int) bool {
	return code == http.StatusTooManyRequests ||
		code == http.StatusRequestTimeout ||
		code >= http.StatusInternalServerError
}

type retryGenerator struct {
	inner  Generator
	policy RetryPolicy
}

// NewRetryGenerator wraps gen so that every Generate call follows policy
func NewRetryGenerator(gen Generator, policy RetryPolicy) Generator {
	return &retryGenerator{inner: gen, policy: policy}
}

func (r *retryGenerator) Generate(ctx context.Context, prompt string, params model.DecodingParams) ([]string, error) {
	var texts []string
	err := r.policy.Do(ctx, "generate", func(ctx context.Context) error {
		var err error
		texts, err = r.inner.Generate(ctx, prompt, params)
		return err
	})
	if err != nil {
		return nil, err
	}
	return texts, nil
}

type retryEmbedder struct {
	inner  Embedder
	policy RetryPolicy
}

// NewRetryEmbedder wraps emb so that every Embed call follows policy
func NewRetryEmbedder(emb Embedder, policy RetryPolicy) Embedder {
	return &retryEmbedder{inner: emb, policy: policy}
}

func (r *retryEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	var vectors [][]float32
	err := r.policy.Do(ctx, "embed", func(ctx context.Context) error {
		var err error
		vectors, err = r.inner.Embed(ctx, texts)
		return err
	})
	if err != nil {
		return nil, err
	}
	return vectors, nil
}

type retryIndex struct {
	inner  VectorIndex
	policy RetryPolicy
}

// NewRetryIndex wraps idx so that searches and upserts follow policy. A failed upsert is still
// reported through its result rather than as an error.
func NewRetryIndex(idx VectorIndex, policy RetryPolicy) VectorIndex {
	return &retryIndex{inner: idx, policy: policy}
}

func (r *retryIndex) Search(ctx context.Context, index string, vector []float32, k int) ([]*model.Hit, error) {
	var hits []*model.Hit
	err := r.policy.Do(ctx, "search", func(ctx context.Context) error {
		var err error
		hits, err = r.inner.Search(ctx, index, vector, k)
		return err
	})
	if err != nil {
		return nil, err
	}
	return hits, nil
}

func (r *retryIndex) Upsert(ctx context.Context, index, id string, doc map[string]any) *model.UpsertResult {
	var result *model.UpsertResult
	err := r.policy.Do(ctx, "upsert", func(ctx context.Context) error {
		result = r.inner.Upsert(ctx, index, id, doc)
		switch {
		case result == nil:
			return goerr.New("index returned no result", goerr.V("index", index), goerr.V("id", id))
		case result.OK():
			return nil
		case result.Err != nil:
			return result.Err
		case isTransientHTTPStatus(result.StatusCode):
			return goerr.Wrap(model.ErrTransientService, "index is unavailable", goerr.V("status", result.StatusCode))
		default:
			return goerr.New("index rejected document", goerr.V("status", result.StatusCode))
		}
	})
	if result == nil {
		result = &model.UpsertResult{Index: index, ID: id}
	}
	if err != nil {
		result.Err = err
	}
	return result
}
