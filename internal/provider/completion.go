package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/robolabs/robotutor/internal/rag"
)

// Default Completer limits.
const (
	// DefaultMaxConcurrent is the number of in-flight completions allowed.
	DefaultMaxConcurrent = 4

	// DefaultTimeout bounds a single completion attempt.
	DefaultTimeout = 120 * time.Second

	// defaultMaxRetries bounds backoff retries for retryable failures.
	defaultMaxRetries = 3
)

// CompleterOptions tune the Completer wrapper.
type CompleterOptions struct {
	// MaxConcurrent caps in-flight completions (default 4).
	MaxConcurrent int

	// Timeout bounds each completion attempt (default 120s).
	Timeout time.Duration

	// MaxRetries bounds backoff retries on rate-limit and overload
	// failures (default 3).
	MaxRetries int
}

// Completer adapts an eino ChatModel to the rag.Completer interface, adding
// a concurrency limit, a per-call timeout, and exponential-backoff retries
// for rate-limit and overload failures. Other failures return immediately as
// a classified *Error.
type Completer struct {
	chat       model.BaseChatModel
	sem        chan struct{}
	timeout    time.Duration
	maxRetries int
}

// NewCompleter wraps chat in a Completer.
func NewCompleter(chat model.BaseChatModel, opts CompleterOptions) (*Completer, error) {
	if chat == nil {
		return nil, fmt.Errorf("provider: chat model must not be nil")
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = DefaultMaxConcurrent
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	} else if opts.MaxRetries == 0 {
		opts.MaxRetries = defaultMaxRetries
	}
	return &Completer{
		chat:       chat,
		sem:        make(chan struct{}, opts.MaxConcurrent),
		timeout:    opts.Timeout,
		maxRetries: opts.MaxRetries,
	}, nil
}

// Complete sends the conversation to the model and returns its reply. The
// call blocks while the pool is full; the timeout covers a single attempt,
// not the wait for a slot.
func (c *Completer) Complete(ctx context.Context, messages []rag.Message, opts rag.CompletionOptions) (string, error) {
	select {
	case c.sem <- struct{}{}:
		defer func() { <-c.sem }()
	case <-ctx.Done():
		return "", classify(ctx.Err())
	}

	in := toSchema(messages)
	callOpts := buildOptions(opts)

	var reply string
	operation := func() error {
		attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		out, err := c.chat.Generate(attemptCtx, in, callOpts...)
		if err != nil {
			perr := classify(err)
			if retryable(perr) {
				return perr
			}
			return backoff.Permanent(perr)
		}
		reply = out.Content
		return nil
	}

	bo := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(c.maxRetries)),
		ctx,
	)
	if err := backoff.Retry(operation, bo); err != nil {
		return "", classify(err)
	}
	return reply, nil
}

// toSchema converts transport-neutral messages to eino schema messages.
// Unknown roles are sent as user messages.
func toSchema(messages []rag.Message) []*schema.Message {
	out := make([]*schema.Message, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case "system":
			out = append(out, schema.SystemMessage(m.Content))
		case "assistant":
			out = append(out, schema.AssistantMessage(m.Content, nil))
		default:
			out = append(out, schema.UserMessage(m.Content))
		}
	}
	return out
}

// buildOptions maps per-call completion options to eino model options.
func buildOptions(opts rag.CompletionOptions) []model.Option {
	var callOpts []model.Option
	if opts.Model != "" {
		callOpts = append(callOpts, model.WithModel(opts.Model))
	}
	if opts.Temperature != 0 {
		callOpts = append(callOpts, model.WithTemperature(opts.Temperature))
	}
	if opts.MaxTokens > 0 {
		callOpts = append(callOpts, model.WithMaxTokens(opts.MaxTokens))
	}
	return callOpts
}
