package llm

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// StaticClient answers from canned replies. It backs offline runs and tests.
type StaticClient struct {
	mu       sync.Mutex
	replies  map[string]string
	fallback string
	err      error
	calls    []Request
}

// NewStaticClient returns a client that answers every request with fallback
func NewStaticClient(fallback string) *StaticClient {
	return &StaticClient{
		replies:  make(map[string]string),
		fallback: fallback,
	}
}

// Reply registers text returned when the user prompt contains substr.
// Keys are matched in lexical order, first match wins.
func (s *StaticClient) Reply(substr, text string) *StaticClient {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replies[substr] = text
	return s
}

// Fail makes every subsequent call return err
func (s *StaticClient) Fail(err error) *StaticClient {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
	return s
}

// Calls returns the requests seen so far
func (s *StaticClient) Calls() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.calls...)
}

// Name returns the provider name
func (s *StaticClient) Name() string {
	return "static"
}

// Complete returns the first matching canned reply.
// Token counts are whitespace word counts.
func (s *StaticClient) Complete(ctx context.Context, req Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, req)
	if s.err != nil {
		return nil, s.err
	}

	keys := make([]string, 0, len(s.replies))
	for k := range s.replies {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	text := s.fallback
	for _, k := range keys {
		if strings.Contains(req.User, k) {
			text = s.replies[k]
			break
		}
	}

	model := req.Model
	if model == "" {
		model = "static"
	}
	return &Response{
		Text:         text,
		Model:        model,
		InputTokens:  len(strings.Fields(req.System)) + len(strings.Fields(req.User)),
		OutputTokens: len(strings.Fields(text)),
	}, nil
}
