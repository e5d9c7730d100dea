package tap

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"

	gojson "github.com/goccy/go-json"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/tap-twilio/pkg/errors"
	"github.com/ajitpratap0/tap-twilio/pkg/stream"
	"github.com/ajitpratap0/tap-twilio/pkg/twilio"
)

func writeConfig(t *testing.T, cfg map[string]any) string {
	t.Helper()
	data, err := gojson.Marshal(cfg)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func baseConfig() map[string]any {
	return map[string]any{
		"accountSid": "<account-sid>",
		"authToken":  "<auth-token>",
	}
}

// records builds instances that encode as JSON strings.
func records(values ...string) []twilio.Instance {
	out := make([]twilio.Instance, 0, len(values))
	for _, v := range values {
		out = append(out, twilio.Instance(strconv.Quote(v)))
	}
	return out
}

// fakeAccessor serves fixed pages and records the options of every fetch.
type fakeAccessor struct {
	mu     sync.Mutex
	pages  [][]twilio.Instance
	calls  []stream.PageOptions
	failAt int // 1-based fetch number that fails; 0 never fails
	err    error
}

func newFakeAccessor(pages ...[]twilio.Instance) *fakeAccessor {
	return &fakeAccessor{pages: pages}
}

func (a *fakeAccessor) Page(ctx context.Context, opts stream.PageOptions) (stream.Page[twilio.Instance], error) {
	return a.fetch(ctx, 0, opts)
}

func (a *fakeAccessor) fetch(ctx context.Context, idx int, opts stream.PageOptions) (stream.Page[twilio.Instance], error) {
	a.mu.Lock()
	a.calls = append(a.calls, opts)
	n := len(a.calls)
	a.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if a.failAt == n {
		return nil, a.err
	}
	if idx >= len(a.pages) {
		return nil, nil
	}
	return &fakePage{accessor: a, idx: idx}, nil
}

func (a *fakeAccessor) options() []stream.PageOptions {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]stream.PageOptions(nil), a.calls...)
}

type fakePage struct {
	accessor *fakeAccessor
	idx      int
}

func (p *fakePage) Instances() []twilio.Instance { return p.accessor.pages[p.idx] }

func (p *fakePage) NextPage(ctx context.Context, opts stream.PageOptions) (stream.Page[twilio.Instance], error) {
	return p.accessor.fetch(ctx, p.idx+1, opts)
}

// fakeClient hands out accessors by resource name.
type fakeClient struct {
	mu        sync.Mutex
	accessors map[string]stream.Accessor[twilio.Instance]
	requested []string
	closed    bool
}

func (c *fakeClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeClient) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeClient) Accessor(resource string) (stream.Accessor[twilio.Instance], error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requested = append(c.requested, resource)
	a, ok := c.accessors[resource]
	if !ok {
		return nil, errors.Newf(errors.ErrorTypeInvalidConfig, "unknown Twilio resource %q", resource)
	}
	return a, nil
}

func factoryFor(c Client) ClientFactory {
	return func(string, string, ...twilio.Option) (Client, error) {
		return c, nil
	}
}

// memorySink collects output in memory and can be told to fail.
type memorySink struct {
	mu       sync.Mutex
	buf      bytes.Buffer
	closed   bool
	writeErr error
	closeErr error
}

func (s *memorySink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr != nil {
		return 0, s.writeErr
	}
	return s.buf.Write(p)
}

func (s *memorySink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return s.closeErr
}

func (s *memorySink) lines() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, l := range bytes.SplitAfter(s.buf.Bytes(), []byte("\n")) {
		if len(l) > 0 {
			out = append(out, string(l))
		}
	}
	return out
}

func (s *memorySink) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
