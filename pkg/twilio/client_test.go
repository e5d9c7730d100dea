package twilio

import (
	"context"
	stderrors "errors"
	"testing"

	gojson "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap/zaptest"

	"github.com/ajitpratap0/tap-twilio/pkg/errors"
	"github.com/ajitpratap0/tap-twilio/pkg/stream"
	"github.com/ajitpratap0/tap-twilio/pkg/twilio/twiliotest"
)

func newTestClient(t *testing.T, f *twiliotest.Server, opts ...Option) *Client {
	t.Helper()
	base := f.URL()
	opts = append([]Option{
		WithBaseURL(base),
		WithMessagingBaseURL(base),
		WithLogger(zaptest.NewLogger(t)),
	}, opts...)
	c := NewClient(twiliotest.AccountSID, twiliotest.AuthToken, opts...)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func phoneNumbers(t *testing.T, c *Client) stream.Accessor[Instance] {
	t.Helper()
	accessor, err := c.Accessor(ResourceIncomingPhoneNumbers)
	require.NoError(t, err)
	return accessor
}

func sids(t *testing.T, instances []Instance) []string {
	t.Helper()
	out := make([]string, 0, len(instances))
	for _, raw := range instances {
		var v struct {
			SID string `json:"sid"`
		}
		require.NoError(t, gojson.Unmarshal(raw, &v))
		out = append(out, v.SID)
	}
	return out
}

func TestIncomingPhoneNumbersFollowsNextPageURI(t *testing.T) {
	f := twiliotest.NewServer(t, "")
	f.SeedNumbers(5)
	c := newTestClient(t, f)

	instances, err := stream.Collect(stream.Instances(context.Background(), phoneNumbers(t, c), stream.PageOptions{PageSize: 2}))
	require.NoError(t, err)
	require.Len(t, instances, 5)
	assert.Equal(t, "PN00000000000000000000000000000001", sids(t, instances)[0])
	assert.Equal(t, "PN00000000000000000000000000000005", sids(t, instances)[4])

	reqs := f.Requests()
	require.Len(t, reqs, 3, "pages of 2, 2 and 1")
	for i, u := range reqs {
		assert.Equal(t, "/2010-04-01/Accounts/"+twiliotest.AccountSID+"/IncomingPhoneNumbers.json", u.Path)
		assert.Equal(t, "2", u.Query().Get("PageSize"), "request %d", i)
	}
	assert.Equal(t, "", reqs[0].Query().Get("PageToken"))
	assert.Equal(t, "PA1", reqs[1].Query().Get("PageToken"))
	assert.Equal(t, "PA2", reqs[2].Query().Get("PageToken"))

	for _, cred := range f.Credentials() {
		assert.Equal(t, twiliotest.AccountSID+":"+twiliotest.AuthToken, cred)
	}
}

func TestInstancesArePassedThroughUnmodified(t *testing.T) {
	f := twiliotest.NewServer(t, "")
	f.SeedNumbers(1)
	c := newTestClient(t, f)

	instances, err := stream.Collect(stream.Instances(context.Background(), phoneNumbers(t, c), stream.PageOptions{}))
	require.NoError(t, err)
	require.Len(t, instances, 1)

	var got map[string]any
	require.NoError(t, gojson.Unmarshal(instances[0], &got))
	assert.Equal(t, map[string]any{
		"sid":           "PN00000000000000000000000000000001",
		"phone_number":  "+15550000001",
		"friendly_name": "Line <1>",
	}, got)
}

func TestNoPageSizeLeavesQueryUntouched(t *testing.T) {
	f := twiliotest.NewServer(t, "")
	f.SeedNumbers(3)
	c := newTestClient(t, f)

	instances, err := stream.Collect(stream.Instances(context.Background(), phoneNumbers(t, c), stream.PageOptions{}))
	require.NoError(t, err)
	assert.Len(t, instances, 3)

	reqs := f.Requests()
	require.Len(t, reqs, 1)
	assert.False(t, reqs[0].Query().Has("PageSize"))
}

func TestMessagingServicesFollowsMetaNextPageURL(t *testing.T) {
	f := twiliotest.NewServer(t, "")
	f.SeedServices(3)
	c := newTestClient(t, f)

	accessor, err := c.Accessor(ResourceMessagingServices)
	require.NoError(t, err)

	instances, err := stream.Collect(stream.Instances(context.Background(), accessor, stream.PageOptions{PageSize: 2}))
	require.NoError(t, err)
	assert.Equal(t, []string{
		"MG00000000000000000000000000000001",
		"MG00000000000000000000000000000002",
		"MG00000000000000000000000000000003",
	}, sids(t, instances))

	reqs := f.Requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, "/v1/Services", reqs[1].Path)
	assert.Equal(t, "PT1", reqs[1].Query().Get("PageToken"))
	assert.Equal(t, "2", reqs[1].Query().Get("PageSize"))
}

func TestEmptyCollection(t *testing.T) {
	f := twiliotest.NewServer(t, "")
	c := newTestClient(t, f)

	for _, name := range Resources() {
		t.Run(name, func(t *testing.T) {
			accessor, err := c.Accessor(name)
			require.NoError(t, err)

			first, err := accessor.Page(context.Background(), stream.PageOptions{})
			require.NoError(t, err)
			require.NotNil(t, first)
			assert.Empty(t, first.Instances())

			next, err := first.NextPage(context.Background(), stream.PageOptions{})
			require.NoError(t, err)
			assert.Nil(t, next, "last page has no successor")
		})
	}
}

func TestBaseURLWithPathPrefix(t *testing.T) {
	f := twiliotest.NewServer(t, "/proxy")
	f.SeedNumbers(3)
	c := newTestClient(t, f)

	instances, err := stream.Collect(stream.Instances(context.Background(), phoneNumbers(t, c), stream.PageOptions{PageSize: 1}))
	require.NoError(t, err)
	assert.Len(t, instances, 3)

	for _, u := range f.Requests() {
		assert.Equal(t, "/proxy/2010-04-01/Accounts/"+twiliotest.AccountSID+"/IncomingPhoneNumbers.json", u.Path)
	}
}

func TestUnauthorizedCarriesTwilioError(t *testing.T) {
	f := twiliotest.NewServer(t, "")
	f.SeedNumbers(1)
	c := NewClient(twiliotest.AccountSID, "wrong",
		WithBaseURL(f.URL()),
		WithLogger(zaptest.NewLogger(t)))

	_, err := stream.Collect(stream.Instances(context.Background(), phoneNumbers(t, c), stream.PageOptions{}))
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeUpstreamFetch))
	assert.Contains(t, err.Error(), "API returned status 401")

	var apiErr *APIError
	require.True(t, stderrors.As(err, &apiErr))
	assert.Equal(t, 401, apiErr.Status)
	assert.Equal(t, 20003, apiErr.Code)
	assert.Equal(t, "Authenticate", apiErr.Message)

	var structured *errors.Error
	require.True(t, stderrors.As(err, &structured))
	assert.Equal(t, 20003, structured.Details["code"])
	assert.Equal(t, ResourceIncomingPhoneNumbers, structured.Details["resource"])
}

func TestServerErrorWithoutBody(t *testing.T) {
	f := twiliotest.NewServer(t, "")
	f.FailWith(503, "")
	c := newTestClient(t, f)

	_, err := phoneNumbers(t, c).Page(context.Background(), stream.PageOptions{})
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, stderrors.As(err, &apiErr))
	assert.Equal(t, 503, apiErr.Status)
	assert.Equal(t, "Service Unavailable", apiErr.Message)
}

func TestMalformedEnvelopes(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "not json", body: "<html>"},
		{name: "missing list", body: `{"next_page_uri": null}`},
		{name: "list not an array", body: `{"incoming_phone_numbers": 3}`},
		{name: "next not a string", body: `{"incoming_phone_numbers": [], "next_page_uri": 7}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := twiliotest.NewServer(t, "")
			f.ServeRaw(tt.body)
			c := newTestClient(t, f)

			p, err := phoneNumbers(t, c).Page(context.Background(), stream.PageOptions{})
			require.Error(t, err)
			assert.Nil(t, p)
			assert.True(t, errors.IsType(err, errors.ErrorTypeUpstreamFetch))
		})
	}
}

func TestUnknownResource(t *testing.T) {
	c := NewClient(twiliotest.AccountSID, twiliotest.AuthToken)

	_, err := c.Accessor("calls")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeInvalidConfig))
	assert.Contains(t, err.Error(), `"calls"`)
}

func TestCanceledContextFailsFetch(t *testing.T) {
	f := twiliotest.NewServer(t, "")
	c := newTestClient(t, f)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := phoneNumbers(t, c).Page(ctx, stream.PageOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPageSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	f := twiliotest.NewServer(t, "")
	f.SeedNumbers(3)
	c := newTestClient(t, f, WithTracerProvider(tp))

	_, err := stream.Collect(stream.Instances(context.Background(), phoneNumbers(t, c), stream.PageOptions{PageSize: 2}))
	require.NoError(t, err)

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	for _, span := range spans {
		assert.Equal(t, SpanName, span.Name())
	}
}

func TestResolve(t *testing.T) {
	tests := []struct {
		root, ref, want string
	}{
		{"https://api.twilio.com", "", ""},
		{"https://api.twilio.com", "/2010-04-01/x.json?Page=1", "https://api.twilio.com/2010-04-01/x.json?Page=1"},
		{"http://proxy/twilio", "/2010-04-01/x.json", "http://proxy/twilio/2010-04-01/x.json"},
		{"https://api.twilio.com", "https://messaging.twilio.com/v1/Services?Page=1", "https://messaging.twilio.com/v1/Services?Page=1"},
		{"https://api.twilio.com", "x.json", "https://api.twilio.com/x.json"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, resolve(tt.root, tt.ref), tt.ref)
	}
}
