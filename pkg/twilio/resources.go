package twilio

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/ajitpratap0/tap-twilio/pkg/errors"
	"github.com/ajitpratap0/tap-twilio/pkg/json"
	"github.com/ajitpratap0/tap-twilio/pkg/stream"
)

// Catalog resource names.
const (
	ResourceIncomingPhoneNumbers = "incoming_phone_numbers"
	ResourceMessagingServices    = "messaging_services"
)

// resource describes how one collection is addressed and how its list
// envelope is decoded.
type resource struct {
	name   string
	root   func(c *Client) string
	path   func(c *Client) string
	decode func(root string, body []byte) (listing, error)
}

// listing is a decoded list envelope. next is the absolute URL of the
// following page, or empty on the last page.
type listing struct {
	instances []Instance
	next      string
}

var catalog = map[string]*resource{
	ResourceIncomingPhoneNumbers: {
		name: ResourceIncomingPhoneNumbers,
		root: func(c *Client) string { return c.baseURL },
		path: func(c *Client) string {
			return fmt.Sprintf("/2010-04-01/Accounts/%s/IncomingPhoneNumbers.json", c.accountSID)
		},
		decode: decodeAccountList("incoming_phone_numbers"),
	},
	ResourceMessagingServices: {
		name:   ResourceMessagingServices,
		root:   func(c *Client) string { return c.messagingBaseURL },
		path:   func(*Client) string { return "/v1/Services" },
		decode: decodeMetaList("services"),
	},
}

// Resources returns the catalog resource names in sorted order.
func Resources() []string {
	names := make([]string, 0, len(catalog))
	for name := range catalog {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// decodeAccountList decodes the 2010-04-01 envelope: the records live
// under listKey and next_page_uri is relative to the API root.
func decodeAccountList(listKey string) func(string, []byte) (listing, error) {
	return func(root string, body []byte) (listing, error) {
		var env map[string]json.RawMessage
		if err := json.Unmarshal(body, &env); err != nil {
			return listing{}, errors.Wrap(err, errors.ErrorTypeUpstreamFetch, "malformed list response")
		}

		instances, err := decodeInstances(env, listKey)
		if err != nil {
			return listing{}, err
		}

		next, err := optionalString(env, "next_page_uri")
		if err != nil {
			return listing{}, err
		}

		return listing{instances: instances, next: resolve(root, next)}, nil
	}
}

type listMeta struct {
	Key         string  `json:"key"`
	NextPageURL *string `json:"next_page_url"`
}

// decodeMetaList decodes the v1 envelope: meta.key names the list and
// meta.next_page_url is absolute. fallbackKey is used when meta has no key.
func decodeMetaList(fallbackKey string) func(string, []byte) (listing, error) {
	return func(root string, body []byte) (listing, error) {
		var env map[string]json.RawMessage
		if err := json.Unmarshal(body, &env); err != nil {
			return listing{}, errors.Wrap(err, errors.ErrorTypeUpstreamFetch, "malformed list response")
		}

		var meta listMeta
		if raw, ok := env["meta"]; ok {
			if err := json.Unmarshal(raw, &meta); err != nil {
				return listing{}, errors.Wrap(err, errors.ErrorTypeUpstreamFetch, "malformed list metadata")
			}
		}
		key := meta.Key
		if key == "" {
			key = fallbackKey
		}

		instances, err := decodeInstances(env, key)
		if err != nil {
			return listing{}, err
		}

		var next string
		if meta.NextPageURL != nil {
			next = *meta.NextPageURL
		}
		return listing{instances: instances, next: resolve(root, next)}, nil
	}
}

func decodeInstances(env map[string]json.RawMessage, key string) ([]Instance, error) {
	raw, ok := env[key]
	if !ok {
		return nil, errors.Newf(errors.ErrorTypeUpstreamFetch, "list response has no %q field", key)
	}
	var instances []Instance
	if err := json.Unmarshal(raw, &instances); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeUpstreamFetch, "malformed list field").
			WithDetail("field", key)
	}
	return instances, nil
}

func optionalString(env map[string]json.RawMessage, key string) (string, error) {
	raw, ok := env[key]
	if !ok {
		return "", nil
	}
	var s *string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeUpstreamFetch, "malformed list field").
			WithDetail("field", key)
	}
	if s == nil {
		return "", nil
	}
	return *s, nil
}

// resolve turns a next-page reference into an absolute URL. Root-relative
// references keep any path prefix of root.
func resolve(root, ref string) string {
	switch {
	case ref == "":
		return ""
	case strings.HasPrefix(ref, "http://"), strings.HasPrefix(ref, "https://"):
		return ref
	case strings.HasPrefix(ref, "/"):
		return root + ref
	default:
		return root + "/" + ref
	}
}

type accessor struct {
	client   *Client
	resource *resource
}

func (a *accessor) Page(ctx context.Context, opts stream.PageOptions) (stream.Page[Instance], error) {
	p, err := a.client.fetch(ctx, a.resource, a.resource.root(a.client)+a.resource.path(a.client), opts)
	if err != nil {
		return nil, err
	}
	return p, nil
}

type page struct {
	client   *Client
	resource *resource
	listing  listing
}

func (p *page) Instances() []Instance {
	return p.listing.instances
}

func (p *page) NextPage(ctx context.Context, opts stream.PageOptions) (stream.Page[Instance], error) {
	if p.listing.next == "" {
		return nil, nil
	}
	next, err := p.client.fetch(ctx, p.resource, p.listing.next, opts)
	if err != nil {
		return nil, err
	}
	return next, nil
}
