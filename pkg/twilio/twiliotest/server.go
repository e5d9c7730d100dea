// Package twiliotest provides an in-memory Twilio API for tests.
//
// The server speaks both list envelopes the tap reads: the 2010-04-01
// account API with a root-relative next_page_uri, and the v1 messaging API
// with meta.next_page_url. Pages honor the PageSize and Page query
// parameters the real API uses.
package twiliotest

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	gojson "github.com/goccy/go-json"
)

// Credentials accepted by the server.
const (
	AccountSID = "AC00000000000000000000000000000001"
	AuthToken  = "secret"
)

// Server is a fake Twilio API.
type Server struct {
	mu       sync.Mutex
	numbers  []map[string]any
	services []map[string]any
	requests []*url.URL
	auth     []string

	defaultPageSize int
	failStatus      int
	failBody        string
	rawBody         string
	prefix          string
	server          *httptest.Server
}

// NewServer starts a server whose routes live under prefix, which may be
// empty. The server is closed when tb finishes.
func NewServer(tb testing.TB, prefix string) *Server {
	tb.Helper()

	s := &Server{defaultPageSize: 50, prefix: prefix}

	r := chi.NewRouter()
	routes := func(r chi.Router) {
		r.Use(s.basicAuth)
		r.Get("/2010-04-01/Accounts/{AccountSid}/IncomingPhoneNumbers.json", s.listNumbers)
		r.Get("/v1/Services", s.listServices)
	}
	if prefix == "" {
		r.Group(routes)
	} else {
		r.Route(prefix, routes)
	}

	s.server = httptest.NewServer(r)
	tb.Cleanup(s.server.Close)
	return s
}

// URL returns the API root including the prefix.
func (s *Server) URL() string { return s.server.URL + s.prefix }

// SeedNumbers adds n incoming phone numbers.
func (s *Server) SeedNumbers(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.numbers) + 1; n > 0; i, n = i+1, n-1 {
		s.numbers = append(s.numbers, map[string]any{
			"sid":           fmt.Sprintf("PN%032d", i),
			"phone_number":  fmt.Sprintf("+1555000%04d", i),
			"friendly_name": fmt.Sprintf("Line <%d>", i),
		})
	}
}

// SeedServices adds n messaging services.
func (s *Server) SeedServices(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.services) + 1; n > 0; i, n = i+1, n-1 {
		s.services = append(s.services, map[string]any{
			"sid":           fmt.Sprintf("MG%032d", i),
			"friendly_name": fmt.Sprintf("Service %d", i),
		})
	}
}

// FailWith makes every authenticated request answer status with body.
func (s *Server) FailWith(status int, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failStatus = status
	s.failBody = body
}

// ServeRaw makes every authenticated request answer 200 with body.
func (s *Server) ServeRaw(body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rawBody = body
}

// Requests returns the URLs of all requests received so far.
func (s *Server) Requests() []*url.URL {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*url.URL(nil), s.requests...)
}

// Credentials returns the "user:password" pair of every request.
func (s *Server) Credentials() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.auth...)
}

func (s *Server) basicAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		u := *r.URL
		s.requests = append(s.requests, &u)
		user, pass, ok := r.BasicAuth()
		s.auth = append(s.auth, user+":"+pass)
		failStatus, failBody, rawBody := s.failStatus, s.failBody, s.rawBody
		s.mu.Unlock()

		if !ok || user != AccountSID || pass != AuthToken {
			w.Header().Set("WWW-Authenticate", `Basic realm="Twilio API"`)
			writeJSON(w, http.StatusUnauthorized, map[string]any{
				"code":      20003,
				"message":   "Authenticate",
				"more_info": "https://www.twilio.com/docs/errors/20003",
				"status":    401,
			})
			return
		}
		if failStatus != 0 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(failStatus)
			_, _ = w.Write([]byte(failBody))
			return
		}
		if rawBody != "" {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(rawBody))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// window returns the slice for the requested page and whether another follows.
func (s *Server) window(r *http.Request, all []map[string]any) (items []map[string]any, size, pageNum int, more bool) {
	size = s.defaultPageSize
	if v := r.URL.Query().Get("PageSize"); v != "" {
		size, _ = strconv.Atoi(v)
	}
	if size <= 0 {
		size = s.defaultPageSize
	}
	pageNum, _ = strconv.Atoi(r.URL.Query().Get("Page"))

	start := pageNum * size
	if start > len(all) {
		start = len(all)
	}
	end := start + size
	if end > len(all) {
		end = len(all)
	}
	items = append([]map[string]any{}, all[start:end]...)
	return items, size, pageNum, end < len(all)
}

func (s *Server) listNumbers(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	items, size, pageNum, more := s.window(r, s.numbers)
	s.mu.Unlock()

	// next_page_uri is relative to the API root, which excludes the prefix.
	path := strings.TrimPrefix(r.URL.Path, s.prefix)
	var next any
	if more {
		next = fmt.Sprintf("%s?PageSize=%d&Page=%d&PageToken=PA%d", path, size, pageNum+1, pageNum+1)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"incoming_phone_numbers": items,
		"next_page_uri":          next,
		"page":                   pageNum,
		"page_size":              size,
		"previous_page_uri":      nil,
		"uri":                    path,
	})
}

func (s *Server) listServices(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	items, size, pageNum, more := s.window(r, s.services)
	s.mu.Unlock()

	var next any
	if more {
		next = fmt.Sprintf("%s%s?PageSize=%d&Page=%d&PageToken=PT%d", s.server.URL, r.URL.Path, size, pageNum+1, pageNum+1)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"services": items,
		"meta": map[string]any{
			"page":          pageNum,
			"page_size":     size,
			"key":           "services",
			"next_page_url": next,
			"url":           s.server.URL + r.URL.RequestURI(),
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = gojson.NewEncoder(w).Encode(v)
}
