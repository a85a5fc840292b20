package testutil

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// IIIFServer serves fixture Presentation documents and Image API services.
// Image services answer every request under /iiif/<name>/ with the
// registered bytes, whatever the region/size/quality requested.
type IIIFServer struct {
	*httptest.Server

	mu      sync.Mutex
	docs    map[string][]byte
	images  map[string][]byte
	failing map[string]int
	hits    map[string]int
}

// NewIIIFServer starts a server that is closed when the test ends.
func NewIIIFServer(t testing.TB) *IIIFServer {
	t.Helper()
	s := StartIIIFServer()
	t.Cleanup(s.Close)
	return s
}

// StartIIIFServer starts a server the caller must Close.
func StartIIIFServer() *IIIFServer {
	s := &IIIFServer{
		docs:    map[string][]byte{},
		images:  map[string][]byte{},
		failing: map[string]int{},
		hits:    map[string]int{},
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	return s
}

// URLFor returns the absolute URL of path.
func (s *IIIFServer) URLFor(path string) string {
	return s.URL + path
}

// AddJSON registers a document and returns its URL.
func (s *IIIFServer) AddJSON(path string, body []byte) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[path] = body
	return s.URLFor(path)
}

// AddImageService registers image bytes under /iiif/<name> and returns the
// service base URL.
func (s *IIIFServer) AddImageService(name string, body []byte) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.images[name] = body
	return s.URLFor("/iiif/" + name)
}

// ServiceBase is the prefix under which AddImageService names live.
func (s *IIIFServer) ServiceBase() string {
	return s.URLFor("/iiif")
}

// Fail makes requests for path (or, for image services, /iiif/<name>)
// answer with status.
func (s *IIIFServer) Fail(path string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failing[path] = status
}

// Hits counts requests whose path starts with prefix.
func (s *IIIFServer) Hits(prefix string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for p, c := range s.hits {
		if strings.HasPrefix(p, prefix) {
			n += c
		}
	}
	return n
}

func (s *IIIFServer) serve(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	path := r.URL.Path
	s.hits[path]++
	status, failing := s.failing[path]
	doc, isDoc := s.docs[path]
	var (
		img     []byte
		isImage bool
	)
	if rest, ok := strings.CutPrefix(path, "/iiif/"); ok {
		name, _, _ := strings.Cut(rest, "/")
		if st, ok := s.failing["/iiif/"+name]; ok {
			status, failing = st, true
		}
		img, isImage = s.images[name]
	}
	s.mu.Unlock()

	switch {
	case failing:
		http.Error(w, http.StatusText(status), status)
	case isDoc:
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(doc)
	case isImage:
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write(img)
	default:
		http.NotFound(w, r)
	}
}
