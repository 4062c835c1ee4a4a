package testsupport

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path"
	"strings"
	"sync"
	"testing"
)

// GalleryFile is one fragment served by a SourceServer.
type GalleryFile struct {
	Name string
	Hash string
	Body string
	// Status overrides the HTTP status returned for this fragment.
	Status int
}

// Gallery is a document served by a SourceServer.
type Gallery struct {
	Title      string
	Files      []GalleryFile
	Artists    []string
	Parodys    []string
	Characters []string
	Tags       []string
}

// SourceServer is an in-process stand-in for the remote gallery service.
type SourceServer struct {
	*httptest.Server

	mu        sync.Mutex
	galleries map[string]Gallery
	fragments []string
	resolves  int
}

// NewSourceServer starts a server publishing galleries keyed by id.
func NewSourceServer(t testing.TB, galleries map[string]Gallery) *SourceServer {
	t.Helper()
	s := &SourceServer{galleries: galleries}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.Close)
	return s
}

// FragmentRequests returns the fragment file names requested so far, in
// arrival order.
func (s *SourceServer) FragmentRequests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.fragments...)
}

// Resolves returns the number of gallery metadata requests served.
func (s *SourceServer) Resolves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resolves
}

func (s *SourceServer) handle(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/routing.json":
		writeJSON(w, map[string]any{"version": "v1", "hosts": []string{s.URL + "/img"}})
	case strings.HasPrefix(r.URL.Path, "/galleries/"):
		id := strings.TrimSuffix(path.Base(r.URL.Path), ".json")
		s.mu.Lock()
		s.resolves++
		g, ok := s.galleries[id]
		s.mu.Unlock()
		if !ok {
			http.NotFound(w, r)
			return
		}
		writeJSON(w, galleryJSON(id, g))
	case strings.HasPrefix(r.URL.Path, "/img/v1/"):
		name := path.Base(r.URL.Path)
		s.mu.Lock()
		s.fragments = append(s.fragments, name)
		file, ok := s.fileByHash(strings.TrimSuffix(name, path.Ext(name)))
		s.mu.Unlock()
		if !ok {
			http.NotFound(w, r)
			return
		}
		if file.Status != 0 {
			w.WriteHeader(file.Status)
			return
		}
		_, _ = w.Write([]byte(file.Body))
	default:
		http.NotFound(w, r)
	}
}

func (s *SourceServer) fileByHash(hash string) (GalleryFile, bool) {
	for _, g := range s.galleries {
		for _, f := range g.Files {
			if f.Hash == hash {
				return f, true
			}
		}
	}
	return GalleryFile{}, false
}

func galleryJSON(id string, g Gallery) map[string]any {
	files := make([]map[string]string, 0, len(g.Files))
	for _, f := range g.Files {
		files = append(files, map[string]string{"name": f.Name, "hash": f.Hash})
	}
	wrap := func(key string, values []string) []map[string]string {
		out := make([]map[string]string, 0, len(values))
		for _, v := range values {
			out = append(out, map[string]string{key: v})
		}
		return out
	}
	return map[string]any{
		"id":         id,
		"title":      g.Title,
		"files":      files,
		"artists":    wrap("artist", g.Artists),
		"parodys":    wrap("parody", g.Parodys),
		"characters": wrap("character", g.Characters),
		"tags":       wrap("tag", g.Tags),
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
