// Package server exposes the geodesk REST API over the file store and
// the save_all database.
package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/paulmach/orb/geojson"

	"github.com/mirrorlake/geodesk/internal/db"
	"github.com/mirrorlake/geodesk/internal/httputil"
	"github.com/mirrorlake/geodesk/internal/store"
	"github.com/mirrorlake/geodesk/internal/timeutil"
)

// maxBodyBytes caps save payloads. District files are a few MB at most.
const maxBodyBytes = 32 << 20

type Server struct {
	store *store.Store
	db    *db.DB
	clock timeutil.Clock
}

func NewServer(st *store.Store, database *db.DB, clock timeutil.Clock) *Server {
	return &Server{
		store: st,
		db:    database,
		clock: clock,
	}
}

func (s *Server) homeHandler(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte("Welcome to the Geodesk Server!"))
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/polygons", s.listFiles)
	mux.HandleFunc("/api/polygons/", s.layerHandler("/api/polygons/", s.store.LoadPolygons, s.store.SavePolygons))
	mux.HandleFunc("/api/points/", s.layerHandler("/api/points/", s.store.LoadPoints, s.store.SavePoints))
	mux.HandleFunc("/api/items/", s.layerHandler("/api/items/", s.store.LoadItems, s.saveItems))
	mux.HandleFunc("/api/history", s.listHistory)
	mux.HandleFunc("/api/history/", s.getHistoryVersion)
	mux.HandleFunc("/api/save_all", s.saveAll)
	mux.HandleFunc("/debug/school-chart", s.schoolChart)
	mux.HandleFunc("/", s.homeHandler)
	return mux
}

func (s *Server) listFiles(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	names, err := s.store.List()
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("list files: %v", err))
		return
	}
	if names == nil {
		names = []string{}
	}
	httputil.WriteJSONOK(w, names)
}

// layerHandler serves GET (load) and POST (save) for one layer kind.
// saveItems adapts the versionless items save to the same shape.
func (s *Server) layerHandler(
	prefix string,
	load func(string) (*geojson.FeatureCollection, error),
	save func(name string, fc *geojson.FeatureCollection, school string) (*store.Version, error),
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimPrefix(r.URL.Path, prefix)

		switch r.Method {
		case http.MethodGet:
			fc, err := load(name)
			if err != nil {
				writeStoreError(w, err)
				return
			}
			httputil.WriteJSONOK(w, fc)

		case http.MethodPost:
			body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
			if err != nil {
				httputil.BadRequest(w, fmt.Sprintf("read body: %v", err))
				return
			}
			fc, err := geojson.UnmarshalFeatureCollection(body)
			if err != nil {
				httputil.BadRequest(w, fmt.Sprintf("invalid geojson: %v", err))
				return
			}

			school := r.URL.Query().Get("school_name")
			version, err := save(name, fc, school)
			if err != nil {
				writeStoreError(w, err)
				return
			}

			resp := map[string]interface{}{"status": "ok"}
			if version != nil {
				resp["save_id"] = version.SaveID
				resp["saved_at"] = version.SavedAt
			}
			httputil.WriteJSONOK(w, resp)

		default:
			httputil.MethodNotAllowed(w)
		}
	}
}

// saveItems has no history snapshot; the school parameter is accepted
// and ignored for symmetry with the other layers.
func (s *Server) saveItems(name string, fc *geojson.FeatureCollection, school string) (*store.Version, error) {
	return nil, s.store.SaveItems(name, fc)
}

func (s *Server) listHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	file := r.URL.Query().Get("file_name")
	if file == "" {
		httputil.BadRequest(w, "file_name is required")
		return
	}
	school := r.URL.Query().Get("school_name")

	versions, err := s.store.History(file, school)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if versions == nil {
		versions = []store.Version{}
	}
	httputil.WriteJSONOK(w, versions)
}

func (s *Server) getHistoryVersion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	saveID := strings.TrimPrefix(r.URL.Path, "/api/history/")
	snap, err := s.store.GetSnapshot(saveID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	httputil.WriteJSONOK(w, snap)
}

// saveAll upserts every stored file into the database. Partial
// failures do not abort the run; each contributes one error entry and
// the response is still 200.
func (s *Server) saveAll(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}

	files, err := s.store.AllFiles()
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("list files: %v", err))
		return
	}

	errs := []string{}
	now := s.clock.Now()
	for _, f := range files {
		if _, err := geojson.UnmarshalFeatureCollection(f.Data); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", f.Name, err))
			continue
		}
		if err := s.db.UpsertFile(f.Name, f.Data, now); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", f.Name, err))
		}
	}

	httputil.WriteJSONOK(w, map[string]interface{}{"errors": errs})
}

func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrBadName):
		httputil.BadRequest(w, err.Error())
	case errors.Is(err, store.ErrNotFound):
		httputil.NotFound(w, err.Error())
	default:
		httputil.InternalServerError(w, err.Error())
	}
}
