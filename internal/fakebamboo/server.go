// Package fakebamboo is an in-memory stand-in for a bamboo service.
//
// It implements enough of the HTTP surface to exercise the client end to end:
// dataset upload from CSV, JSON, schema or URL, info, data, summary,
// calculations, aggregations, row access, resample, rolling, merge and join.
// It performs no real analysis; calculations are recorded, not evaluated.
package fakebamboo

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aponysus/bamboo/formula"
)

// Version is reported by GET /version.
const Version = "0.5.6-fake"

type calculation struct {
	Name    string `json:"name"`
	Formula string `json:"formula"`
	Group   string `json:"group,omitempty"`
}

type dataset struct {
	id           string
	data         *table
	calculations []calculation
	aggregations map[string]string
	info         map[string]string
	created      time.Time
}

type injected struct {
	status int
	body   string
}

// Server is the fake service. The zero value is not usable; call New.
type Server struct {
	mu       sync.Mutex
	datasets map[string]*dataset
	queue    []injected
	requests int
	fetch    *http.Client

	router chi.Router
	logger zerolog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithLogger logs every handled request.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// New returns a Server ready to be mounted or served.
func New(opts ...Option) *Server {
	s := &Server{
		datasets: make(map[string]*dataset),
		fetch:    &http.Client{Timeout: 10 * time.Second},
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

// Start serves a new Server on a loopback port for the duration of t.
func Start(t testing.TB, opts ...Option) (*Server, *httptest.Server) {
	t.Helper()
	s := New(opts...)
	ts := httptest.NewServer(s)
	t.Cleanup(ts.Close)
	return s, ts
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(s.count, s.inject)

	r.Get("/version", s.handleVersion)
	r.Post("/datasets", s.handleCreate)
	r.Post("/datasets/merge", s.handleMerge)
	r.Post("/datasets/join", s.handleJoin)

	r.Route("/datasets/{id}", func(r chi.Router) {
		r.Get("/", s.handleData)
		r.Put("/", s.handleUpdate)
		r.Delete("/", s.handleDelete)
		r.Get("/info", s.handleInfo)
		r.Put("/info", s.handleSetInfo)
		r.Get("/summary", s.handleSummary)
		r.Get("/calculations", s.handleCalculations)
		r.Post("/calculations", s.handleAddCalculation)
		r.Delete("/calculations/{name}", s.handleRemoveCalculation)
		r.Get("/aggregations", s.handleAggregations)
		r.Get("/resample", s.handleResample)
		r.Get("/rolling", s.handleRolling)
		r.Get("/row/{index}", s.handleRow)
		r.Put("/row/{index}", s.handleRow)
		r.Delete("/row/{index}", s.handleRow)
	})

	s.router = r
}

// FailNext makes the next n requests answer with status and an error body.
func (s *Server) FailNext(n, status int) {
	s.enqueue(n, injected{status: status, body: `{"error":"injected failure"}`})
}

// NotReadyNext makes the next n requests answer 200 with an error body, the
// way the service reports work it has not finished.
func (s *Server) NotReadyNext(n int) {
	s.enqueue(n, injected{status: http.StatusOK, body: `{"error":"not ready"}`})
}

func (s *Server) enqueue(n int, inj injected) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := 0; i < n; i++ {
		s.queue = append(s.queue, inj)
	}
}

// Requests returns the number of requests received so far.
func (s *Server) Requests() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests
}

// Exists reports whether the dataset id is live.
func (s *Server) Exists(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.datasets[id]
	return ok
}

// Shape returns the row and column counts of a dataset.
func (s *Server) Shape(id string) (rows, cols int, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ds, ok := s.datasets[id]
	if !ok {
		return 0, 0, false
	}
	return len(ds.data.rows), len(ds.data.columns), true
}

func (s *Server) count(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.requests++
		s.mu.Unlock()
		s.logger.Debug().Str("method", r.Method).Str("path", r.URL.Path).Msg("fake request")
		next.ServeHTTP(w, r)
	})
}

func (s *Server) inject(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		var inj *injected
		if len(s.queue) > 0 {
			inj = &s.queue[0]
			s.queue = s.queue[1:]
		}
		s.mu.Unlock()

		if inj != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(inj.status)
			_, _ = io.WriteString(w, inj.body)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, format string, args ...any) {
	writeJSON(w, status, map[string]string{"error": fmt.Sprintf(format, args...)})
}

// lookup returns the dataset named by the {id} route parameter with s.mu held.
// The caller must unlock when ok is true.
func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*dataset, bool) {
	id := chi.URLParam(r, "id")
	s.mu.Lock()
	ds, ok := s.datasets[id]
	if !ok {
		s.mu.Unlock()
		writeError(w, http.StatusBadRequest, "id not found: %s", id)
		return nil, false
	}
	return ds, true
}

func (s *Server) add(t *table) *dataset {
	ds := &dataset{
		id:           strings.ReplaceAll(uuid.NewString(), "-", ""),
		data:         t,
		aggregations: map[string]string{},
		info:         map[string]string{},
		created:      time.Now().UTC(),
	}
	s.datasets[ds.id] = ds
	return ds
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": Version, "branch": "fake"})
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			writeError(w, http.StatusBadRequest, "bad multipart body: %v", err)
			return
		}
	} else if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "bad form: %v", err)
		return
	}

	var na []string
	if raw := r.FormValue("na_values"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &na); err != nil {
			writeError(w, http.StatusBadRequest, "na_values must be a JSON list")
			return
		}
	}

	t, err := s.tableFromRequest(r, na)
	if err != nil {
		writeError(w, http.StatusBadRequest, "%v", err)
		return
	}

	s.mu.Lock()
	ds := s.add(t)
	s.mu.Unlock()
	writeJSON(w, http.StatusCreated, map[string]string{"id": ds.id})
}

func (s *Server) tableFromRequest(r *http.Request, na []string) (*table, error) {
	if u := r.FormValue("url"); u != "" {
		resp, err := s.fetch.Get(u)
		if err != nil {
			return nil, fmt.Errorf("fetch %s: %w", u, err)
		}
		defer resp.Body.Close()
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("fetch %s: %w", u, err)
		}
		return parseCSV(data, na)
	}

	if data, ok := formFile(r, "csv_file"); ok {
		return parseCSV(data, na)
	}
	if data, ok := formFile(r, "json_file"); ok {
		return parseJSONRows(data)
	}
	if data, ok := formFile(r, "schema"); ok {
		return parseSchema(data)
	}
	return nil, fmt.Errorf("no url, file or schema supplied")
}

func formFile(r *http.Request, field string) ([]byte, bool) {
	if r.MultipartForm == nil {
		return nil, false
	}
	f, _, err := r.FormFile(field)
	if err != nil {
		return nil, false
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, false
	}
	return data, true
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	ds, ok := s.lookup(w, r)
	if !ok {
		return
	}
	delete(s.datasets, ds.id)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{"success": "deleted dataset: " + ds.id, "id": ds.id})
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	ds, ok := s.lookup(w, r)
	if !ok {
		return
	}
	defer s.mu.Unlock()

	schema := make(map[string]any, len(ds.data.columns))
	for _, c := range ds.data.columns {
		schema[c.Name] = map[string]string{"simpletype": c.SimpleType, "label": c.Name}
	}
	info := map[string]any{
		"id":          ds.id,
		"num_rows":    len(ds.data.rows),
		"num_columns": len(ds.data.columns),
		"schema":      schema,
		"created_at":  ds.created.Format(time.RFC3339),
		"state":       "ready",
	}
	for k, v := range ds.info {
		info[k] = v
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleSetInfo(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "bad form: %v", err)
		return
	}
	ds, ok := s.lookup(w, r)
	if !ok {
		return
	}
	defer s.mu.Unlock()

	for _, k := range []string{"attribution", "description", "label", "license"} {
		if v := r.PostForm.Get(k); v != "" {
			ds.info[k] = v
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": ds.id, "success": "set info"})
}

func decodeParam(r *http.Request, key string) (map[string]any, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" || raw == "all" {
		return nil, nil
	}
	var v map[string]any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, fmt.Errorf("%s is not a JSON object", key)
	}
	return v, nil
}

func (s *Server) filtered(ds *dataset, r *http.Request) ([]map[string]any, map[string]any, error) {
	where, err := decodeParam(r, "query")
	if err != nil {
		return nil, nil, err
	}
	sel, err := decodeParam(r, "select")
	if err != nil {
		return nil, nil, err
	}
	var rows []map[string]any
	for _, row := range ds.data.rows {
		if matches(row, where) {
			rows = append(rows, row)
		}
	}
	return rows, sel, nil
}

func (s *Server) handleData(w http.ResponseWriter, r *http.Request) {
	ds, ok := s.lookup(w, r)
	if !ok {
		return
	}
	defer s.mu.Unlock()

	rows, sel, err := s.filtered(ds, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "%v", err)
		return
	}
	q := r.URL.Query()

	if col := q.Get("order_by"); col != "" {
		sort.SliceStable(rows, func(i, j int) bool {
			return fmt.Sprint(rows[i][col]) < fmt.Sprint(rows[j][col])
		})
	}
	if n, err := strconv.Atoi(q.Get("limit")); err == nil && n > 0 && n < len(rows) {
		rows = rows[:n]
	}
	if q.Get("count") == "true" {
		writeJSON(w, http.StatusOK, map[string]int{"count": len(rows)})
		return
	}
	if col := q.Get("distinct"); col != "" {
		seen := map[string]bool{}
		out := []any{}
		for _, row := range rows {
			k := fmt.Sprint(row[col])
			if !seen[k] {
				seen[k] = true
				out = append(out, row[col])
			}
		}
		writeJSON(w, http.StatusOK, out)
		return
	}

	out := make([]map[string]any, 0, len(rows))
	for i, row := range rows {
		p := project(row, sel)
		if q.Get("index") == "true" {
			p = copyRow(p)
			p["index"] = i
		}
		out = append(out, p)
	}
	writeJSON(w, http.StatusOK, out)
}

func copyRow(row map[string]any) map[string]any {
	out := make(map[string]any, len(row)+1)
	for k, v := range row {
		out[k] = v
	}
	return out
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "bad form: %v", err)
		return
	}
	var rows []map[string]any
	if err := json.Unmarshal([]byte(r.PostForm.Get("update")), &rows); err != nil {
		writeError(w, http.StatusBadRequest, "update must be a JSON list of rows")
		return
	}

	ds, ok := s.lookup(w, r)
	if !ok {
		return
	}
	defer s.mu.Unlock()
	ds.data.rows = append(ds.data.rows, rows...)
	writeJSON(w, http.StatusOK, map[string]string{"id": ds.id})
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	ds, ok := s.lookup(w, r)
	if !ok {
		return
	}
	defer s.mu.Unlock()

	rows, sel, err := s.filtered(ds, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "%v", err)
		return
	}

	summarizeAll := func(rows []map[string]any) map[string]any {
		out := map[string]any{}
		for _, c := range ds.data.columns {
			if len(sel) > 0 {
				if _, ok := sel[c.Name]; !ok {
					continue
				}
			}
			out[c.Name] = summarize(rows, c)
		}
		return out
	}

	group := r.URL.Query().Get("group")
	if group == "" {
		writeJSON(w, http.StatusOK, summarizeAll(rows))
		return
	}
	if _, ok := ds.data.column(group); !ok {
		writeError(w, http.StatusBadRequest, "group %q is not a column", group)
		return
	}
	byGroup := map[string][]map[string]any{}
	for _, row := range rows {
		k := fmt.Sprint(row[group])
		byGroup[k] = append(byGroup[k], row)
	}
	out := map[string]any{}
	for k, rs := range byGroup {
		out[k] = summarizeAll(rs)
	}
	writeJSON(w, http.StatusOK, map[string]any{group: out})
}

func (s *Server) handleCalculations(w http.ResponseWriter, r *http.Request) {
	ds, ok := s.lookup(w, r)
	if !ok {
		return
	}
	defer s.mu.Unlock()
	out := append([]calculation{}, ds.calculations...)
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAddCalculation(w http.ResponseWriter, r *http.Request) {
	var calcs []calculation
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
		if err := r.ParseMultipartForm(8 << 20); err != nil {
			writeError(w, http.StatusBadRequest, "bad multipart body: %v", err)
			return
		}
		data, ok := formFile(r, "json_file")
		if !ok {
			writeError(w, http.StatusBadRequest, "json_file is required")
			return
		}
		if err := json.Unmarshal(data, &calcs); err != nil {
			writeError(w, http.StatusBadRequest, "json_file must hold a list of calculations")
			return
		}
	} else {
		if err := r.ParseForm(); err != nil {
			writeError(w, http.StatusBadRequest, "bad form: %v", err)
			return
		}
		calcs = append(calcs, calculation{
			Name:    r.PostForm.Get("name"),
			Formula: r.PostForm.Get("formula"),
			Group:   r.PostForm.Get("group"),
		})
	}

	ds, ok := s.lookup(w, r)
	if !ok {
		return
	}
	defer s.mu.Unlock()

	for _, c := range calcs {
		if c.Name == "" || strings.TrimSpace(c.Formula) == "" {
			writeError(w, http.StatusBadRequest, "name and formula are required")
			return
		}
		for _, g := range strings.Split(c.Group, ",") {
			if _, ok := ds.data.column(g); g != "" && !ok {
				writeError(w, http.StatusBadRequest, "group %q is not a column", g)
				return
			}
		}
	}

	for _, c := range calcs {
		ds.calculations = append(ds.calculations, c)
		if formula.IsAggregation(c.Formula) {
			if _, exists := ds.aggregations[c.Group]; !exists {
				child := s.add(&table{columns: []column{{Name: c.Name, SimpleType: "float"}}})
				ds.aggregations[c.Group] = child.id
			}
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"success": fmt.Sprintf("created %d calculation(s)", len(calcs)), "id": ds.id})
}

func (s *Server) handleRemoveCalculation(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	ds, ok := s.lookup(w, r)
	if !ok {
		return
	}
	defer s.mu.Unlock()

	for i, c := range ds.calculations {
		if c.Name == name {
			ds.calculations = append(ds.calculations[:i], ds.calculations[i+1:]...)
			writeJSON(w, http.StatusOK, map[string]string{"success": "deleted calculation: " + name})
			return
		}
	}
	writeError(w, http.StatusBadRequest, "calculation %q not found", name)
}

func (s *Server) handleAggregations(w http.ResponseWriter, r *http.Request) {
	ds, ok := s.lookup(w, r)
	if !ok {
		return
	}
	defer s.mu.Unlock()
	out := make(map[string]string, len(ds.aggregations))
	for k, v := range ds.aggregations {
		out[k] = v
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleResample(w http.ResponseWriter, r *http.Request) {
	ds, ok := s.lookup(w, r)
	if !ok {
		return
	}
	defer s.mu.Unlock()

	q := r.URL.Query()
	col := q.Get("date_column")
	if _, ok := ds.data.column(col); !ok {
		writeError(w, http.StatusBadRequest, "date_column %q is not a column", col)
		return
	}
	if q.Get("interval") == "" {
		writeError(w, http.StatusBadRequest, "interval is required")
		return
	}
	rows, _, err := s.filtered(ds, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "%v", err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleRolling(w http.ResponseWriter, r *http.Request) {
	ds, ok := s.lookup(w, r)
	if !ok {
		return
	}
	defer s.mu.Unlock()

	window, err := strconv.Atoi(r.URL.Query().Get("window"))
	if err != nil || window <= 0 {
		writeError(w, http.StatusBadRequest, "window must be a positive integer")
		return
	}
	n := len(ds.data.rows) - window + 1
	if n < 0 {
		n = 0
	}
	writeJSON(w, http.StatusOK, ds.data.rows[len(ds.data.rows)-n:])
}

func (s *Server) handleRow(w http.ResponseWriter, r *http.Request) {
	var update map[string]any
	if r.Method == http.MethodPut {
		if err := r.ParseForm(); err != nil {
			writeError(w, http.StatusBadRequest, "bad form: %v", err)
			return
		}
		if err := json.Unmarshal([]byte(r.PostForm.Get("data")), &update); err != nil {
			writeError(w, http.StatusBadRequest, "data must be a JSON object")
			return
		}
	}

	ds, ok := s.lookup(w, r)
	if !ok {
		return
	}
	defer s.mu.Unlock()

	idx, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil || idx < 0 || idx >= len(ds.data.rows) {
		writeError(w, http.StatusBadRequest, "row %s not found", chi.URLParam(r, "index"))
		return
	}

	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, ds.data.rows[idx])
	case http.MethodPut:
		row := copyRow(ds.data.rows[idx])
		for k, v := range update {
			row[k] = v
		}
		ds.data.rows[idx] = row
		writeJSON(w, http.StatusOK, map[string]string{"success": fmt.Sprintf("updated row %d", idx), "id": ds.id})
	case http.MethodDelete:
		ds.data.rows = append(ds.data.rows[:idx], ds.data.rows[idx+1:]...)
		writeJSON(w, http.StatusOK, map[string]string{"success": fmt.Sprintf("deleted row %d", idx), "id": ds.id})
	}
}

func (s *Server) handleMerge(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "bad form: %v", err)
		return
	}
	var ids []string
	if err := json.Unmarshal([]byte(r.PostForm.Get("dataset_ids")), &ids); err != nil || len(ids) < 2 {
		writeError(w, http.StatusBadRequest, "dataset_ids must be a JSON list of at least two ids")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	merged := &table{}
	seen := map[string]bool{}
	for _, id := range ids {
		ds, ok := s.datasets[id]
		if !ok {
			writeError(w, http.StatusBadRequest, "id not found: %s", id)
			return
		}
		for _, c := range ds.data.columns {
			if !seen[c.Name] {
				seen[c.Name] = true
				merged.columns = append(merged.columns, c)
			}
		}
		for _, row := range ds.data.rows {
			merged.rows = append(merged.rows, copyRow(row))
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": s.add(merged).id})
}

func (s *Server) handleJoin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "bad form: %v", err)
		return
	}
	leftID, rightID, on := r.PostForm.Get("dataset_id"), r.PostForm.Get("other_dataset_id"), r.PostForm.Get("on")

	s.mu.Lock()
	defer s.mu.Unlock()

	left, ok := s.datasets[leftID]
	if !ok {
		writeError(w, http.StatusBadRequest, "id not found: %s", leftID)
		return
	}
	right, ok := s.datasets[rightID]
	if !ok {
		writeError(w, http.StatusBadRequest, "id not found: %s", rightID)
		return
	}
	if _, ok := left.data.column(on); !ok {
		writeError(w, http.StatusBadRequest, "column %q not in left dataset", on)
		return
	}
	if _, ok := right.data.column(on); !ok {
		writeError(w, http.StatusBadRequest, "column %q not in right dataset", on)
		return
	}

	index := map[string]map[string]any{}
	for _, row := range right.data.rows {
		k := fmt.Sprint(row[on])
		if _, dup := index[k]; dup {
			writeError(w, http.StatusBadRequest, "join column %q is not unique in right dataset", on)
			return
		}
		index[k] = row
	}

	joined := &table{columns: append([]column{}, left.data.columns...)}
	for _, c := range right.data.columns {
		if _, ok := left.data.column(c.Name); !ok {
			joined.columns = append(joined.columns, c)
		}
	}
	for _, row := range left.data.rows {
		out := copyRow(row)
		if match, ok := index[fmt.Sprint(row[on])]; ok {
			for k, v := range match {
				if _, exists := out[k]; !exists {
					out[k] = v
				}
			}
		}
		joined.rows = append(joined.rows, out)
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": s.add(joined).id})
}
