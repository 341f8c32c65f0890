package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/wegman-software/dat2sqlite-go/internal/model"
	"github.com/wegman-software/dat2sqlite-go/internal/store"
)

func testStore(t *testing.T) *store.Store {
	t.Helper()
	net := &model.Network{
		TypeCodes: map[model.TypeKey]*model.TypeCode{},
		Names:     []*model.Name{{CID: 17, LID: 1, NID: 5000, Name: "Budaörs"}},
		Roads: []*model.Road{
			{
				Key:   model.Key{CID: 17, TabCD: 1, LCD: 100},
				Class: "L", TCD: 3, STCD: 1,
				RoadNumber: "M1", TypeDesc: "Motorway",
			},
		},
		Points: []*model.Point{
			{
				Key: model.Key{CID: 17, TabCD: 1, LCD: 200},
				TCD: 1, STCD: 3, Name: "Budaörs", N1ID: 5000,
				Lon: 18.95, Lat: 47.45,
			},
			{
				Key: model.Key{CID: 17, TabCD: 1, LCD: 201},
				TCD: 1, STCD: 6,
				Lon: 19.80, Lat: 47.17,
			},
		},
	}
	net.Points[0].Road = net.Roads[0]

	target := filepath.Join(t.TempDir(), "network.db")
	w, err := store.CreateTemp(target)
	if err != nil {
		t.Fatalf("CreateTemp failed: %v", err)
	}
	defer w.Discard()
	if err := w.WriteNetwork(net); err != nil {
		t.Fatalf("WriteNetwork failed: %v", err)
	}
	if err := w.Publish(); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	s, err := store.Open(target)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func doGet(t *testing.T, srv *Server, url string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, url, nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode response %q: %v", rec.Body.String(), err)
	}
	return body
}

func TestHealth(t *testing.T) {
	srv := New(testStore(t), ":0")
	rec := doGet(t, srv, "/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := decode(t, rec)
	if body["status"] != "healthy" {
		t.Errorf("status field = %v, want healthy", body["status"])
	}
	if body["total_points"] != float64(2) {
		t.Errorf("total_points = %v, want 2", body["total_points"])
	}
}

func TestStatsEndpoint(t *testing.T) {
	srv := New(testStore(t), ":0")
	rec := doGet(t, srv, "/api/stats")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := decode(t, rec)
	if body["total_roads"] != float64(1) {
		t.Errorf("total_roads = %v, want 1", body["total_roads"])
	}
	if rec.Header().Get("Content-Type") != "application/json" {
		t.Errorf("content type = %s", rec.Header().Get("Content-Type"))
	}
}

func TestPointsEndpoint(t *testing.T) {
	srv := New(testStore(t), ":0")

	tests := []struct {
		name      string
		url       string
		wantCode  int
		wantCount float64
	}{
		{
			name:      "both points in viewport",
			url:       "/api/points?west=18&south=47&east=20&north=48",
			wantCode:  http.StatusOK,
			wantCount: 2,
		},
		{
			name:      "subtype filter",
			url:       "/api/points?west=18&south=47&east=20&north=48&categories=3",
			wantCode:  http.StatusOK,
			wantCount: 1,
		},
		{
			name:      "empty viewport",
			url:       "/api/points?west=0&south=0&east=1&north=1",
			wantCode:  http.StatusOK,
			wantCount: 0,
		},
		{
			name:     "missing parameter",
			url:      "/api/points?west=18&south=47&east=20",
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "inverted box",
			url:      "/api/points?west=20&south=47&east=18&north=48",
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "non-numeric parameter",
			url:      "/api/points?west=x&south=47&east=20&north=48",
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "bad category code",
			url:      "/api/points?west=18&south=47&east=20&north=48&categories=x",
			wantCode: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doGet(t, srv, tt.url)
			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.wantCode, rec.Body.String())
			}
			if tt.wantCode != http.StatusOK {
				return
			}
			body := decode(t, rec)
			if body["count"] != tt.wantCount {
				t.Errorf("count = %v, want %v", body["count"], tt.wantCount)
			}
			if _, ok := body["features"].([]any); !ok {
				t.Errorf("features is %T, want an array", body["features"])
			}
		})
	}
}

func TestRoadsEndpoint(t *testing.T) {
	srv := New(testStore(t), ":0")
	rec := doGet(t, srv, "/api/roads?west=18&south=47&east=20&north=48")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	body := decode(t, rec)
	if body["count"] != float64(1) {
		t.Errorf("count = %v, want 1", body["count"])
	}
	features := body["features"].([]any)
	road := features[0].(map[string]any)
	if road["roadnumber"] != "M1" {
		t.Errorf("roadnumber = %v, want M1", road["roadnumber"])
	}
}

func TestSearchEndpoint(t *testing.T) {
	srv := New(testStore(t), ":0")

	rec := doGet(t, srv, "/api/search?q=buda")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	body := decode(t, rec)
	if body["count"] != float64(1) {
		t.Errorf("count = %v, want 1", body["count"])
	}

	if rec := doGet(t, srv, "/api/search"); rec.Code != http.StatusBadRequest {
		t.Errorf("missing q: status = %d, want 400", rec.Code)
	}
	if rec := doGet(t, srv, "/api/search?q=buda&limit=0"); rec.Code != http.StatusBadRequest {
		t.Errorf("limit 0: status = %d, want 400", rec.Code)
	}
	if rec := doGet(t, srv, "/api/search?q=buda&limit=1000"); rec.Code != http.StatusBadRequest {
		t.Errorf("limit 1000: status = %d, want 400", rec.Code)
	}
}

func TestMotorwaysEndpoint(t *testing.T) {
	srv := New(testStore(t), ":0")
	rec := doGet(t, srv, "/api/motorways")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := decode(t, rec)
	if body["count"] != float64(1) {
		t.Errorf("count = %v, want 1", body["count"])
	}
}

func TestRoadDetailsEndpoint(t *testing.T) {
	srv := New(testStore(t), ":0")

	rec := doGet(t, srv, "/api/roads/100")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	body := decode(t, rec)
	if body["roadnumber"] != "M1" {
		t.Errorf("roadnumber = %v, want M1", body["roadnumber"])
	}

	if rec := doGet(t, srv, "/api/roads/99999"); rec.Code != http.StatusNotFound {
		t.Errorf("unknown road: status = %d, want 404", rec.Code)
	}
	if rec := doGet(t, srv, "/api/roads/abc"); rec.Code != http.StatusNotFound {
		t.Errorf("non-numeric road: status = %d, want 404", rec.Code)
	}
}

func TestCORSHeader(t *testing.T) {
	srv := New(testStore(t), ":0")
	rec := doGet(t, srv, "/api/stats")
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("missing CORS header")
	}
}
