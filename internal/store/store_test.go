package store

import (
	"path/filepath"
	"testing"

	"github.com/wegman-software/dat2sqlite-go/internal/model"
)

// testNetwork builds a small resolved graph: two motorway roads, one main
// road, four points around Budapest and one flagged outlier.
func testNetwork() *model.Network {
	area := &model.AdminArea{
		Key:  model.Key{CID: 17, TabCD: 1, LCD: 10},
		Name: "Pest",
	}
	m1 := &model.Road{
		Key:        model.Key{CID: 17, TabCD: 1, LCD: 100},
		Class:      "L",
		TCD:        3,
		STCD:       1,
		RoadNumber: "M1",
		N1ID:       5001,
		N2ID:       5002,
		Name:       "Budapest-Hegyeshalom",
		TypeDesc:   "Motorway",
		Area:       area,
	}
	m7 := &model.Road{
		Key:        model.Key{CID: 17, TabCD: 1, LCD: 101},
		Class:      "L",
		TCD:        3,
		STCD:       1,
		RoadNumber: "M7",
		TypeDesc:   "Motorway",
	}
	main4 := &model.Road{
		Key:        model.Key{CID: 17, TabCD: 1, LCD: 102},
		Class:      "L",
		TCD:        3,
		STCD:       2,
		RoadNumber: "4",
		TypeDesc:   "1st Class Road",
	}

	points := []*model.Point{
		{
			Key: model.Key{CID: 17, TabCD: 1, LCD: 200},
			TCD: 1, STCD: 3, TypeDesc: "Motorway Junction",
			Name: "Budaörs", N1ID: 5000,
			Lon: 18.95, Lat: 47.45, Urban: true,
			Road: m1, Area: area,
		},
		{
			Key: model.Key{CID: 17, TabCD: 1, LCD: 201},
			TCD: 1, STCD: 3, TypeDesc: "Motorway Junction",
			Name: "Tatabánya", JunctionNumber: "58",
			Lon: 18.40, Lat: 47.56,
			Road: m1,
		},
		{
			Key: model.Key{CID: 17, TabCD: 1, LCD: 202},
			TCD: 1, STCD: 3, TypeDesc: "Motorway Junction",
			Name: "Érd", Lon: 18.91, Lat: 47.38,
			Road: m7,
		},
		{
			Key: model.Key{CID: 17, TabCD: 1, LCD: 203},
			TCD: 1, STCD: 6, TypeDesc: "Crossroads",
			Name: "Cegléd", Lon: 19.80, Lat: 47.17,
			Road: main4,
		},
		{
			Key: model.Key{CID: 17, TabCD: 1, LCD: 204},
			TCD: 1, STCD: 6, TypeDesc: "Crossroads",
			Lon: 14.20, Lat: 50.10, OutOfEnvelope: true,
		},
	}

	return &model.Network{
		Countries: []*model.Country{{CID: 17, ECC: "D", CCD: "49", Name: "Hungary"}},
		TypeCodes: map[model.TypeKey]*model.TypeCode{
			{Class: "L", TCD: 3, STCD: 1}: {Class: "L", TCD: 3, STCD: 1, Desc: "Motorway"},
			{Class: "P", TCD: 1, STCD: 3}: {Class: "P", TCD: 1, STCD: 3, Desc: "Motorway Junction"},
		},
		Names: []*model.Name{
			{CID: 17, LID: 1, NID: 5000, Name: "Budaörs"},
			{CID: 17, LID: 1, NID: 5001, Name: "Budapest"},
			{CID: 17, LID: 1, NID: 5002, Name: "Hegyeshalom"},
		},
		AdminAreas: []*model.AdminArea{area},
		Roads:      []*model.Road{m1, m7, main4},
		Points:     points,
		Intersections: []*model.Intersection{
			{Key: model.Key{CID: 17, TabCD: 1, LCD: 200}, Other: model.Key{CID: 17, TabCD: 1, LCD: 202}},
		},
	}
}

// buildStore writes the test network into a published store and opens it.
func buildStore(t *testing.T) *Store {
	t.Helper()
	target := filepath.Join(t.TempDir(), "network.db")

	w, err := CreateTemp(target)
	if err != nil {
		t.Fatalf("CreateTemp failed: %v", err)
	}
	defer w.Discard()
	if err := w.WriteNetwork(testNetwork()); err != nil {
		t.Fatalf("WriteNetwork failed: %v", err)
	}
	if err := w.Publish(); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	s, err := Open(target)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPublishIsAtomic(t *testing.T) {
	target := filepath.Join(t.TempDir(), "network.db")

	w, err := CreateTemp(target)
	if err != nil {
		t.Fatalf("CreateTemp failed: %v", err)
	}
	if Exists(target) {
		t.Error("target exists before publish")
	}
	if err := w.WriteNetwork(testNetwork()); err != nil {
		t.Fatalf("WriteNetwork failed: %v", err)
	}
	if Exists(target) {
		t.Error("target exists after write but before publish")
	}
	if err := w.Publish(); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if !Exists(target) {
		t.Error("target missing after publish")
	}
	// Discard after a successful publish must not remove the published file.
	w.Discard()
	if !Exists(target) {
		t.Error("Discard removed the published store")
	}
}

func TestDiscardLeavesNoTarget(t *testing.T) {
	target := filepath.Join(t.TempDir(), "network.db")

	w, err := CreateTemp(target)
	if err != nil {
		t.Fatalf("CreateTemp failed: %v", err)
	}
	if err := w.WriteNetwork(testNetwork()); err != nil {
		t.Fatalf("WriteNetwork failed: %v", err)
	}
	w.Discard()
	if Exists(target) {
		t.Error("target exists after a discarded build")
	}
}

func TestOpenMissingStore(t *testing.T) {
	if _, err := Open(filepath.Join(t.TempDir(), "missing.db")); err == nil {
		t.Fatal("Open succeeded on a missing store")
	}
}

func TestPointsInBBox(t *testing.T) {
	s := buildStore(t)

	budapest := BBox{West: 18.5, South: 47.0, East: 20.0, North: 48.0}
	points := s.PointsInBBox(budapest, nil, 0)
	if len(points) != 3 {
		t.Fatalf("got %d points, want 3", len(points))
	}
	for _, p := range points {
		if !budapest.Contains(p.Lon, p.Lat) {
			t.Errorf("point %d at (%v, %v) outside the viewport", p.LCD, p.Lon, p.Lat)
		}
	}
}

func TestPointsInBBoxBoundaryInclusive(t *testing.T) {
	s := buildStore(t)

	// Viewport edge exactly on the Budaörs point.
	exact := BBox{West: 18.95, South: 47.45, East: 19.0, North: 47.5}
	points := s.PointsInBBox(exact, nil, 0)
	if len(points) != 1 || points[0].LCD != 200 {
		t.Fatalf("boundary point not returned, got %v", points)
	}
}

func TestPointsInBBoxSubtypeFilter(t *testing.T) {
	s := buildStore(t)

	wide := BBox{West: 14, South: 45, East: 24, North: 51}
	junctions := s.PointsInBBox(wide, []int64{3}, 0)
	if len(junctions) != 3 {
		t.Fatalf("got %d junctions, want 3", len(junctions))
	}
	for _, p := range junctions {
		if p.STCD != 3 {
			t.Errorf("point %d has stcd %d, want 3", p.LCD, p.STCD)
		}
	}
}

func TestPointsInBBoxLimit(t *testing.T) {
	s := buildStore(t)

	wide := BBox{West: 14, South: 45, East: 24, North: 51}
	if got := s.PointsInBBox(wide, nil, 2); len(got) != 2 {
		t.Errorf("got %d points with limit 2, want 2", len(got))
	}
}

func TestRoadsInBBox(t *testing.T) {
	s := buildStore(t)

	budapest := BBox{West: 18.0, South: 47.0, East: 20.0, North: 48.0}
	roads, err := s.RoadsInBBox(budapest, nil, 0)
	if err != nil {
		t.Fatalf("RoadsInBBox failed: %v", err)
	}
	if len(roads) != 3 {
		t.Fatalf("got %d roads, want 3", len(roads))
	}

	var m1 *RoadFeature
	for i := range roads {
		if roads[i].RoadNumber == "M1" {
			m1 = &roads[i]
		}
	}
	if m1 == nil {
		t.Fatal("M1 not returned")
	}
	// Extent spans both M1 points in the viewport.
	if m1.StartLon != 18.40 || m1.EndLon != 18.95 {
		t.Errorf("M1 lon extent = [%v, %v], want [18.40, 18.95]", m1.StartLon, m1.EndLon)
	}
	if m1.StartLat != 47.45 || m1.EndLat != 47.56 {
		t.Errorf("M1 lat extent = [%v, %v], want [47.45, 47.56]", m1.StartLat, m1.EndLat)
	}
}

func TestRoadsInBBoxEmptyViewport(t *testing.T) {
	s := buildStore(t)

	atlantic := BBox{West: -30, South: 40, East: -20, North: 50}
	roads, err := s.RoadsInBBox(atlantic, nil, 0)
	if err != nil {
		t.Fatalf("RoadsInBBox failed: %v", err)
	}
	if len(roads) != 0 {
		t.Errorf("got %d roads in an empty viewport", len(roads))
	}
}

func TestSearch(t *testing.T) {
	s := buildStore(t)

	tests := []struct {
		name  string
		query string
		want  int
	}{
		{"exact", "Budaörs", 1},
		{"case insensitive substring", "budaör", 1},
		{"no match", "Szeged", 0},
		{"like metacharacters are literal", "%", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results, err := s.Search(tt.query, 10)
			if err != nil {
				t.Fatalf("Search failed: %v", err)
			}
			if len(results) != tt.want {
				t.Errorf("got %d results, want %d", len(results), tt.want)
			}
		})
	}

	results, err := s.Search("Budaörs", 10)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if results[0].NID != 5000 || results[0].Lon != 18.95 {
		t.Errorf("unexpected hit: %+v", results[0])
	}
}

func TestStats(t *testing.T) {
	s := buildStore(t)

	stats, err := s.Stats()
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.TotalRoads != 3 {
		t.Errorf("total roads = %d, want 3", stats.TotalRoads)
	}
	if stats.TotalPoints != 5 {
		t.Errorf("total points = %d, want 5", stats.TotalPoints)
	}
	if stats.TotalIntersections != 1 {
		t.Errorf("total intersections = %d, want 1", stats.TotalIntersections)
	}
	if stats.TotalAdminAreas != 1 {
		t.Errorf("total admin areas = %d, want 1", stats.TotalAdminAreas)
	}
	if stats.TotalNames != 3 {
		t.Errorf("total names = %d, want 3", stats.TotalNames)
	}
	if stats.RangeFlagged != 1 {
		t.Errorf("range flagged = %d, want 1", stats.RangeFlagged)
	}

	// BBox covers every persisted point, including the flagged outlier.
	if stats.BBox.West != 14.20 || stats.BBox.North != 50.10 {
		t.Errorf("bbox = %+v", stats.BBox)
	}
	if stats.CenterLon != (stats.BBox.West+stats.BBox.East)/2 {
		t.Errorf("center lon = %v", stats.CenterLon)
	}

	// Breakdown ordered by count, descending.
	if len(stats.PointTypes) != 2 {
		t.Fatalf("got %d point types, want 2", len(stats.PointTypes))
	}
	if stats.PointTypes[0].Type != "Motorway Junction" || stats.PointTypes[0].Count != 3 {
		t.Errorf("top point type = %+v", stats.PointTypes[0])
	}
	if len(stats.RoadTypes) != 2 {
		t.Fatalf("got %d road types, want 2", len(stats.RoadTypes))
	}
	if stats.RoadTypes[0].Type != "Motorway" || stats.RoadTypes[0].Count != 2 {
		t.Errorf("top road type = %+v", stats.RoadTypes[0])
	}
}

func TestMotorways(t *testing.T) {
	s := buildStore(t)

	motorways, err := s.Motorways()
	if err != nil {
		t.Fatalf("Motorways failed: %v", err)
	}
	if len(motorways) != 2 {
		t.Fatalf("got %d motorways, want 2", len(motorways))
	}
	if motorways[0].Road != "M1" || motorways[1].Road != "M7" {
		t.Errorf("motorways = %+v, want M1 then M7", motorways)
	}
}

func TestRoadDetails(t *testing.T) {
	s := buildStore(t)

	d, err := s.RoadDetails(100)
	if err != nil {
		t.Fatalf("RoadDetails failed: %v", err)
	}
	if d == nil {
		t.Fatal("road 100 not found")
	}
	if d.RoadNumber != "M1" {
		t.Errorf("road number = %s, want M1", d.RoadNumber)
	}
	if d.StartName != "Budapest" || d.EndName != "Hegyeshalom" {
		t.Errorf("endpoints = %q / %q, want Budapest / Hegyeshalom", d.StartName, d.EndName)
	}
	if d.AreaName != "Pest" {
		t.Errorf("area = %q, want Pest", d.AreaName)
	}
	if d.PointCount != 2 {
		t.Errorf("point count = %d, want 2", d.PointCount)
	}
}

func TestRoadDetailsUnknown(t *testing.T) {
	s := buildStore(t)

	d, err := s.RoadDetails(99999)
	if err != nil {
		t.Fatalf("RoadDetails failed: %v", err)
	}
	if d != nil {
		t.Errorf("got %+v for an unknown road, want nil", d)
	}
}

func TestEachPointOrdered(t *testing.T) {
	s := buildStore(t)

	var lcds []int64
	if err := s.EachPoint(func(p PointFeature) error {
		lcds = append(lcds, p.LCD)
		return nil
	}); err != nil {
		t.Fatalf("EachPoint failed: %v", err)
	}
	if len(lcds) != 5 {
		t.Fatalf("got %d points, want 5", len(lcds))
	}
	for i := 1; i < len(lcds); i++ {
		if lcds[i] <= lcds[i-1] {
			t.Fatalf("points not ordered by lcd: %v", lcds)
		}
	}
}
