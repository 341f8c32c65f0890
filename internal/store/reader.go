package store

import (
	"database/sql"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/dhconnelly/rtreego"
)

// Exists reports whether a published store is present at path. Presence of
// the file is the idempotence marker for the pipeline: a completed run left
// it behind, an aborted run never did.
func Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// pointEntry indexes one point in the R-tree.
type pointEntry struct {
	feat PointFeature
}

// rectEpsilon gives point entries a tiny positive extent, which the R-tree
// requires. It is far below coordinate precision.
const rectEpsilon = 1e-9

// Bounds implements rtreego.Spatial.
func (e *pointEntry) Bounds() rtreego.Rect {
	rect, _ := rtreego.NewRect(rtreego.Point{e.feat.Lon, e.feat.Lat}, []float64{rectEpsilon, rectEpsilon})
	return rect
}

// Store is the read side. It opens the published file read-only and builds an
// in-memory R-tree over the points for viewport queries; the dataset is small
// enough that the build cost is negligible against process lifetime.
type Store struct {
	db   *sql.DB
	path string
	tree *rtreego.Rtree
}

// Open opens a published store and builds the viewport index.
func Open(path string) (*Store, error) {
	if !Exists(path) {
		return nil, fmt.Errorf("store not found at %s (run import first)", path)
	}

	db, err := sql.Open("sqlite3", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	s := &Store{db: db, path: path}
	if err := s.buildIndex(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) buildIndex() error {
	rows, err := s.db.Query(`SELECT lcd, lon, lat, tcd, stcd, type_desc, name,
		junction_number, urban, COALESCE(road_lcd, 0), range_flag FROM points`)
	if err != nil {
		return fmt.Errorf("failed to load points: %w", err)
	}
	defer rows.Close()

	s.tree = rtreego.NewTree(2, 25, 50)
	for rows.Next() {
		var e pointEntry
		var urban, flagged int
		if err := rows.Scan(&e.feat.LCD, &e.feat.Lon, &e.feat.Lat, &e.feat.TCD, &e.feat.STCD,
			&e.feat.PointType, &e.feat.Name, &e.feat.JunctionNumber, &urban,
			&e.feat.RoadLCD, &flagged); err != nil {
			return fmt.Errorf("failed to scan point: %w", err)
		}
		e.feat.Urban = urban != 0
		e.feat.RangeFlagged = flagged != 0
		entry := e
		s.tree.Insert(&entry)
	}
	return rows.Err()
}

// searchTree returns all indexed points within the box, boundaries inclusive.
func (s *Store) searchTree(b BBox) []PointFeature {
	if b.East < b.West || b.North < b.South {
		return nil
	}
	rect, err := rtreego.NewRect(
		rtreego.Point{b.West, b.South},
		[]float64{b.East - b.West + 2*rectEpsilon, b.North - b.South + 2*rectEpsilon},
	)
	if err != nil {
		return nil
	}
	var out []PointFeature
	for _, hit := range s.tree.SearchIntersect(rect) {
		feat := hit.(*pointEntry).feat
		if b.Contains(feat.Lon, feat.Lat) {
			out = append(out, feat)
		}
	}
	return out
}

// PointsInBBox returns points within the viewport, optionally filtered by
// subtype codes, capped at limit (0 means no cap).
func (s *Store) PointsInBBox(b BBox, subtypes []int64, limit int) []PointFeature {
	wanted := toSet(subtypes)
	var out []PointFeature
	for _, feat := range s.searchTree(b) {
		if wanted != nil && !wanted[feat.STCD] {
			continue
		}
		out = append(out, feat)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

// RoadsInBBox returns roads that have at least one point in the viewport,
// with the lon/lat extent of those points, optionally filtered by subtype.
func (s *Store) RoadsInBBox(b BBox, subtypes []int64, limit int) ([]RoadFeature, error) {
	type extent struct {
		minLon, minLat, maxLon, maxLat float64
	}
	extents := make(map[int64]*extent)
	for _, feat := range s.searchTree(b) {
		if feat.RoadLCD == 0 {
			continue
		}
		ext, ok := extents[feat.RoadLCD]
		if !ok {
			extents[feat.RoadLCD] = &extent{feat.Lon, feat.Lat, feat.Lon, feat.Lat}
			continue
		}
		if feat.Lon < ext.minLon {
			ext.minLon = feat.Lon
		}
		if feat.Lon > ext.maxLon {
			ext.maxLon = feat.Lon
		}
		if feat.Lat < ext.minLat {
			ext.minLat = feat.Lat
		}
		if feat.Lat > ext.maxLat {
			ext.maxLat = feat.Lat
		}
	}
	if len(extents) == 0 {
		return nil, nil
	}

	lcds := make([]int64, 0, len(extents))
	for lcd := range extents {
		lcds = append(lcds, lcd)
	}
	sort.Slice(lcds, func(i, j int) bool { return lcds[i] < lcds[j] })

	query := `SELECT lcd, road_number, class, tcd, stcd, type_desc, name FROM roads
		WHERE lcd IN (` + placeholders(len(lcds)) + `)`
	args := make([]any, len(lcds))
	for i, lcd := range lcds {
		args[i] = lcd
	}
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query roads: %w", err)
	}
	defer rows.Close()

	wanted := toSet(subtypes)
	var out []RoadFeature
	for rows.Next() {
		var f RoadFeature
		if err := rows.Scan(&f.LCD, &f.RoadNumber, &f.Class, &f.TCD, &f.STCD, &f.RoadType, &f.StartName); err != nil {
			return nil, fmt.Errorf("failed to scan road: %w", err)
		}
		if wanted != nil && !wanted[f.STCD] {
			continue
		}
		ext := extents[f.LCD]
		f.StartLon, f.StartLat = ext.minLon, ext.minLat
		f.EndLon, f.EndLat = ext.maxLon, ext.maxLat
		out = append(out, f)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, rows.Err()
}

// Search finds named locations by case-insensitive substring.
func (s *Store) Search(text string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 50
	}
	pattern := "%" + escapeLike(text) + "%"
	rows, err := s.db.Query(`SELECT DISTINCT n.nid, n.name, COALESCE(n.official_name, ''),
			p.lon, p.lat, p.type_desc
		FROM names n
		JOIN points p ON p.n1id = n.nid
		WHERE n.name LIKE ? ESCAPE '\'
		LIMIT ?`, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search names: %w", err)
	}
	defer rows.Close()

	var out []SearchResult
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(&r.NID, &r.Name, &r.OfficialName, &r.Lon, &r.Lat, &r.Type); err != nil {
			return nil, fmt.Errorf("failed to scan search result: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Stats returns the aggregate snapshot persisted at load time.
func (s *Store) Stats() (*Statistics, error) {
	stats := &Statistics{}

	rows, err := s.db.Query(`SELECT key, value FROM stats`)
	if err != nil {
		return nil, fmt.Errorf("failed to read stats: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var key string
		var value int64
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("failed to scan stat: %w", err)
		}
		switch key {
		case "total_roads":
			stats.TotalRoads = value
		case "total_points":
			stats.TotalPoints = value
		case "total_intersections":
			stats.TotalIntersections = value
		case "total_admin_areas":
			stats.TotalAdminAreas = value
		case "total_names":
			stats.TotalNames = value
		case "range_flagged":
			stats.RangeFlagged = value
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	counts, err := s.db.Query(`SELECT entity, type_desc, cnt FROM type_counts ORDER BY cnt DESC, type_desc`)
	if err != nil {
		return nil, fmt.Errorf("failed to read type counts: %w", err)
	}
	defer counts.Close()
	for counts.Next() {
		var entity string
		var tc TypeCount
		if err := counts.Scan(&entity, &tc.Type, &tc.Count); err != nil {
			return nil, fmt.Errorf("failed to scan type count: %w", err)
		}
		switch entity {
		case "road":
			stats.RoadTypes = append(stats.RoadTypes, tc)
		case "point":
			stats.PointTypes = append(stats.PointTypes, tc)
		}
	}
	if err := counts.Err(); err != nil {
		return nil, err
	}

	for key, dst := range map[string]*float64{
		"bbox_west":  &stats.BBox.West,
		"bbox_south": &stats.BBox.South,
		"bbox_east":  &stats.BBox.East,
		"bbox_north": &stats.BBox.North,
	} {
		var raw string
		err := s.db.QueryRow(`SELECT value FROM meta WHERE key = ?`, key).Scan(&raw)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read meta %s: %w", key, err)
		}
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			*dst = v
		}
	}
	stats.CenterLon = (stats.BBox.West + stats.BBox.East) / 2
	stats.CenterLat = (stats.BBox.South + stats.BBox.North) / 2

	return stats, nil
}

// Motorways enumerates motorway road numbers with their entry counts.
func (s *Store) Motorways() ([]Motorway, error) {
	rows, err := s.db.Query(`SELECT road_number, COUNT(*) FROM roads
		WHERE road_number LIKE 'M%'
		GROUP BY road_number
		ORDER BY road_number`)
	if err != nil {
		return nil, fmt.Errorf("failed to query motorways: %w", err)
	}
	defer rows.Close()

	var out []Motorway
	for rows.Next() {
		var m Motorway
		if err := rows.Scan(&m.Road, &m.Segments); err != nil {
			return nil, fmt.Errorf("failed to scan motorway: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// RoadDetails returns the full record of one road, or nil when unknown.
func (s *Store) RoadDetails(lcd int64) (*RoadDetail, error) {
	d := &RoadDetail{}
	err := s.db.QueryRow(`SELECT r.lcd, r.road_number, r.class, r.tcd, r.stcd, r.type_desc,
			COALESCE(n1.name, ''), COALESCE(n2.name, ''), COALESCE(a.name, ''),
			(SELECT COUNT(*) FROM points p WHERE p.road_lcd = r.lcd)
		FROM roads r
		LEFT JOIN names n1 ON n1.nid = r.n1id AND n1.lid = 1
		LEFT JOIN names n2 ON n2.nid = r.n2id AND n2.lid = 1
		LEFT JOIN admin_areas a ON a.lcd = r.area_lcd
		WHERE r.lcd = ?`, lcd).Scan(
		&d.LCD, &d.RoadNumber, &d.Class, &d.TCD, &d.STCD, &d.RoadType,
		&d.StartName, &d.EndName, &d.AreaName, &d.PointCount)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query road %d: %w", lcd, err)
	}
	return d, nil
}

// EachPoint streams every point row in LCD order, for bulk export.
func (s *Store) EachPoint(fn func(PointFeature) error) error {
	rows, err := s.db.Query(`SELECT lcd, lon, lat, tcd, stcd, type_desc, name,
		junction_number, urban, COALESCE(road_lcd, 0), range_flag
		FROM points ORDER BY lcd`)
	if err != nil {
		return fmt.Errorf("failed to query points: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var f PointFeature
		var urban, flagged int
		if err := rows.Scan(&f.LCD, &f.Lon, &f.Lat, &f.TCD, &f.STCD, &f.PointType,
			&f.Name, &f.JunctionNumber, &urban, &f.RoadLCD, &flagged); err != nil {
			return fmt.Errorf("failed to scan point: %w", err)
		}
		f.Urban = urban != 0
		f.RangeFlagged = flagged != 0
		if err := fn(f); err != nil {
			return err
		}
	}
	return rows.Err()
}

// EachRoad streams every road row in LCD order, for bulk export.
func (s *Store) EachRoad(fn func(RoadFeature) error) error {
	rows, err := s.db.Query(`SELECT lcd, road_number, class, tcd, stcd, type_desc, name
		FROM roads ORDER BY lcd`)
	if err != nil {
		return fmt.Errorf("failed to query roads: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var f RoadFeature
		if err := rows.Scan(&f.LCD, &f.RoadNumber, &f.Class, &f.TCD, &f.STCD,
			&f.RoadType, &f.StartName); err != nil {
			return fmt.Errorf("failed to scan road: %w", err)
		}
		if err := fn(f); err != nil {
			return err
		}
	}
	return rows.Err()
}

func toSet(values []int64) map[int64]bool {
	if len(values) == 0 {
		return nil
	}
	set := make(map[int64]bool, len(values))
	for _, v := range values {
		set[v] = true
	}
	return set
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}
