// Package store persists the resolved network into a single SQLite file and
// serves viewport-bounded queries over it. The file is built under a
// temporary name and renamed onto the target on success, so readers only ever
// observe an absent store or a fully committed one.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/wegman-software/dat2sqlite-go/internal/model"
)

const schemaVersion = 1

var tableDDL = []string{
	`CREATE TABLE meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`,
	`CREATE TABLE countries (
		cid INTEGER PRIMARY KEY,
		ecc TEXT,
		ccd TEXT,
		cname TEXT
	)`,
	`CREATE TABLE type_codes (
		class TEXT NOT NULL,
		tcd INTEGER NOT NULL,
		stcd INTEGER NOT NULL,
		description TEXT,
		nat_code TEXT,
		nat_desc TEXT,
		PRIMARY KEY (class, tcd, stcd)
	)`,
	`CREATE TABLE names (
		cid INTEGER NOT NULL,
		lid INTEGER NOT NULL,
		nid INTEGER NOT NULL,
		name TEXT NOT NULL,
		official_name TEXT,
		PRIMARY KEY (cid, lid, nid)
	)`,
	`CREATE TABLE admin_areas (
		cid INTEGER NOT NULL,
		tabcd INTEGER NOT NULL,
		lcd INTEGER NOT NULL,
		class TEXT,
		tcd INTEGER,
		stcd INTEGER,
		name TEXT,
		parent_lcd INTEGER,
		PRIMARY KEY (cid, tabcd, lcd)
	)`,
	`CREATE TABLE roads (
		cid INTEGER NOT NULL,
		tabcd INTEGER NOT NULL,
		lcd INTEGER NOT NULL,
		class TEXT,
		tcd INTEGER,
		stcd INTEGER,
		road_number TEXT,
		name TEXT,
		n1id INTEGER,
		n2id INTEGER,
		area_lcd INTEGER,
		type_desc TEXT,
		PRIMARY KEY (cid, tabcd, lcd)
	)`,
	`CREATE TABLE points (
		cid INTEGER NOT NULL,
		tabcd INTEGER NOT NULL,
		lcd INTEGER NOT NULL,
		class TEXT,
		tcd INTEGER,
		stcd INTEGER,
		junction_number TEXT,
		name TEXT,
		n1id INTEGER,
		road_lcd INTEGER,
		area_lcd INTEGER,
		urban INTEGER NOT NULL DEFAULT 0,
		eov_x REAL,
		eov_y REAL,
		lon REAL NOT NULL,
		lat REAL NOT NULL,
		range_flag INTEGER NOT NULL DEFAULT 0,
		type_desc TEXT,
		PRIMARY KEY (cid, tabcd, lcd)
	)`,
	`CREATE TABLE intersections (
		cid INTEGER NOT NULL,
		tabcd INTEGER NOT NULL,
		lcd INTEGER NOT NULL,
		int_cid INTEGER NOT NULL,
		int_tabcd INTEGER NOT NULL,
		int_lcd INTEGER NOT NULL,
		PRIMARY KEY (cid, tabcd, lcd, int_cid, int_tabcd, int_lcd)
	)`,
	`CREATE TABLE stats (
		key TEXT PRIMARY KEY,
		value INTEGER NOT NULL
	)`,
	`CREATE TABLE type_counts (
		entity TEXT NOT NULL,
		type_desc TEXT NOT NULL,
		cnt INTEGER NOT NULL,
		PRIMARY KEY (entity, type_desc)
	)`,
}

var indexDDL = []string{
	`CREATE INDEX idx_points_lonlat ON points (lon, lat)`,
	`CREATE INDEX idx_points_type ON points (class, tcd, stcd)`,
	`CREATE INDEX idx_points_road ON points (road_lcd)`,
	`CREATE INDEX idx_points_name ON points (name COLLATE NOCASE)`,
	`CREATE INDEX idx_roads_number ON roads (road_number)`,
	`CREATE INDEX idx_roads_type ON roads (class, tcd, stcd)`,
	`CREATE INDEX idx_names_nid ON names (nid)`,
}

// Writer builds the store under a temporary path. Publish renames it onto
// the target; anything short of Publish leaves the target untouched.
type Writer struct {
	db      *sql.DB
	tmpPath string
	target  string
}

// CreateTemp opens a fresh temporary store next to the target path.
func CreateTemp(target string) (*Writer, error) {
	tmpPath := fmt.Sprintf("%s.tmp-%d", target, os.Getpid())
	// A stale temp file from a killed run is garbage by definition.
	if err := os.Remove(tmpPath); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to remove stale temp store: %w", err)
	}

	db, err := sql.Open("sqlite3", tmpPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create temp store: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA synchronous=FULL"); err != nil {
		db.Close()
		os.Remove(tmpPath)
		return nil, fmt.Errorf("failed to configure temp store: %w", err)
	}

	return &Writer{db: db, tmpPath: tmpPath, target: target}, nil
}

// WriteNetwork persists the whole graph in a single transaction, including
// the aggregate statistics snapshot. Either everything commits or nothing.
func (w *Writer) WriteNetwork(net *model.Network) error {
	tx, err := w.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin store transaction: %w", err)
	}
	defer tx.Rollback()

	for _, ddl := range tableDDL {
		if _, err := tx.Exec(ddl); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	if err := w.insertEntities(tx, net); err != nil {
		return err
	}
	if err := w.insertStats(tx, net); err != nil {
		return err
	}

	for _, ddl := range indexDDL {
		if _, err := tx.Exec(ddl); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}

	meta := map[string]string{
		"schema_version": fmt.Sprintf("%d", schemaVersion),
		"built_at":       time.Now().UTC().Format(time.RFC3339),
	}
	for k, v := range meta {
		if _, err := tx.Exec(`INSERT INTO meta (key, value) VALUES (?, ?)`, k, v); err != nil {
			return fmt.Errorf("failed to write meta: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit store: %w", err)
	}
	return nil
}

func (w *Writer) insertEntities(tx *sql.Tx, net *model.Network) error {
	for _, c := range net.Countries {
		if _, err := tx.Exec(
			`INSERT OR REPLACE INTO countries (cid, ecc, ccd, cname) VALUES (?, ?, ?, ?)`,
			c.CID, c.ECC, c.CCD, c.Name,
		); err != nil {
			return fmt.Errorf("failed to insert country: %w", err)
		}
	}

	tcStmt, err := tx.Prepare(`INSERT INTO type_codes
		(class, tcd, stcd, description, nat_code, nat_desc)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare type_codes insert: %w", err)
	}
	defer tcStmt.Close()
	for _, tc := range net.TypeCodes {
		if _, err := tcStmt.Exec(tc.Class, tc.TCD, tc.STCD, tc.Desc, tc.NatCode, tc.NatDesc); err != nil {
			return fmt.Errorf("failed to insert type code: %w", err)
		}
	}

	nameStmt, err := tx.Prepare(`INSERT OR REPLACE INTO names
		(cid, lid, nid, name, official_name) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare names insert: %w", err)
	}
	defer nameStmt.Close()
	for _, n := range net.Names {
		if _, err := nameStmt.Exec(n.CID, n.LID, n.NID, n.Name, n.OfficialName); err != nil {
			return fmt.Errorf("failed to insert name: %w", err)
		}
	}

	areaStmt, err := tx.Prepare(`INSERT INTO admin_areas
		(cid, tabcd, lcd, class, tcd, stcd, name, parent_lcd)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare admin_areas insert: %w", err)
	}
	defer areaStmt.Close()
	for _, a := range net.AdminAreas {
		var parent any
		if a.Parent != nil {
			parent = a.Parent.LCD
		}
		if _, err := areaStmt.Exec(a.CID, a.TabCD, a.LCD, a.Class, a.TCD, a.STCD, a.Name, parent); err != nil {
			return fmt.Errorf("failed to insert admin area: %w", err)
		}
	}

	roadStmt, err := tx.Prepare(`INSERT INTO roads
		(cid, tabcd, lcd, class, tcd, stcd, road_number, name, n1id, n2id, area_lcd, type_desc)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare roads insert: %w", err)
	}
	defer roadStmt.Close()
	for _, r := range net.Roads {
		var area any
		if r.Area != nil {
			area = r.Area.LCD
		}
		if _, err := roadStmt.Exec(r.CID, r.TabCD, r.LCD, r.Class, r.TCD, r.STCD,
			r.RoadNumber, r.Name, r.N1ID, r.N2ID, area, r.TypeDesc); err != nil {
			return fmt.Errorf("failed to insert road: %w", err)
		}
	}

	pointStmt, err := tx.Prepare(`INSERT INTO points
		(cid, tabcd, lcd, class, tcd, stcd, junction_number, name, n1id, road_lcd, area_lcd,
		 urban, eov_x, eov_y, lon, lat, range_flag, type_desc)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare points insert: %w", err)
	}
	defer pointStmt.Close()
	for _, p := range net.Points {
		var road, area any
		if p.Road != nil {
			road = p.Road.LCD
		}
		if p.Area != nil {
			area = p.Area.LCD
		}
		if _, err := pointStmt.Exec(p.CID, p.TabCD, p.LCD, p.Class, p.TCD, p.STCD,
			p.JunctionNumber, p.Name, p.N1ID, road, area, boolToInt(p.Urban),
			p.EovX, p.EovY, p.Lon, p.Lat, boolToInt(p.OutOfEnvelope), p.TypeDesc); err != nil {
			return fmt.Errorf("failed to insert point: %w", err)
		}
	}

	xStmt, err := tx.Prepare(`INSERT OR REPLACE INTO intersections
		(cid, tabcd, lcd, int_cid, int_tabcd, int_lcd) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare intersections insert: %w", err)
	}
	defer xStmt.Close()
	for _, x := range net.Intersections {
		if _, err := xStmt.Exec(x.CID, x.TabCD, x.LCD, x.Other.CID, x.Other.TabCD, x.Other.LCD); err != nil {
			return fmt.Errorf("failed to insert intersection: %w", err)
		}
	}

	return nil
}

// insertStats computes and persists the aggregate snapshot inside the same
// transaction, so the cache can never disagree with the tables it summarizes.
func (w *Writer) insertStats(tx *sql.Tx, net *model.Network) error {
	var flagged int64
	minLon, minLat := 180.0, 90.0
	maxLon, maxLat := -180.0, -90.0
	for _, p := range net.Points {
		if p.OutOfEnvelope {
			flagged++
		}
		if p.Lon < minLon {
			minLon = p.Lon
		}
		if p.Lon > maxLon {
			maxLon = p.Lon
		}
		if p.Lat < minLat {
			minLat = p.Lat
		}
		if p.Lat > maxLat {
			maxLat = p.Lat
		}
	}
	if len(net.Points) == 0 {
		minLon, minLat, maxLon, maxLat = 0, 0, 0, 0
	}

	counters := map[string]int64{
		"total_roads":         int64(len(net.Roads)),
		"total_points":        int64(len(net.Points)),
		"total_intersections": int64(len(net.Intersections)),
		"total_admin_areas":   int64(len(net.AdminAreas)),
		"total_names":         int64(len(net.Names)),
		"range_flagged":       flagged,
	}
	for k, v := range counters {
		if _, err := tx.Exec(`INSERT INTO stats (key, value) VALUES (?, ?)`, k, v); err != nil {
			return fmt.Errorf("failed to insert stat %s: %w", k, err)
		}
	}
	for _, k := range []string{"bbox_west", "bbox_south", "bbox_east", "bbox_north"} {
		var v float64
		switch k {
		case "bbox_west":
			v = minLon
		case "bbox_south":
			v = minLat
		case "bbox_east":
			v = maxLon
		case "bbox_north":
			v = maxLat
		}
		if _, err := tx.Exec(`INSERT INTO meta (key, value) VALUES (?, ?)`, k, fmt.Sprintf("%g", v)); err != nil {
			return fmt.Errorf("failed to insert bbox meta: %w", err)
		}
	}

	byType := func(entity string, descs map[string]int64) error {
		keys := make([]string, 0, len(descs))
		for k := range descs {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, desc := range keys {
			if _, err := tx.Exec(
				`INSERT INTO type_counts (entity, type_desc, cnt) VALUES (?, ?, ?)`,
				entity, desc, descs[desc],
			); err != nil {
				return fmt.Errorf("failed to insert type count: %w", err)
			}
		}
		return nil
	}

	roadTypes := make(map[string]int64)
	for _, r := range net.Roads {
		if r.TypeDesc != "" {
			roadTypes[r.TypeDesc]++
		}
	}
	pointTypes := make(map[string]int64)
	for _, p := range net.Points {
		if p.TypeDesc != "" {
			pointTypes[p.TypeDesc]++
		}
	}
	if err := byType("road", roadTypes); err != nil {
		return err
	}
	return byType("point", pointTypes)
}

// Publish closes the temporary store and atomically renames it onto the
// target path.
func (w *Writer) Publish() error {
	if err := w.db.Close(); err != nil {
		os.Remove(w.tmpPath)
		return fmt.Errorf("failed to close temp store: %w", err)
	}
	w.db = nil
	if err := os.Rename(w.tmpPath, w.target); err != nil {
		os.Remove(w.tmpPath)
		return fmt.Errorf("failed to publish store: %w", err)
	}
	// The rename itself is atomic but not durable until the directory entry
	// reaches disk.
	return syncDir(filepath.Dir(w.target))
}

func syncDir(path string) error {
	dir, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open store directory: %w", err)
	}
	defer dir.Close()
	if err := dir.Sync(); err != nil {
		return fmt.Errorf("failed to sync store directory: %w", err)
	}
	return nil
}

// Discard closes and removes the temporary store. Safe to call after a
// successful Publish; it is then a no-op.
func (w *Writer) Discard() {
	if w.db != nil {
		w.db.Close()
		w.db = nil
		os.Remove(w.tmpPath)
	}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
