package resolver

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/wegman-software/dat2sqlite-go/internal/config"
	"github.com/wegman-software/dat2sqlite-go/internal/dat"
	"github.com/wegman-software/dat2sqlite-go/internal/schema"
)

// parseRows runs fixture content through the real reader so resolver tests
// exercise the same typed rows the pipeline produces.
func parseRows(t *testing.T, category, content string) []dat.Row {
	t.Helper()
	sch, err := schema.FieldsFor(category)
	if err != nil {
		t.Fatalf("FieldsFor(%s) failed: %v", category, err)
	}
	path := filepath.Join(t.TempDir(), schema.Filename(category))
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}

	var rows []dat.Row
	r := dat.NewReader(path, sch, config.EncodingUTF8, false)
	if _, err := r.Rows(func(row dat.Row) error {
		rows = append(rows, row)
		return nil
	}); err != nil {
		t.Fatalf("failed to parse %s fixture: %v", category, err)
	}
	return rows
}

func countWarnings(r *Resolver, kind WarningKind) int {
	var n int
	for _, w := range r.Warnings() {
		if w.Kind == kind {
			n++
		}
	}
	return n
}

func TestResolveLinksEntities(t *testing.T) {
	rows := map[string][]dat.Row{
		"NAMES": parseRows(t, "NAMES",
			"CID;LID;NID;NAME\n"+
				"17;1;5000;Budapest\n"+
				"17;1;5001;M1 Budapest-Hegyeshalom\n"),
		"SUBTYPES": parseRows(t, "SUBTYPES",
			"CLASS;TCD;STCD;SDESC\n"+
				"L;3;1;Motorway\n"+
				"P;1;3;Motorway Junction\n"),
		"ADMINISTRATIVEAREA": parseRows(t, "ADMINISTRATIVEAREA",
			"CID;TABCD;LCD;CLASS;TCD;STCD;NID;POL_LCD\n"+
				"17;1;10;A;8;0;5000;\n"),
		"ROADS": parseRows(t, "ROADS",
			"CID;TABCD;LCD;CLASS;TCD;STCD;ROADNUMBER;N1ID;POL_LCD\n"+
				"17;1;100;L;3;1;M1;5001;10\n"),
		"POINTS": parseRows(t, "POINTS",
			"CID;TABCD;LCD;CLASS;TCD;STCD;N1ID;ROA_LCD;POL_LCD;XCOORD;YCOORD;URBAN\n"+
				"17;1;200;P;1;3;5000;100;10;+650000;200000;1\n"),
		"INTERSECTIONS": parseRows(t, "INTERSECTIONS",
			"CID;TABCD;LCD;INT_CID;INT_TABCD;INT_LCD\n"+
				"17;1;200;17;1;300\n"),
	}

	r := New()
	net, err := r.Resolve(rows)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if n := countWarnings(r, WarnDanglingReference); n != 0 {
		t.Errorf("dangling warnings = %d, want 0", n)
	}

	road := net.RoadByLCD[100]
	if road == nil {
		t.Fatal("road 100 not indexed")
	}
	if road.Name != "M1 Budapest-Hegyeshalom" {
		t.Errorf("road name = %q, want resolved N1ID name", road.Name)
	}
	if road.TypeDesc != "Motorway" {
		t.Errorf("road type = %q, want Motorway", road.TypeDesc)
	}
	if road.Area == nil || road.Area.LCD != 10 {
		t.Error("road area not resolved")
	}
	if road.Area.Name != "Budapest" {
		t.Errorf("area name = %q, want Budapest", road.Area.Name)
	}

	p := net.PointByLCD[200]
	if p == nil {
		t.Fatal("point 200 not indexed")
	}
	if p.Road != road {
		t.Error("point not linked to its road")
	}
	if p.Area == nil || p.Area.LCD != 10 {
		t.Error("point area not resolved")
	}
	if p.TypeDesc != "Motorway Junction" {
		t.Errorf("point type = %q, want Motorway Junction", p.TypeDesc)
	}
	if !p.Urban {
		t.Error("urban flag not set")
	}
	// XCOORD is the easting, YCOORD the northing.
	if p.EovY != 650000 || p.EovX != 200000 {
		t.Errorf("coordinates = (easting %v, northing %v), want (650000, 200000)", p.EovY, p.EovX)
	}

	if len(net.Intersections) != 1 {
		t.Fatalf("got %d intersections, want 1", len(net.Intersections))
	}
	if net.Intersections[0].Point != p {
		t.Error("intersection not linked to its point")
	}
}

func TestResolveDanglingReference(t *testing.T) {
	rows := map[string][]dat.Row{
		"POINTS": parseRows(t, "POINTS",
			"CID;TABCD;LCD;CLASS;TCD;ROA_LCD;XCOORD;YCOORD\n"+
				"17;1;200;P;1;999;+650000;200000\n"),
	}

	r := New()
	net, err := r.Resolve(rows)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if n := countWarnings(r, WarnDanglingReference); n != 1 {
		t.Fatalf("dangling warnings = %d, want 1", n)
	}
	if p := net.PointByLCD[200]; p == nil || p.Road != nil {
		t.Error("point kept a reference to a missing road")
	}
}

func TestResolveDanglingNameReference(t *testing.T) {
	rows := map[string][]dat.Row{
		"POINTS": parseRows(t, "POINTS",
			"CID;TABCD;LCD;CLASS;TCD;N1ID;XCOORD;YCOORD\n"+
				"17;1;200;P;1;5000;+650000;200000\n"),
	}

	r := New()
	net, err := r.Resolve(rows)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if n := countWarnings(r, WarnDanglingReference); n != 1 {
		t.Fatalf("dangling warnings = %d, want 1", n)
	}
	if p := net.PointByLCD[200]; p == nil || p.Name != "" {
		t.Error("point kept a name from a missing NAMES entry")
	}
}

func TestResolveDuplicateLastWins(t *testing.T) {
	rows := map[string][]dat.Row{
		"ROADS": parseRows(t, "ROADS",
			"CID;TABCD;LCD;CLASS;TCD;ROADNUMBER\n"+
				"17;1;100;L;3;M1\n"+
				"17;1;100;L;3;M7\n"),
	}

	r := New()
	net, err := r.Resolve(rows)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if n := countWarnings(r, WarnDuplicateIdentifier); n != 1 {
		t.Errorf("duplicate warnings = %d, want 1", n)
	}
	if len(net.Roads) != 1 {
		t.Fatalf("got %d roads, want 1 after deduplication", len(net.Roads))
	}
	if net.RoadByLCD[100].RoadNumber != "M7" {
		t.Errorf("surviving road = %s, want the later record M7", net.RoadByLCD[100].RoadNumber)
	}
}

func TestResolveNamePrimaryLanguageWins(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			name: "primary language first",
			content: "CID;LID;NID;NAME\n" +
				"17;1;5000;Budapest\n" +
				"17;2;5000;Budapest (en)\n",
		},
		{
			name: "primary language last",
			content: "CID;LID;NID;NAME\n" +
				"17;2;5000;Budapest (en)\n" +
				"17;1;5000;Budapest\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows := map[string][]dat.Row{"NAMES": parseRows(t, "NAMES", tt.content)}
			r := New()
			net, err := r.Resolve(rows)
			if err != nil {
				t.Fatalf("Resolve failed: %v", err)
			}
			if got := net.NameByNID[5000].Name; got != "Budapest" {
				t.Errorf("indexed name = %q, want the primary language entry", got)
			}
			if len(net.Names) != 2 {
				t.Errorf("got %d names, want both entries kept", len(net.Names))
			}
		})
	}
}

func TestResolveOrderIndependent(t *testing.T) {
	// Points precede the roads they reference; the two-pass join must not care.
	rows := map[string][]dat.Row{
		"POINTS": parseRows(t, "POINTS",
			"CID;TABCD;LCD;CLASS;TCD;ROA_LCD;XCOORD;YCOORD\n"+
				"17;1;200;P;1;100;+650000;200000\n"),
		"ROADS": parseRows(t, "ROADS",
			"CID;TABCD;LCD;CLASS;TCD;ROADNUMBER\n"+
				"17;1;100;L;3;M1\n"),
	}

	r := New()
	net, err := r.Resolve(rows)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	p := net.PointByLCD[200]
	if p == nil || p.Road == nil || p.Road.RoadNumber != "M1" {
		t.Error("forward reference not resolved")
	}
}
