// Package resolver joins the parsed row sets into the entity graph. It runs
// in two passes: build identifier indexes per entity type, then materialize
// foreign keys as direct references. The join is therefore independent of row
// order in the source files.
package resolver

import (
	"fmt"

	"github.com/wegman-software/dat2sqlite-go/internal/dat"
	"github.com/wegman-software/dat2sqlite-go/internal/model"
)

// WarningKind classifies a non-fatal data quality finding.
type WarningKind string

const (
	WarnDanglingReference   WarningKind = "DanglingReference"
	WarnDuplicateIdentifier WarningKind = "DuplicateIdentifier"
)

// Warning is a non-fatal finding. Warnings never abort a run; they are
// counted and logged so operators can judge data quality.
type Warning struct {
	Kind     WarningKind
	Category string
	Detail   string
}

func (w Warning) String() string {
	return fmt.Sprintf("%s [%s]: %s", w.Kind, w.Category, w.Detail)
}

// Resolver builds the network from parsed rows.
type Resolver struct {
	warnings []Warning
}

func New() *Resolver {
	return &Resolver{}
}

// Warnings returns the findings of the last Resolve call.
func (r *Resolver) Warnings() []Warning {
	return r.warnings
}

// Resolve consumes rows per category (keyed by canonical category name) and
// returns the resolved graph. The dataset fits comfortably in memory, so all
// indexes are plain maps.
func (r *Resolver) Resolve(rows map[string][]dat.Row) (*model.Network, error) {
	r.warnings = nil

	net := &model.Network{
		TypeCodes:  make(map[model.TypeKey]*model.TypeCode),
		RoadByLCD:  make(map[int64]*model.Road),
		AreaByLCD:  make(map[int64]*model.AdminArea),
		PointByLCD: make(map[int64]*model.Point),
		NameByNID:  make(map[int64]*model.Name),
	}

	// Pass 1: index every entity type by identifier.
	r.indexCountries(net, rows["COUNTRIES"])
	r.indexTypeCodes(net, rows["TYPES"], rows["SUBTYPES"])
	r.indexNames(net, rows["NAMES"])
	r.indexAdminAreas(net, rows["ADMINISTRATIVEAREA"])
	r.indexRoads(net, rows["ROADS"])
	r.indexPoints(net, rows["POINTS"])
	r.indexIntersections(net, rows["INTERSECTIONS"])

	// Pass 2: resolve foreign keys through the indexes.
	r.resolveAdminAreas(net)
	r.resolveRoads(net)
	r.resolvePoints(net)
	r.resolveIntersections(net)

	return net, nil
}

func (r *Resolver) dangling(category, detail string) {
	r.warnings = append(r.warnings, Warning{Kind: WarnDanglingReference, Category: category, Detail: detail})
}

func (r *Resolver) duplicate(category, detail string) {
	r.warnings = append(r.warnings, Warning{Kind: WarnDuplicateIdentifier, Category: category, Detail: detail})
}

func rowKey(row dat.Row) model.Key {
	return model.Key{
		CID:   row.IntOr("CID", 0),
		TabCD: row.IntOr("TABCD", 0),
		LCD:   row.IntOr("LCD", 0),
	}
}

func (r *Resolver) indexCountries(net *model.Network, rows []dat.Row) {
	for _, row := range rows {
		net.Countries = append(net.Countries, &model.Country{
			CID:  row.IntOr("CID", 0),
			ECC:  row.TextOr("ECC", ""),
			CCD:  row.TextOr("CCD", ""),
			Name: row.TextOr("CNAME", ""),
		})
	}
}

func (r *Resolver) indexTypeCodes(net *model.Network, types, subtypes []dat.Row) {
	for _, row := range types {
		tc := &model.TypeCode{
			Class:   row.TextOr("CLASS", ""),
			TCD:     row.IntOr("TCD", 0),
			STCD:    0,
			Desc:    row.TextOr("TDESC", ""),
			NatCode: row.TextOr("TNATCD", ""),
			NatDesc: row.TextOr("TNATDESC", ""),
		}
		key := model.TypeKey{Class: tc.Class, TCD: tc.TCD, STCD: 0}
		if _, ok := net.TypeCodes[key]; ok {
			r.duplicate("TYPES", fmt.Sprintf("class %s tcd %d", tc.Class, tc.TCD))
		}
		net.TypeCodes[key] = tc
	}
	for _, row := range subtypes {
		tc := &model.TypeCode{
			Class:   row.TextOr("CLASS", ""),
			TCD:     row.IntOr("TCD", 0),
			STCD:    row.IntOr("STCD", 0),
			Desc:    row.TextOr("SDESC", ""),
			NatCode: row.TextOr("SNATCODE", ""),
			NatDesc: row.TextOr("SNATDESC", ""),
		}
		key := model.TypeKey{Class: tc.Class, TCD: tc.TCD, STCD: tc.STCD}
		if _, ok := net.TypeCodes[key]; ok {
			r.duplicate("SUBTYPES", fmt.Sprintf("class %s tcd %d stcd %d", tc.Class, tc.TCD, tc.STCD))
		}
		net.TypeCodes[key] = tc
	}
}

func (r *Resolver) indexNames(net *model.Network, rows []dat.Row) {
	for _, row := range rows {
		n := &model.Name{
			CID:          row.IntOr("CID", 0),
			LID:          row.IntOr("LID", 0),
			NID:          row.IntOr("NID", 0),
			Name:         row.TextOr("NAME", ""),
			Comment:      row.TextOr("NCOMMENT", ""),
			OfficialName: row.TextOr("OFFICIALNAME", ""),
		}
		net.Names = append(net.Names, n)
		// The primary language entry wins the NID index; duplicates within
		// the same language are last-seen-wins.
		if prev, ok := net.NameByNID[n.NID]; ok {
			if prev.LID == n.LID {
				r.duplicate("NAMES", fmt.Sprintf("nid %d lid %d", n.NID, n.LID))
			} else if n.LID != 1 {
				continue
			}
		}
		net.NameByNID[n.NID] = n
	}
}

func (r *Resolver) indexAdminAreas(net *model.Network, rows []dat.Row) {
	for _, row := range rows {
		a := &model.AdminArea{
			Key:    rowKey(row),
			Class:  row.TextOr("CLASS", ""),
			TCD:    row.IntOr("TCD", 0),
			STCD:   row.IntOr("STCD", 0),
			NID:    row.IntOr("NID", 0),
			PolLCD: row.IntOr("POL_LCD", 0),
		}
		if _, ok := net.AreaByLCD[a.LCD]; ok {
			r.duplicate("ADMINISTRATIVEAREA", fmt.Sprintf("lcd %d", a.LCD))
			// last-seen wins: drop the earlier entry from the slice
			for i, prev := range net.AdminAreas {
				if prev.LCD == a.LCD {
					net.AdminAreas = append(net.AdminAreas[:i], net.AdminAreas[i+1:]...)
					break
				}
			}
		}
		net.AdminAreas = append(net.AdminAreas, a)
		net.AreaByLCD[a.LCD] = a
	}
}

func (r *Resolver) indexRoads(net *model.Network, rows []dat.Row) {
	for _, row := range rows {
		road := &model.Road{
			Key:        rowKey(row),
			Class:      row.TextOr("CLASS", ""),
			TCD:        row.IntOr("TCD", 0),
			STCD:       row.IntOr("STCD", 0),
			RoadNumber: row.TextOr("ROADNUMBER", ""),
			RNID:       row.IntOr("RNID", 0),
			N1ID:       row.IntOr("N1ID", 0),
			N2ID:       row.IntOr("N2ID", 0),
			PolLCD:     row.IntOr("POL_LCD", 0),
		}
		if _, ok := net.RoadByLCD[road.LCD]; ok {
			r.duplicate("ROADS", fmt.Sprintf("lcd %d", road.LCD))
			for i, prev := range net.Roads {
				if prev.LCD == road.LCD {
					net.Roads = append(net.Roads[:i], net.Roads[i+1:]...)
					break
				}
			}
		}
		net.Roads = append(net.Roads, road)
		net.RoadByLCD[road.LCD] = road
	}
}

func (r *Resolver) indexPoints(net *model.Network, rows []dat.Row) {
	for _, row := range rows {
		p := &model.Point{
			Key:            rowKey(row),
			Class:          row.TextOr("CLASS", ""),
			TCD:            row.IntOr("TCD", 0),
			STCD:           row.IntOr("STCD", 0),
			JunctionNumber: row.TextOr("JUNCTIONNUMBER", ""),
			RNID:           row.IntOr("RNID", 0),
			N1ID:           row.IntOr("N1ID", 0),
			N2ID:           row.IntOr("N2ID", 0),
			PolLCD:         row.IntOr("POL_LCD", 0),
			OthLCD:         row.IntOr("OTH_LCD", 0),
			SegLCD:         row.IntOr("SEG_LCD", 0),
			RoaLCD:         row.IntOr("ROA_LCD", 0),
			Urban:          row.IntOr("URBAN", 0) != 0,
		}
		// XCOORD is the easting, YCOORD the northing.
		if v, ok := row.Float("XCOORD"); ok {
			p.EovY = v
		}
		if v, ok := row.Float("YCOORD"); ok {
			p.EovX = v
		}
		if _, ok := net.PointByLCD[p.LCD]; ok {
			r.duplicate("POINTS", fmt.Sprintf("lcd %d", p.LCD))
			for i, prev := range net.Points {
				if prev.LCD == p.LCD {
					net.Points = append(net.Points[:i], net.Points[i+1:]...)
					break
				}
			}
		}
		net.Points = append(net.Points, p)
		net.PointByLCD[p.LCD] = p
	}
}

func (r *Resolver) indexIntersections(net *model.Network, rows []dat.Row) {
	for _, row := range rows {
		net.Intersections = append(net.Intersections, &model.Intersection{
			Key: rowKey(row),
			Other: model.Key{
				CID:   row.IntOr("INT_CID", 0),
				TabCD: row.IntOr("INT_TABCD", 0),
				LCD:   row.IntOr("INT_LCD", 0),
			},
		})
	}
}

func (r *Resolver) resolveAdminAreas(net *model.Network) {
	for _, a := range net.AdminAreas {
		if n, ok := net.NameByNID[a.NID]; ok {
			a.Name = n.Name
		} else if a.NID != 0 {
			r.dangling("ADMINISTRATIVEAREA", fmt.Sprintf("lcd %d references name nid %d", a.LCD, a.NID))
		}
		if a.PolLCD == 0 {
			continue
		}
		if parent, ok := net.AreaByLCD[a.PolLCD]; ok && parent != a {
			a.Parent = parent
		} else if !ok {
			r.dangling("ADMINISTRATIVEAREA", fmt.Sprintf("lcd %d references parent area lcd %d", a.LCD, a.PolLCD))
		}
	}
}

func (r *Resolver) resolveRoads(net *model.Network) {
	for _, road := range net.Roads {
		if n, ok := net.NameByNID[road.N1ID]; ok {
			road.Name = n.Name
		} else if road.N1ID != 0 {
			r.dangling("ROADS", fmt.Sprintf("lcd %d references name nid %d", road.LCD, road.N1ID))
		}
		if tc, ok := net.TypeCodes[model.TypeKey{Class: road.Class, TCD: road.TCD, STCD: road.STCD}]; ok {
			road.TypeDesc = tc.Desc
		}
		if road.PolLCD != 0 {
			if area, ok := net.AreaByLCD[road.PolLCD]; ok {
				road.Area = area
			} else {
				r.dangling("ROADS", fmt.Sprintf("lcd %d references area lcd %d", road.LCD, road.PolLCD))
			}
		}
	}
}

func (r *Resolver) resolvePoints(net *model.Network) {
	for _, p := range net.Points {
		if n, ok := net.NameByNID[p.N1ID]; ok {
			p.Name = n.Name
		} else if p.N1ID != 0 {
			r.dangling("POINTS", fmt.Sprintf("lcd %d references name nid %d", p.LCD, p.N1ID))
		}
		if tc, ok := net.TypeCodes[model.TypeKey{Class: p.Class, TCD: p.TCD, STCD: p.STCD}]; ok {
			p.TypeDesc = tc.Desc
		}
		if p.RoaLCD != 0 {
			if road, ok := net.RoadByLCD[p.RoaLCD]; ok {
				p.Road = road
			} else {
				r.dangling("POINTS", fmt.Sprintf("lcd %d references road lcd %d", p.LCD, p.RoaLCD))
			}
		}
		if p.PolLCD != 0 {
			if area, ok := net.AreaByLCD[p.PolLCD]; ok {
				p.Area = area
			} else {
				r.dangling("POINTS", fmt.Sprintf("lcd %d references area lcd %d", p.LCD, p.PolLCD))
			}
		}
	}
}

func (r *Resolver) resolveIntersections(net *model.Network) {
	for _, x := range net.Intersections {
		if p, ok := net.PointByLCD[x.LCD]; ok {
			x.Point = p
		} else {
			r.dangling("INTERSECTIONS", fmt.Sprintf("lcd %d has no point record", x.LCD))
		}
	}
}
