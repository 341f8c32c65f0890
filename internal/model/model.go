// Package model holds the resolved entity graph. Entities are built once by
// the resolver, transformed, loaded, and never mutated afterwards.
package model

import "fmt"

// Key is the composite identifier of a located entity: country, location
// table, location code.
type Key struct {
	CID   int64
	TabCD int64
	LCD   int64
}

func (k Key) String() string {
	return fmt.Sprintf("%d/%d/%d", k.CID, k.TabCD, k.LCD)
}

// TypeCode is one classification entry from TYPES/SUBTYPES. STCD 0 rows come
// from TYPES, the rest from SUBTYPES.
type TypeCode struct {
	Class   string
	TCD     int64
	STCD    int64
	Desc    string
	NatCode string
	NatDesc string
}

// TypeKey identifies a TypeCode.
type TypeKey struct {
	Class string
	TCD   int64
	STCD  int64
}

// Name is one entry of the names table.
type Name struct {
	CID          int64
	LID          int64
	NID          int64
	Name         string
	Comment      string
	OfficialName string
}

// Country is one country row.
type Country struct {
	CID  int64
	ECC  string
	CCD  string
	Name string
}

// AdminArea is an administrative jurisdiction. Parent is nil for top-level
// areas and for dangling hierarchy references.
type AdminArea struct {
	Key
	Class  string
	TCD    int64
	STCD   int64
	NID    int64
	PolLCD int64
	Name   string
	Parent *AdminArea
}

// Road is one administrative road entry.
type Road struct {
	Key
	Class      string
	TCD        int64
	STCD       int64
	RoadNumber string
	RNID       int64
	N1ID       int64
	N2ID       int64
	PolLCD     int64
	Name       string // resolved from N1ID
	TypeDesc   string // resolved from SUBTYPES
	Area       *AdminArea
}

// Point is a reference point. EovX is the northing and EovY the easting of
// the source projected pair; Lon/Lat are derived by the transform.
type Point struct {
	Key
	Class          string
	TCD            int64
	STCD           int64
	JunctionNumber string
	RNID           int64
	N1ID           int64
	N2ID           int64
	PolLCD         int64
	OthLCD         int64
	SegLCD         int64
	RoaLCD         int64
	Urban          bool

	EovX float64 // northing, meters
	EovY float64 // easting, meters
	Lon  float64
	Lat  float64
	// OutOfEnvelope marks a transformed coordinate outside the plausibility
	// envelope. The point is persisted anyway, flagged.
	OutOfEnvelope bool

	Name     string // resolved from N1ID
	TypeDesc string // resolved from SUBTYPES
	Road     *Road  // nil when ROA_LCD dangles
	Area     *AdminArea
}

// Intersection links a point to the other location it crosses.
type Intersection struct {
	Key
	Other Key
	Point *Point // nil when the point reference dangles
}

// Network is the fully resolved entity graph for one dataset.
type Network struct {
	Countries     []*Country
	TypeCodes     map[TypeKey]*TypeCode
	Names         []*Name
	AdminAreas    []*AdminArea
	Roads         []*Road
	Points        []*Point
	Intersections []*Intersection

	// Lookup indexes built by the resolver; keyed on LCD within the single
	// national location table.
	RoadByLCD  map[int64]*Road
	AreaByLCD  map[int64]*AdminArea
	PointByLCD map[int64]*Point
	NameByNID  map[int64]*Name
}
