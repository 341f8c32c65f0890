package store

// BBox is a viewport rectangle in WGS84 degrees, boundaries inclusive.
type BBox struct {
	West  float64
	South float64
	East  float64
	North float64
}

// Contains reports whether the coordinate lies inside the box.
func (b BBox) Contains(lon, lat float64) bool {
	return lon >= b.West && lon <= b.East && lat >= b.South && lat <= b.North
}

// PointFeature is one point row as served to the query layer.
type PointFeature struct {
	LCD            int64   `json:"lcd"`
	Lon            float64 `json:"lon"`
	Lat            float64 `json:"lat"`
	TCD            int64   `json:"tcd"`
	STCD           int64   `json:"stcd"`
	PointType      string  `json:"point_type,omitempty"`
	Name           string  `json:"name,omitempty"`
	JunctionNumber string  `json:"junction_number,omitempty"`
	Urban          bool    `json:"urban"`
	RoadLCD        int64   `json:"road_lcd,omitempty"`
	RangeFlagged   bool    `json:"range_flagged,omitempty"`
}

// RoadFeature is one road row with the extent of its points in the viewport.
type RoadFeature struct {
	LCD        int64   `json:"lcd"`
	RoadNumber string  `json:"roadnumber,omitempty"`
	Class      string  `json:"class"`
	TCD        int64   `json:"tcd"`
	STCD       int64   `json:"stcd"`
	RoadType   string  `json:"road_type,omitempty"`
	StartName  string  `json:"start_name,omitempty"`
	StartLon   float64 `json:"start_lon"`
	StartLat   float64 `json:"start_lat"`
	EndLon     float64 `json:"end_lon"`
	EndLat     float64 `json:"end_lat"`
}

// SearchResult is one hit of the name search.
type SearchResult struct {
	NID          int64   `json:"nid"`
	Name         string  `json:"name"`
	OfficialName string  `json:"officialname,omitempty"`
	Lon          float64 `json:"lon"`
	Lat          float64 `json:"lat"`
	Type         string  `json:"type,omitempty"`
}

// TypeCount is one entry of the per-type breakdown.
type TypeCount struct {
	Type  string `json:"type"`
	Count int64  `json:"count"`
}

// Statistics is the persisted aggregate snapshot. It is a cache computed at
// load time, not a source of truth.
type Statistics struct {
	TotalRoads         int64       `json:"total_roads"`
	TotalPoints        int64       `json:"total_points"`
	TotalIntersections int64       `json:"total_intersections"`
	TotalAdminAreas    int64       `json:"total_admin_areas"`
	TotalNames         int64       `json:"total_names"`
	RangeFlagged       int64       `json:"range_flagged"`
	RoadTypes          []TypeCount `json:"road_types"`
	PointTypes         []TypeCount `json:"point_types"`
	BBox               BBox        `json:"bbox"`
	CenterLon          float64     `json:"center_lon"`
	CenterLat          float64     `json:"center_lat"`
}

// Motorway is one motorway with its segment count.
type Motorway struct {
	Road     string `json:"road"`
	Segments int64  `json:"segments"`
}

// RoadDetail is the full record of a single road.
type RoadDetail struct {
	LCD        int64  `json:"lcd"`
	RoadNumber string `json:"roadnumber,omitempty"`
	Class      string `json:"class"`
	TCD        int64  `json:"tcd"`
	STCD       int64  `json:"stcd"`
	RoadType   string `json:"road_type,omitempty"`
	StartName  string `json:"start_name,omitempty"`
	EndName    string `json:"end_name,omitempty"`
	AreaName   string `json:"area_name,omitempty"`
	PointCount int64  `json:"point_count"`
}
