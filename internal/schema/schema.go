// Package schema declares the field layout of every source file category in
// the location-table exchange set. The registry is pure data: no I/O, no
// per-row logic. The parser resolves columns by the names declared here,
// never by remembered positions.
package schema

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
)

// Kind is the semantic type of a column.
type Kind int

const (
	// KindID is an integer identifier (part of a record's key).
	KindID Kind = iota
	// KindRef is an integer foreign key into another file category.
	KindRef
	// KindCode is a small integer classification code.
	KindCode
	// KindCoord is a projected coordinate in meters, optionally prefixed
	// with an explicit sign ("+0650000").
	KindCoord
	// KindFlag is a 0/1 integer.
	KindFlag
	// KindText is free text.
	KindText
)

func (k Kind) String() string {
	switch k {
	case KindID:
		return "id"
	case KindRef:
		return "ref"
	case KindCode:
		return "code"
	case KindCoord:
		return "coord"
	case KindFlag:
		return "flag"
	case KindText:
		return "text"
	}
	return "unknown"
}

// Field describes one column of a file category.
type Field struct {
	Name     string
	Kind     Kind
	Required bool
}

// FileSchema is the declared layout of one file category.
type FileSchema struct {
	// Category is the canonical category name, e.g. "POINTS".
	Category string
	// Fields in declared order.
	Fields []Field
	// Core marks the categories the pipeline materializes into entities.
	// Non-core categories are parsed and counted only.
	Core bool
}

// Field returns the declared field with the given name, or false.
func (s FileSchema) Field(name string) (Field, bool) {
	for _, f := range s.Fields {
		if strings.EqualFold(f.Name, name) {
			return f, true
		}
	}
	return Field{}, false
}

// UnknownFileError reports a file or category not present in the registry.
// It is a structural defect and aborts the run.
type UnknownFileError struct {
	Name string
}

func (e *UnknownFileError) Error() string {
	return fmt.Sprintf("unknown file category: %s", e.Name)
}

func id(name string) Field    { return Field{Name: name, Kind: KindID, Required: true} }
func ref(name string) Field   { return Field{Name: name, Kind: KindRef} }
func code(name string) Field  { return Field{Name: name, Kind: KindCode} }
func coord(name string) Field { return Field{Name: name, Kind: KindCoord, Required: true} }
func flag(name string) Field  { return Field{Name: name, Kind: KindFlag} }
func text(name string) Field  { return Field{Name: name, Kind: KindText} }
func req(f Field) Field       { f.Required = true; return f }

// registry holds every file category of the exchange set. Keys are canonical
// upper-case category names; the matching file on disk is "<CATEGORY>.DAT".
var registry = map[string]FileSchema{
	"COUNTRIES": {Category: "COUNTRIES", Core: true, Fields: []Field{
		id("CID"), text("ECC"), text("CCD"), text("CNAME"),
	}},
	"LANGUAGES": {Category: "LANGUAGES", Fields: []Field{
		id("CID"), id("LID"), text("LANGUAGE"),
	}},
	"CLASSES": {Category: "CLASSES", Fields: []Field{
		id("CID"), req(text("CLASS")), text("CDESC"),
	}},
	"TYPES": {Category: "TYPES", Core: true, Fields: []Field{
		req(text("CLASS")), req(code("TCD")), req(text("TDESC")), text("TNATCD"), text("TNATDESC"),
	}},
	"SUBTYPES": {Category: "SUBTYPES", Core: true, Fields: []Field{
		req(text("CLASS")), req(code("TCD")), req(code("STCD")), req(text("SDESC")), text("SNATCODE"), text("SNATDESC"),
	}},
	"SUBDIVISIONTYPES": {Category: "SUBDIVISIONTYPES", Fields: []Field{
		id("CID"), id("LID"), text("SDTCD"), text("SDTDESC"),
	}},
	"LOCATIONDATASETS": {Category: "LOCATIONDATASETS", Fields: []Field{
		id("CID"), id("TABCD"), text("DCOMMENT"), text("VERSION"), text("VERSIONDESCRIPTION"),
	}},
	"LOCATIONCODES": {Category: "LOCATIONCODES", Fields: []Field{
		id("CID"), id("TABCD"), id("LCD"), req(text("CLASS")), req(code("TCD")), code("STCD"),
	}},
	"NAMES": {Category: "NAMES", Core: true, Fields: []Field{
		id("CID"), id("LID"), id("NID"), req(text("NAME")), text("NCOMMENT"), text("OFFICIALNAME"),
	}},
	"NAMETRANSLATIONS": {Category: "NAMETRANSLATIONS", Fields: []Field{
		id("CID"), id("LID"), id("NID"), ref("TLID"), ref("TNID"),
	}},
	"EUROROADNO": {Category: "EUROROADNO", Fields: []Field{
		id("ERNO"),
	}},
	"ERNO_BELONGS_TO_CO": {Category: "ERNO_BELONGS_TO_CO", Fields: []Field{
		id("ERNO"), id("CID"),
	}},
	"ADMINISTRATIVEAREA": {Category: "ADMINISTRATIVEAREA", Core: true, Fields: []Field{
		id("CID"), id("TABCD"), id("LCD"), req(text("CLASS")), req(code("TCD")), code("STCD"),
		ref("NID"), ref("POL_LCD"),
	}},
	"OTHERAREAS": {Category: "OTHERAREAS", Fields: []Field{
		id("CID"), id("TABCD"), id("LCD"), req(text("CLASS")), req(code("TCD")), code("STCD"),
		ref("NID"), ref("POL_LCD"),
	}},
	"ROADS": {Category: "ROADS", Core: true, Fields: []Field{
		id("CID"), id("TABCD"), id("LCD"), req(text("CLASS")), req(code("TCD")), code("STCD"),
		text("ROADNUMBER"), ref("RNID"), ref("N1ID"), ref("N2ID"), ref("POL_LCD"),
		text("PES_LEV"), text("RDID"),
	}},
	"ROAD_NETWORK_LEVEL_TYPES": {Category: "ROAD_NETWORK_LEVEL_TYPES", Fields: []Field{
		id("CID"), id("TABCD"), code("RNLT_CD"), text("RNLT_DESC"),
	}},
	"SEGMENTS": {Category: "SEGMENTS", Fields: []Field{
		id("CID"), id("TABCD"), id("LCD"), req(text("CLASS")), req(code("TCD")), code("STCD"),
		text("ROADNUMBER"), ref("RNID"), ref("N1ID"), ref("N2ID"), ref("ROA_LCD"), ref("POL_LCD"),
		text("RDID"),
	}},
	"SOFFSETS": {Category: "SOFFSETS", Fields: []Field{
		id("CID"), id("TABCD"), id("LCD"), ref("NEG_OFF_LCD"), ref("POS_OFF_LCD"),
	}},
	"SEG_HAS_SEG": {Category: "SEG_HAS_SEG", Fields: []Field{
		id("CID"), id("TABCD"), id("LCD"), id("SEG_CID"), id("SEG_TABCD"), id("SEG_LCD"),
	}},
	"POINTS": {Category: "POINTS", Core: true, Fields: []Field{
		id("CID"), id("TABCD"), id("LCD"), req(text("CLASS")), req(code("TCD")), code("STCD"),
		text("JUNCTIONNUMBER"), ref("RNID"), ref("N1ID"), ref("N2ID"), ref("POL_LCD"),
		ref("OTH_LCD"), ref("SEG_LCD"), ref("ROA_LCD"),
		flag("INPOS"), flag("INNEG"), flag("OUTPOS"), flag("OUTNEG"),
		flag("PRESENTPOS"), flag("PRESENTNEG"), text("DIVERSIONPOS"), text("DIVERSIONNEG"),
		coord("XCOORD"), coord("YCOORD"), text("INTERRUPTSROAD"), flag("URBAN"), text("JNID"),
	}},
	"POFFSETS": {Category: "POFFSETS", Fields: []Field{
		id("CID"), id("TABCD"), id("LCD"), ref("NEG_OFF_LCD"), ref("POS_OFF_LCD"),
	}},
	"INTERSECTIONS": {Category: "INTERSECTIONS", Core: true, Fields: []Field{
		id("CID"), id("TABCD"), id("LCD"), id("INT_CID"), id("INT_TABCD"), id("INT_LCD"),
	}},
	"POI": {Category: "POI", Fields: []Field{
		id("CID"), id("TABCD"), id("LCD"), req(text("CLASS")), req(code("TCD")), code("STCD"),
		ref("NID"), ref("POL_LCD"), coord("XCOORD"), coord("YCOORD"),
	}},
}

// FieldsFor returns the declared schema for a category name such as "POINTS".
func FieldsFor(category string) (FileSchema, error) {
	s, ok := registry[strings.ToUpper(category)]
	if !ok {
		return FileSchema{}, &UnknownFileError{Name: category}
	}
	return s, nil
}

// ForFilename resolves a file name such as "points.dat" or a full path to its
// schema. The extension must be .DAT (case-insensitive).
func ForFilename(name string) (FileSchema, error) {
	base := filepath.Base(name)
	ext := filepath.Ext(base)
	if !strings.EqualFold(ext, ".dat") {
		return FileSchema{}, &UnknownFileError{Name: base}
	}
	return FieldsFor(strings.TrimSuffix(base, ext))
}

// Categories returns all registered category names, sorted.
func Categories() []string {
	out := make([]string, 0, len(registry))
	for name := range registry {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Filename returns the conventional file name for a category.
func Filename(category string) string {
	return strings.ToUpper(category) + ".DAT"
}
