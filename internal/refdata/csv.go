package refdata

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/resale-estimator/internal/geo"
)

// File names of the shipped reference tables.
const (
	TransitFile   = "MRT.csv"
	BusFile       = "Bus_Stop.csv"
	MallFile      = "Mall.csv"
	PrimaryFile   = "Primary_School.csv"
	SecondaryFile = "Secondary_School.csv"
	RegionFile    = "planning_area.csv"
)

// layout describes the fixed column contract of one point table.
type layout struct {
	file     string
	lat      string
	lon      string
	name     string // optional unless required lists it
	flags    map[string]func(*Entry, bool)
	required []string
}

var layouts = map[Kind]layout{
	KindTransit: {
		file: TransitFile, lat: "Latitude", lon: "Longitude", name: "Name",
		flags: map[string]func(*Entry, bool){
			"MRT_Interchange": func(e *Entry, v bool) { e.MRTInterchange = v },
			"Bus_Interchange": func(e *Entry, v bool) { e.BusInterchange = v },
		},
		required: []string{"Name", "Latitude", "Longitude", "MRT_Interchange", "Bus_Interchange"},
	},
	KindBus:  {file: BusFile, lat: "latitude", lon: "longitude", name: "name", required: []string{"latitude", "longitude"}},
	KindMall: {file: MallFile, lat: "latitude", lon: "longitude", name: "name", required: []string{"latitude", "longitude"}},
	KindPrimary: {
		file: PrimaryFile, lat: "latitude", lon: "longitude", name: "name",
		flags:    schoolFlags,
		required: []string{"latitude", "longitude", "affiliation"},
	},
	KindSecondary: {
		file: SecondaryFile, lat: "latitude", lon: "longitude", name: "name",
		flags:    schoolFlags,
		required: []string{"latitude", "longitude", "affiliation"},
	},
}

var schoolFlags = map[string]func(*Entry, bool){
	"affiliation": func(e *Entry, v bool) { e.Affiliated = v },
	"elite":       func(e *Entry, v bool) { e.Elite = v },
}

// CSVSource reads the reference tables from a directory of CSV files.
type CSVSource struct {
	Dir string
}

// NewCSVSource returns a Source backed by dir.
func NewCSVSource(dir string) *CSVSource {
	return &CSVSource{Dir: dir}
}

// Entries implements Source.
func (s *CSVSource) Entries(ctx context.Context, kind Kind) ([]Entry, error) {
	lay, ok := layouts[kind]
	if !ok {
		return nil, eris.Errorf("refdata: unknown dataset kind %q", kind)
	}

	f, err := os.Open(filepath.Join(s.Dir, lay.file))
	if err != nil {
		return nil, eris.Wrapf(err, "refdata: open %s", lay.file)
	}
	defer f.Close() //nolint:errcheck

	return ParseEntries(ctx, f, kind)
}

// Regions implements Source.
func (s *CSVSource) Regions(ctx context.Context) ([]Region, error) {
	f, err := os.Open(filepath.Join(s.Dir, RegionFile))
	if err != nil {
		return nil, eris.Wrapf(err, "refdata: open %s", RegionFile)
	}
	defer f.Close() //nolint:errcheck

	return ParseRegions(ctx, f)
}

// ParseEntries parses a point table of the given kind.
func ParseEntries(ctx context.Context, r io.Reader, kind Kind) ([]Entry, error) {
	lay, ok := layouts[kind]
	if !ok {
		return nil, eris.Errorf("refdata: unknown dataset kind %q", kind)
	}

	tbl, err := readTable(ctx, r, lay.required)
	if err != nil {
		return nil, eris.Wrapf(err, "refdata: %s", lay.file)
	}

	entries := make([]Entry, 0, len(tbl.rows))
	for i, row := range tbl.rows {
		lat, err := parseFloat(tbl.get(row, lay.lat))
		if err != nil {
			return nil, eris.Wrapf(err, "refdata: %s row %d: %s", lay.file, i+1, lay.lat)
		}
		lon, err := parseFloat(tbl.get(row, lay.lon))
		if err != nil {
			return nil, eris.Wrapf(err, "refdata: %s row %d: %s", lay.file, i+1, lay.lon)
		}
		coord, err := geo.NewCoordinate(lat, lon)
		if err != nil {
			return nil, eris.Wrapf(err, "refdata: %s row %d", lay.file, i+1)
		}

		e := Entry{Name: tbl.get(row, lay.name), Coord: coord}
		for col, set := range lay.flags {
			if !tbl.has(col) {
				continue
			}
			v, err := parseFlag(tbl.get(row, col))
			if err != nil {
				return nil, eris.Wrapf(err, "refdata: %s row %d: %s", lay.file, i+1, col)
			}
			set(&e, v)
		}
		entries = append(entries, e)
	}

	return entries, nil
}

// ParseRegions parses the planning-area table (name + WKT geometry).
func ParseRegions(ctx context.Context, r io.Reader) ([]Region, error) {
	tbl, err := readTable(ctx, r, []string{"name", "geometry"})
	if err != nil {
		return nil, eris.Wrapf(err, "refdata: %s", RegionFile)
	}

	regions := make([]Region, 0, len(tbl.rows))
	for i, row := range tbl.rows {
		name := tbl.get(row, "name")
		g, err := ParseWKT(tbl.get(row, "geometry"))
		if err != nil {
			return nil, eris.Wrapf(err, "refdata: %s row %d (%s)", RegionFile, i+1, name)
		}
		regions = append(regions, Region{Name: name, Geometry: g})
	}
	return regions, nil
}

// table is a parsed CSV with a header index.
type table struct {
	cols map[string]int
	rows [][]string
}

func (t *table) has(col string) bool {
	_, ok := t.cols[col]
	return ok
}

func (t *table) get(row []string, col string) string {
	i, ok := t.cols[col]
	if !ok || i >= len(row) {
		return ""
	}
	return row[i]
}

// readTable reads a headed CSV and checks that every required column exists.
func readTable(ctx context.Context, r io.Reader, required []string) (*table, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, eris.New("missing header row")
	}
	if err != nil {
		return nil, eris.Wrap(err, "read header")
	}

	tbl := &table{cols: make(map[string]int, len(header))}
	for i, h := range header {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if _, dup := tbl.cols[h]; !dup {
			tbl.cols[h] = i
		}
	}
	for _, col := range required {
		if !tbl.has(col) {
			return nil, eris.Errorf("missing required column %q", col)
		}
	}

	for {
		if ctx.Err() != nil {
			return nil, eris.Wrap(ctx.Err(), "context cancelled")
		}
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "read row")
		}
		for i, field := range record {
			record[i] = strings.TrimSpace(field)
		}
		tbl.rows = append(tbl.rows, record)
	}

	return tbl, nil
}

func parseFloat(s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, eris.Wrapf(err, "parse number %q", s)
	}
	return v, nil
}

// parseFlag reads a boolean flag cell. Empty cells are false.
func parseFlag(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "", "0", "0.0", "false", "nan":
		return false, nil
	case "1", "1.0", "true":
		return true, nil
	}
	return false, eris.Errorf("parse flag %q", s)
}
