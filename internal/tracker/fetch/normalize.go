package fetch

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/fleetlink-io/fleetlink/internal/tracker/core"
)

// Key spellings seen across portal skins and firmware generations, in
// lookup order. The first key present on an item wins.
var (
	containerKeys = []string{
		"MotusObject", "Points", "points",
		"vehicles", "Vehicles", "positions", "Positions",
		"devices", "Devices", "units", "Units",
		"data", "Data", "items", "results", "rows",
	}
	idKeys      = []string{"IdAsset", "AssetId", "DeviceId", "DeviceID", "UnitId", "Id", "ID", "id", "IMEI", "imei"}
	nameKeys    = []string{"VehicleDescription", "DeviceName", "VehicleName", "AssetName", "Name", "name", "Label", "label", "Description"}
	latKeys     = []string{"Latitude", "latitude", "Lat", "lat"}
	lngKeys     = []string{"Longitude", "longitude", "Lng", "lng", "Lon", "lon", "Long"}
	speedKeys   = []string{"Speed", "speed", "SpeedKmh", "Velocity"}
	headingKeys = []string{"Heading", "heading", "Course", "course", "Direction", "Bearing"}
	timeKeys    = []string{"LastUpdate", "lastUpdate", "Timestamp", "timestamp", "DateTime", "GpsTime", "FixTime", "EventTime", "Date"}
)

// consumedKeys is everything claimed by a named VehicleRecord field;
// whatever an item carries beyond these lands in Extras.
var consumedKeys = func() map[string]struct{} {
	set := map[string]struct{}{}
	for _, keys := range [][]string{idKeys, nameKeys, latKeys, lngKeys, speedKeys, headingKeys, timeKeys} {
		for _, k := range keys {
			set[k] = struct{}{}
		}
	}
	return set
}()

// Normalize turns one decoded JSON payload of any known shape into a
// FetchResult. Items without usable coordinates are dropped; id slug
// collisions resolve last-wins.
func Normalize(raw any, source string) core.FetchResult {
	out := core.FetchResult{}
	for _, item := range collectItems(raw, 0) {
		fields, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if rec, ok := normalizeItem(fields, source); ok {
			out[rec.ID] = rec
		}
	}
	return out
}

// collectItems digs the record array out of the payload: a top-level
// array is taken as-is, an object is probed under the known container
// keys, recursing through nested wrappers like MotusObject.Points.
func collectItems(raw any, depth int) []any {
	if depth > 4 {
		return nil
	}
	switch v := raw.(type) {
	case []any:
		return v
	case map[string]any:
		for _, key := range containerKeys {
			inner, ok := v[key]
			if !ok {
				continue
			}
			if items := collectItems(inner, depth+1); len(items) > 0 {
				return items
			}
		}
	}
	return nil
}

func normalizeItem(fields map[string]any, source string) (core.VehicleRecord, bool) {
	lat, latOK := lookupFloat(fields, latKeys)
	lng, lngOK := lookupFloat(fields, lngKeys)
	if !latOK || !lngOK || !core.ValidCoordinates(lat, lng) {
		return core.VehicleRecord{}, false
	}

	id, _ := lookupString(fields, idKeys)
	name, _ := lookupString(fields, nameKeys)
	switch {
	case id == "" && name == "":
		return core.VehicleRecord{}, false
	case id == "":
		id = name
	case name == "":
		name = id
	}

	rec := core.VehicleRecord{
		ID:        core.Slug(id),
		Name:      name,
		Latitude:  lat,
		Longitude: lng,
		Source:    source,
	}

	if speed, ok := lookupFloat(fields, speedKeys); ok {
		rec.Speed = &speed
	}
	if heading, ok := lookupFloat(fields, headingKeys); ok {
		rec.Heading = &heading
	}
	if raw, _, ok := lookup(fields, timeKeys); ok {
		if when := parseWhen(raw); when != nil {
			rec.LastUpdate = when
		}
	}

	for key, value := range fields {
		if _, claimed := consumedKeys[key]; claimed || value == nil {
			continue
		}
		if rec.Extras == nil {
			rec.Extras = map[string]any{}
		}
		rec.Extras[key] = value
	}

	return rec, true
}

func lookup(fields map[string]any, keys []string) (any, string, bool) {
	for _, key := range keys {
		if value, ok := fields[key]; ok && value != nil {
			return value, key, true
		}
	}
	return nil, "", false
}

func lookupFloat(fields map[string]any, keys []string) (float64, bool) {
	raw, _, ok := lookup(fields, keys)
	if !ok {
		return 0, false
	}
	return asFloat(raw)
}

func lookupString(fields map[string]any, keys []string) (string, bool) {
	raw, _, ok := lookup(fields, keys)
	if !ok {
		return "", false
	}
	return asString(raw), true
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	case int:
		return float64(n), true
	}
	return 0, false
}

func asString(v any) string {
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s)
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case json.Number:
		return s.String()
	default:
		return fmt.Sprintf("%v", s)
	}
}

// dotNetDate matches the legacy ASP.NET wire format /Date(1700000000000)/.
var dotNetDate = regexp.MustCompile(`^/Date\((\d+)([+-]\d{4})?\)/$`)

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"01/02/2006 15:04:05",
}

// parseWhen interprets the timestamp spellings the portal has been seen
// emitting. Unparseable values are ignored rather than failing the record.
func parseWhen(v any) *time.Time {
	switch t := v.(type) {
	case string:
		s := strings.TrimSpace(t)
		if m := dotNetDate.FindStringSubmatch(s); m != nil {
			ms, err := strconv.ParseInt(m[1], 10, 64)
			if err != nil {
				return nil
			}
			when := time.UnixMilli(ms).UTC()
			return &when
		}
		for _, layout := range timeLayouts {
			if when, err := time.Parse(layout, s); err == nil {
				return &when
			}
		}
	case float64:
		// Heuristic: epoch milliseconds are 13 digits, seconds 10.
		if t > 1e12 {
			when := time.UnixMilli(int64(t)).UTC()
			return &when
		}
		if t > 1e9 {
			when := time.Unix(int64(t), 0).UTC()
			return &when
		}
	}
	return nil
}
