package fetch

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, payload string) any {
	t.Helper()
	var raw any
	require.NoError(t, json.Unmarshal([]byte(payload), &raw))
	return raw
}

func TestNormalizeNestedPayload(t *testing.T) {
	raw := decode(t, `{"MotusObject":{"Points":[
		{"IdAsset":7,"VehicleDescription":"Bus 101","Latitude":40.7128,"Longitude":-74.006,"Speed":25}
	]}}`)

	result := Normalize(raw, "api")
	require.Len(t, result, 1)

	rec, ok := result["7"]
	require.True(t, ok)
	assert.Equal(t, "7", rec.ID)
	assert.Equal(t, "Bus 101", rec.Name)
	assert.Equal(t, 40.7128, rec.Latitude)
	assert.Equal(t, -74.006, rec.Longitude)
	require.NotNil(t, rec.Speed)
	assert.Equal(t, 25.0, *rec.Speed)
	assert.Equal(t, "api", rec.Source)
}

func TestNormalizeDropsInvalidCoordinates(t *testing.T) {
	raw := decode(t, `{"MotusObject":{"Points":[
		{"IdAsset":1,"VehicleDescription":"Bad","Latitude":999,"Longitude":-74.006},
		{"IdAsset":2,"VehicleDescription":"Edge","Latitude":90,"Longitude":-180},
		{"IdAsset":3,"VehicleDescription":"NoCoords"}
	]}}`)

	result := Normalize(raw, "api")
	require.Len(t, result, 1)
	assert.Contains(t, result, "2")
}

func TestNormalizeAlternateKeySpellings(t *testing.T) {
	raw := decode(t, `{"devices":[
		{"DeviceId":"VAN-12","Name":"Van  12","lat":"51.5","lon":"-0.12","speed":"33.5","Course":270,"Battery":87}
	]}`)

	result := Normalize(raw, "page")
	require.Len(t, result, 1)

	rec := result["van_12"]
	assert.Equal(t, "van_12", rec.ID)
	assert.Equal(t, "Van  12", rec.Name)
	assert.Equal(t, 51.5, rec.Latitude)
	assert.Equal(t, -0.12, rec.Longitude)
	require.NotNil(t, rec.Speed)
	assert.Equal(t, 33.5, *rec.Speed)
	require.NotNil(t, rec.Heading)
	assert.Equal(t, 270.0, *rec.Heading)
	assert.Equal(t, float64(87), rec.Extras["Battery"])
}

func TestNormalizeTopLevelArray(t *testing.T) {
	raw := decode(t, `[{"id":"a","name":"A","latitude":1,"longitude":2}]`)
	result := Normalize(raw, "api")
	require.Len(t, result, 1)
	assert.Equal(t, "A", result["a"].Name)
}

func TestNormalizeSlugCollisionLastWins(t *testing.T) {
	raw := decode(t, `[
		{"Name":"Bus #9","Latitude":1,"Longitude":1},
		{"Name":"Bus  9","Latitude":2,"Longitude":2}
	]`)

	result := Normalize(raw, "api")
	require.Len(t, result, 1)
	assert.Equal(t, 2.0, result["bus_9"].Latitude)
}

func TestNormalizeNameOnlyAndIdOnly(t *testing.T) {
	raw := decode(t, `[
		{"Name":"Truck One","Latitude":1,"Longitude":1},
		{"id":"t2","Latitude":2,"Longitude":2}
	]`)

	result := Normalize(raw, "api")
	require.Len(t, result, 2)
	assert.Equal(t, "truck_one", result["truck_one"].ID)
	assert.Equal(t, "t2", result["t2"].Name)
}

func TestParseWhen(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want time.Time
	}{
		{"rfc3339", "2026-01-15T10:30:00Z", time.Date(2026, 1, 15, 10, 30, 0, 0, time.UTC)},
		{"sql datetime", "2026-01-15 10:30:00", time.Date(2026, 1, 15, 10, 30, 0, 0, time.UTC)},
		{"dotnet date", "/Date(1700000000000)/", time.UnixMilli(1700000000000).UTC()},
		{"epoch seconds", float64(1700000000), time.Unix(1700000000, 0).UTC()},
		{"epoch millis", float64(1700000000000), time.UnixMilli(1700000000000).UTC()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseWhen(tt.in)
			require.NotNil(t, got)
			assert.True(t, tt.want.Equal(*got), "got %v want %v", got, tt.want)
		})
	}

	assert.Nil(t, parseWhen("not a date"))
	assert.Nil(t, parseWhen(float64(42)))
}
