package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSlug(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "bus101", "bus101"},
		{"uppercase", "Bus 101", "bus_101"},
		{"numeric id", "7", "7"},
		{"punctuation run", "Bus -- #101", "bus_101"},
		{"leading trailing junk", "  Bus 101!  ", "bus_101"},
		{"unicode", "Bús 101", "b_s_101"},
		{"empty", "", ""},
		{"only junk", "!!!", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Slug(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, Slug(got), "slug must be idempotent")
		})
	}
}

func TestValidCoordinates(t *testing.T) {
	assert.True(t, ValidCoordinates(40.7128, -74.006))
	assert.True(t, ValidCoordinates(90, 180), "boundary values are valid")
	assert.True(t, ValidCoordinates(-90, -180))
	assert.False(t, ValidCoordinates(999, 0))
	assert.False(t, ValidCoordinates(0, -180.01))
}

func TestFetchResultFilter(t *testing.T) {
	r := FetchResult{
		"7":       {ID: "7", Name: "Bus 101"},
		"bus_102": {ID: "bus_102", Name: "Bus 102"},
	}

	assert.Equal(t, r, r.Filter(nil))
	assert.Equal(t, r, r.Filter([]string{}))

	got := r.Filter([]string{"7", "missing"})
	assert.Len(t, got, 1)
	assert.Contains(t, got, "7")
}
