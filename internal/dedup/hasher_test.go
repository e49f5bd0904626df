package dedup

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFileHash_Stable(t *testing.T) {
	mtime := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

	h1 := FileHash("/data/in/orders.csv", 1024, mtime)
	h2 := FileHash("/data/in/orders.csv", 1024, mtime)

	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 64)
}

func TestFileHash_PathNormalization(t *testing.T) {
	mtime := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

	base := FileHash("/data/in/orders.csv", 1024, mtime)

	tests := []struct {
		name string
		path string
	}{
		{name: "uppercase path", path: "/DATA/IN/Orders.CSV"},
		{name: "backslash separators", path: "\\data\\in\\orders.csv"},
		{name: "mixed", path: "\\Data\\In\\ORDERS.csv"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, base, FileHash(tt.path, 1024, mtime))
		})
	}
}

func TestFileHash_ChangesWithMetadata(t *testing.T) {
	mtime := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	base := FileHash("/data/in/orders.csv", 1024, mtime)

	assert.NotEqual(t, base, FileHash("/data/in/other.csv", 1024, mtime))
	assert.NotEqual(t, base, FileHash("/data/in/orders.csv", 2048, mtime))
	assert.NotEqual(t, base, FileHash("/data/in/orders.csv", 1024, mtime.Add(time.Second)))
}

func TestFileHash_TimezoneInsensitive(t *testing.T) {
	utc := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	offset := utc.In(time.FixedZone("CET", 3600))

	assert.Equal(t,
		FileHash("/data/in/orders.csv", 1024, utc),
		FileHash("/data/in/orders.csv", 1024, offset),
	)
}
