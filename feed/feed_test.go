package feed

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"propengine/market"
)

func TestParseBarRow(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		row     []string
		wantOk  bool
		wantErr bool
		check   func(t *testing.T, c market.Candle)
	}{
		{
			name:   "valid rfc3339 row",
			row:    []string{"2025-06-02T09:00:00Z", "1.1000", "1.1020", "1.0990", "1.1010", "1234"},
			wantOk: true,
			check: func(t *testing.T, c market.Candle) {
				assert.Equal(t, 1.1000, c.Open)
				assert.Equal(t, 1.1020, c.High)
				assert.Equal(t, 1.0990, c.Low)
				assert.Equal(t, 1.1010, c.Close)
				assert.Equal(t, 1234.0, c.Volume)
			},
		},
		{
			name:   "valid space-separated timestamp",
			row:    []string{"2025-06-02 09:00:00", "1.1", "1.2", "1.0", "1.15"},
			wantOk: true,
			check: func(t *testing.T, c market.Candle) {
				assert.Equal(t, 9, c.Time.UTC().Hour())
			},
		},
		{
			name:   "whitespace tolerated",
			row:    []string{" 2025-06-02T09:00:00Z ", " 1.1 ", " 1.2 ", " 1.0 ", " 1.15 "},
			wantOk: true,
		},
		{
			name:   "short row skipped",
			row:    []string{"2025-06-02T09:00:00Z", "1.1", "1.2"},
			wantOk: false,
		},
		{
			name:    "bad price errors",
			row:     []string{"2025-06-02T09:00:00Z", "1.1", "oops", "1.0", "1.15"},
			wantErr: true,
		},
		{
			name:    "bad time errors",
			row:     []string{"yesterday", "1.1", "1.2", "1.0", "1.15"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c, ok, err := parseBarRow(tt.row)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.wantOk, ok)
			if tt.check != nil {
				tt.check(t, c)
			}
		})
	}
}

func TestCSVCandleFeed(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "bars.csv")
	data := "time,open,high,low,close,volume\n" +
		"2025-06-02T09:00:00Z,1.1000,1.1020,1.0990,1.1010,100\n" +
		"\n" +
		"2025-06-02T10:00:00Z,1.1010,1.1030,1.1000,1.1025,120\n" +
		"2025-06-02T11:00:00Z,1.1025,1.1040,1.1010,1.1035,90\n"
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	t.Run("reads all bars past the header", func(t *testing.T) {
		t.Parallel()
		f, err := NewCSVCandleFeed(path, time.Time{}, time.Time{})
		require.NoError(t, err)
		defer f.Close()

		var bars []market.Candle
		for {
			c, ok, err := f.Next()
			require.NoError(t, err)
			if !ok {
				break
			}
			bars = append(bars, c)
		}
		require.Len(t, bars, 3)
		assert.Equal(t, 1.1010, bars[0].Close)
		assert.True(t, bars[2].Time.After(bars[0].Time))
	})

	t.Run("honors the time window", func(t *testing.T) {
		t.Parallel()
		from := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)
		to := time.Date(2025, 6, 2, 11, 0, 0, 0, time.UTC)
		f, err := NewCSVCandleFeed(path, from, to)
		require.NoError(t, err)
		defer f.Close()

		c, ok, err := f.Next()
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, 10, c.Time.Hour())

		_, ok, err = f.Next()
		require.NoError(t, err)
		assert.False(t, ok, "bar at the exclusive upper bound is filtered")
	})

	t.Run("missing file", func(t *testing.T) {
		t.Parallel()
		_, err := NewCSVCandleFeed(filepath.Join(dir, "nope.csv"), time.Time{}, time.Time{})
		assert.Error(t, err)
	})
}

func TestStaticFeed(t *testing.T) {
	t.Parallel()

	bars := []market.Candle{
		{Time: time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC), Close: 1.1},
		{Time: time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC), Close: 1.2},
	}
	s := NewStatic(bars)

	c, ok, err := s.Next()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1.1, c.Close)

	_, ok, _ = s.Next()
	require.True(t, ok)

	_, ok, _ = s.Next()
	assert.False(t, ok)
	assert.NoError(t, s.Close())
}
