package feed

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"propengine/market"
)

// CSVCandleFeed reads canonical bar CSV rows:
//
//	time,open,high,low,close[,volume]
//
// where time is RFC3339 or "2006-01-02 15:04:05" (UTC assumed).
// It optionally filters bars to [From, To). A header row is allowed,
// and empty/short rows are skipped.
type CSVCandleFeed struct {
	f    *os.File
	r    *csv.Reader
	from time.Time
	to   time.Time

	sawFirst bool
}

func NewCSVCandleFeed(path string, from, to time.Time) (*CSVCandleFeed, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	return &CSVCandleFeed{f: f, r: r, from: from, to: to}, nil
}

func (f *CSVCandleFeed) Close() error {
	if f.f != nil {
		return f.f.Close()
	}
	return nil
}

func (f *CSVCandleFeed) Next() (market.Candle, bool, error) {
	for {
		row, err := f.r.Read()
		if err == io.EOF {
			return market.Candle{}, false, nil
		}
		if err != nil {
			return market.Candle{}, false, err
		}
		if len(row) == 0 {
			continue
		}

		// Allow a single header row.
		if !f.sawFirst {
			f.sawFirst = true
			if strings.EqualFold(strings.TrimSpace(row[0]), "time") {
				continue
			}
		}

		c, ok, err := parseBarRow(row)
		if err != nil {
			return market.Candle{}, false, err
		}
		if !ok {
			continue
		}
		if !inRange(c.Time, f.from, f.to) {
			continue
		}
		return c, true, nil
	}
}

func parseBarRow(row []string) (market.Candle, bool, error) {
	// Need at least: time,open,high,low,close
	if len(row) < 5 {
		return market.Candle{}, false, nil
	}

	ts := strings.TrimSpace(row[0])
	if ts == "" {
		return market.Candle{}, false, nil
	}
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		t2, err2 := time.Parse("2006-01-02 15:04:05", ts)
		if err2 != nil {
			return market.Candle{}, false, fmt.Errorf("bad time %q: %w", ts, err)
		}
		t = t2.UTC()
	}

	vals := make([]float64, 4)
	for i := 0; i < 4; i++ {
		v, err := strconv.ParseFloat(strings.TrimSpace(row[i+1]), 64)
		if err != nil {
			return market.Candle{}, false, fmt.Errorf("bad price %q: %w", row[i+1], err)
		}
		vals[i] = v
	}

	c := market.Candle{Time: t, Open: vals[0], High: vals[1], Low: vals[2], Close: vals[3]}
	if len(row) > 5 {
		if v, err := strconv.ParseFloat(strings.TrimSpace(row[5]), 64); err == nil {
			c.Volume = v
		}
	}
	return c, true, nil
}

func inRange(t, from, to time.Time) bool {
	if !from.IsZero() && t.Before(from) {
		return false
	}
	if !to.IsZero() && !t.Before(to) {
		return false
	}
	return true
}
