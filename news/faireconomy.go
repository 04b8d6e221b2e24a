package news

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"
)

// DefaultCalendarURL is the weekly high-impact feed published by
// FairEconomy (the Forex Factory calendar mirror).
const DefaultCalendarURL = "https://nfs.faireconomy.media/ff_calendar_thisweek.json"

// FairEconomy reads the weekly JSON calendar feed.
type FairEconomy struct {
	url    string
	client *http.Client
}

func NewFairEconomy(url string, timeout time.Duration) *FairEconomy {
	if url == "" {
		url = DefaultCalendarURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &FairEconomy{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

type feedEntry struct {
	Title   string `json:"title"`
	Country string `json:"country"`
	Date    string `json:"date"`
	Impact  string `json:"impact"`
}

func (c *FairEconomy) NextHighImpact(ctx context.Context, currencies []string, after time.Time) (*Event, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("build calendar request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch calendar: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("calendar returned %s", resp.Status)
	}

	var entries []feedEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, fmt.Errorf("decode calendar: %w", err)
	}

	events := filterHighImpact(entries, currencies, after)
	if len(events) == 0 {
		return nil, nil
	}
	return &events[0], nil
}

// filterHighImpact keeps future high-impact events for the watched
// currencies, soonest first. Rows with unparseable dates are dropped.
func filterHighImpact(entries []feedEntry, currencies []string, after time.Time) []Event {
	watch := make(map[string]bool, len(currencies))
	for _, c := range currencies {
		watch[strings.ToUpper(c)] = true
	}

	var out []Event
	for _, e := range entries {
		if !strings.EqualFold(e.Impact, "High") {
			continue
		}
		if len(watch) > 0 && !watch[strings.ToUpper(e.Country)] {
			continue
		}
		t, err := time.Parse(time.RFC3339, e.Date)
		if err != nil {
			continue
		}
		if !t.After(after) {
			continue
		}
		out = append(out, Event{
			Time:     t.UTC(),
			Currency: strings.ToUpper(e.Country),
			Title:    e.Title,
			Impact:   "High",
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out
}
