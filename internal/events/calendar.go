package events

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const dateLayout = "2006-01-02"

// Event is a local happening that draws crowds near a location, e.g. a stadium match or a fair.
type Event struct {
	Name     string
	Location string
	Start    time.Time
	End      time.Time
}

type fileEvent struct {
	Name     string `yaml:"name"`
	Location string `yaml:"location"`
	Start    string `yaml:"start"`
	End      string `yaml:"end"`
}

type calendarFile struct {
	Events []fileEvent `yaml:"events"`
}

// Calendar answers whether anything is scheduled near a location on a given day.
type Calendar struct {
	events []Event
}

func NewCalendar(events []Event) *Calendar {
	return &Calendar{events: events}
}

func LoadFile(path string) (*Calendar, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading event calendar: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Calendar, error) {
	var file calendarFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decoding event calendar: %w", err)
	}

	events := make([]Event, 0, len(file.Events))
	for i, fe := range file.Events {
		if strings.TrimSpace(fe.Location) == "" {
			return nil, fmt.Errorf("event %d (%s): missing location", i, fe.Name)
		}
		start, err := time.Parse(dateLayout, fe.Start)
		if err != nil {
			return nil, fmt.Errorf("event %d (%s): start: %w", i, fe.Name, err)
		}
		end := start
		if fe.End != "" {
			if end, err = time.Parse(dateLayout, fe.End); err != nil {
				return nil, fmt.Errorf("event %d (%s): end: %w", i, fe.Name, err)
			}
		}
		if end.Before(start) {
			return nil, fmt.Errorf("event %d (%s): ends before it starts", i, fe.Name)
		}
		events = append(events, Event{Name: fe.Name, Location: fe.Location, Start: start, End: end})
	}
	return &Calendar{events: events}, nil
}

func (c *Calendar) Len() int { return len(c.events) }

// HasEvents matches locations case-insensitively in either direction, so "Stadion Narodowy" matches an
// event at "Narodowy". Dates compare by calendar day in the date's own zone.
func (c *Calendar) HasEvents(_ context.Context, location string, date time.Time) (bool, error) {
	loc := strings.ToLower(strings.TrimSpace(location))
	if loc == "" {
		return false, nil
	}
	day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)

	for _, e := range c.events {
		if day.Before(e.Start) || day.After(e.End) {
			continue
		}
		el := strings.ToLower(e.Location)
		if strings.Contains(loc, el) || strings.Contains(el, loc) {
			return true, nil
		}
	}
	return false, nil
}
