package canon

import (
	"encoding/json"
	"fmt"
	"time"
)

// InstantJSON is a UTC instant that marshals to and from the canonical
// YYYY-MM-DDTHH:MM:SS.ffffffZ form. Payload structs that carry a
// timestamp field should use this type (or DateJSON, for calendar
// dates) so that JSON serialization for storage and bundle export
// matches the canonicalizer's own output conventions exactly.
type InstantJSON struct{ time.Time }

// NewInstantJSON wraps t, normalizing it to UTC.
func NewInstantJSON(t time.Time) InstantJSON { return InstantJSON{t.UTC()} }

func (i InstantJSON) MarshalJSON() ([]byte, error) {
	u := i.Time.UTC()
	s := fmt.Sprintf("%s.%06dZ", u.Format("2006-01-02T15:04:05"), u.Nanosecond()/1000)
	return json.Marshal(s)
}

func (i *InstantJSON) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	t, err := time.Parse("2006-01-02T15:04:05.000000Z", s)
	if err != nil {
		return fmt.Errorf("%w: instant %q is not a UTC timestamp with microsecond precision (a naive or non-UTC instant is a serialization error): %v", ErrSerialization, s, err)
	}
	i.Time = t.UTC()
	return nil
}

// Canon returns the canon.Value for this instant.
func (i InstantJSON) Canon() Value { return Instant(i.Time) }

// DateJSON is a calendar date that marshals to and from YYYY-MM-DD.
type DateJSON struct{ time.Time }

// NewDateJSON wraps t, discarding its time-of-day and location.
func NewDateJSON(t time.Time) DateJSON {
	return DateJSON{time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)}
}

func (d DateJSON) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Time.Format("2006-01-02"))
}

func (d *DateJSON) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return fmt.Errorf("%w: date %q is not YYYY-MM-DD: %v", ErrSerialization, s, err)
	}
	d.Time = t
	return nil
}

// Canon returns the canon.Value for this date.
func (d DateJSON) Canon() Value { return Date(d.Time) }
