package storage

import (
	"fmt"
	"time"

	"fintrack/internal/core"
)

// SQLite hands back TEXT for date and timestamp columns while pgx returns
// time.Time. These scanners accept both.

const timeLayout = time.RFC3339Nano

type dateCol struct{ d *core.Date }

func (c dateCol) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*c.d = core.Date{}
	case time.Time:
		*c.d = core.DateOf(v)
	case string:
		return c.parse(v)
	case []byte:
		return c.parse(string(v))
	default:
		return fmt.Errorf("scan date: unsupported type %T", src)
	}
	return nil
}

func (c dateCol) parse(s string) error {
	if s == "" {
		*c.d = core.Date{}
		return nil
	}
	if len(s) > len(core.DateLayout) {
		s = s[:len(core.DateLayout)]
	}
	d, err := core.ParseDate(s)
	if err != nil {
		return fmt.Errorf("scan date %q: %w", s, err)
	}
	*c.d = d
	return nil
}

type timeCol struct{ t *time.Time }

func (c timeCol) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*c.t = time.Time{}
	case time.Time:
		*c.t = v.UTC()
	case string:
		return c.parse(v)
	case []byte:
		return c.parse(string(v))
	default:
		return fmt.Errorf("scan time: unsupported type %T", src)
	}
	return nil
}

func (c timeCol) parse(s string) error {
	if s == "" {
		*c.t = time.Time{}
		return nil
	}
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return fmt.Errorf("scan time %q: %w", s, err)
	}
	*c.t = t.UTC()
	return nil
}

// optTimeCol scans a nullable timestamp into a *time.Time.
type optTimeCol struct{ t **time.Time }

func (c optTimeCol) Scan(src any) error {
	var t time.Time
	if err := (timeCol{&t}).Scan(src); err != nil {
		return err
	}
	if t.IsZero() {
		*c.t = nil
	} else {
		*c.t = &t
	}
	return nil
}

func dateArg(d core.Date) any {
	if d.IsEmpty() {
		return nil
	}
	return d.String()
}

func timeArg(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func optTimeArg(t *time.Time) any {
	if t == nil {
		return nil
	}
	return timeArg(*t)
}
