package repo

import (
	"database/sql/driver"
	"fmt"
	"time"
)

// dateLayout keeps all nine fraction digits so text order matches time order.
const dateLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Date stores a time as fixed-width RFC 3339 text, always in UTC.
type Date time.Time

func (d Date) Value() (driver.Value, error) {
	return time.Time(d).UTC().Format(dateLayout), nil
}

func (d *Date) Scan(value any) error {
	switch v := value.(type) {
	case nil:
		*d = Date(time.Time{})
		return nil
	case []byte:
		return d.parse(string(v))
	case string:
		return d.parse(v)
	case time.Time:
		*d = Date(v)
		return nil
	}
	return fmt.Errorf("cannot scan type %T into Date", value)
}

func (d *Date) parse(s string) error {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		t, err = time.Parse("2006-01-02 15:04:05", s)
		if err != nil {
			return err
		}
	}
	*d = Date(t)
	return nil
}

func (d Date) Time() time.Time {
	return time.Time(d)
}
