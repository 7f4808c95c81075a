package models

import (
	"database/sql/driver"
	"strings"

	"github.com/lib/pq"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// Labels is a list of category labels (industries, job types).
// On Postgres it maps to a native text[] column; other dialects store the
// array literal as text.
type Labels []string

// Value implements driver.Valuer.
func (l Labels) Value() (driver.Value, error) {
	return pq.StringArray(l).Value()
}

// Scan implements sql.Scanner.
func (l *Labels) Scan(src any) error {
	var arr pq.StringArray
	if err := arr.Scan(src); err != nil {
		return err
	}
	*l = Labels(arr)
	return nil
}

// GormDataType implements schema.GormDataTypeInterface.
func (Labels) GormDataType() string { return "labels" }

// GormDBDataType implements migrator.GormDBDataTypeInterface.
func (Labels) GormDBDataType(db *gorm.DB, _ *schema.Field) string {
	if db.Dialector.Name() == "postgres" {
		return "text[]"
	}
	return "text"
}

// Count adds the occurrences of each label to into.
func (l Labels) Count(into map[string]int) {
	for _, v := range l {
		into[v]++
	}
}

// cleanLabels trims labels and drops blanks. Duplicates are kept: two
// companions from the same industry count twice.
func cleanLabels(in []string) Labels {
	out := make(Labels, 0, len(in))
	for _, v := range in {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
