package database

import (
	"fmt"
	"time"
)

// NormalizeValue converts driver scan results into JSON friendly values.
func NormalizeValue(value any) any {
	switch v := value.(type) {
	case []byte:
		return string(v)
	case time.Time:
		return v.UTC().Format(time.RFC3339Nano)
	default:
		return v
	}
}

// FormatValue renders a scanned value for prompt text.
func FormatValue(value any) string {
	switch v := NormalizeValue(value).(type) {
	case nil:
		return "NULL"
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}
