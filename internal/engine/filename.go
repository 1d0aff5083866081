package engine

import (
	"fmt"
	"strings"
	"time"
)

// GenerateFilename builds "<prefix>_<YYYYMMDD>_<HHMMSS>.<ext>" in local time.
func GenerateFilename(prefix, ext string, now time.Time) string {
	ext = strings.TrimPrefix(ext, ".")
	return fmt.Sprintf("%s_%s.%s", prefix, now.Format("20060102_150405"), ext)
}
