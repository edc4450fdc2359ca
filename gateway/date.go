package gateway

import (
	"strconv"
	"time"
)

// weekdayNames and monthNames are fixed tables for RFC 1123 formatting,
// initialized once at package load and never mutated (spec §9's "global
// string tables" note), grounded on the teacher's own fixed-table style
// in types_header.go (commonHeader, isTokenTable).
var (
	weekdayNames = [...]string{"Sun", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat"}
	monthNames   = [...]string{"", "Jan", "Feb", "Mar", "Apr", "May", "Jun",
		"Jul", "Aug", "Sep", "Oct", "Nov", "Dec"}
)

// HTTPDate formats epochSeconds as an RFC 1123 GMT date string, e.g.
// "Mon, 02 Jan 2006 15:04:05 GMT".
func HTTPDate(epochSeconds int64) string {
	t := time.Unix(epochSeconds, 0).UTC()
	y, m, d := t.Date()
	h, min, sec := t.Clock()

	buf := make([]byte, 0, 29)
	buf = append(buf, weekdayNames[int(t.Weekday())]...)
	buf = append(buf, ',', ' ')
	buf = appendZeroPadded(buf, d, 2)
	buf = append(buf, ' ')
	buf = append(buf, monthNames[int(m)]...)
	buf = append(buf, ' ')
	buf = append(buf, strconv.Itoa(y)...)
	buf = append(buf, ' ')
	buf = appendZeroPadded(buf, h, 2)
	buf = append(buf, ':')
	buf = appendZeroPadded(buf, min, 2)
	buf = append(buf, ':')
	buf = appendZeroPadded(buf, sec, 2)
	buf = append(buf, " GMT"...)
	return string(buf)
}

func appendZeroPadded(buf []byte, v, width int) []byte {
	s := strconv.Itoa(v)
	for len(s) < width {
		s = "0" + s
	}
	return append(buf, s...)
}
