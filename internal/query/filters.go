package query

import (
	"regexp"
	"strconv"
	"strings"
)

const milesToKM = 1.60934

// NumericFilters holds distance/time bounds extracted from free text.
// A nil field means no bound was expressed.
type NumericFilters struct {
	DistanceMinKM *float64
	DistanceMaxKM *float64
	TimeMinH      *float64
	TimeMaxH      *float64
}

// Empty reports whether no bound was extracted.
func (f NumericFilters) Empty() bool {
	return f.DistanceMinKM == nil && f.DistanceMaxKM == nil &&
		f.TimeMinH == nil && f.TimeMaxH == nil
}

type rangeKind int

const (
	kindBetween rangeKind = iota
	kindMin
	kindMax
)

type rangePattern struct {
	re   *regexp.Regexp
	kind rangeKind
}

const distUnit = `(km|kilometers|kilometres|mi|mile|miles)`
const timeUnit = `(h|hr|hrs|hour|hours)`

// Recognizes phrasings like "at least 15km", "over 10 miles", "15km+",
// "under 5 mi", "between 10 and 15 km", "10-15km". First match wins.
var distPatterns = []rangePattern{
	{regexp.MustCompile(`between\s+(\d+(?:\.\d+)?)\s*` + distUnit + `?\s*and\s+(\d+(?:\.\d+)?)\s*` + distUnit), kindBetween},
	{regexp.MustCompile(`(\d+(?:\.\d+)?)\s*-\s*(\d+(?:\.\d+)?)\s*` + distUnit), kindBetween},
	{regexp.MustCompile(`(?:at\s+least|>=|more\s+than|over)\s+(\d+(?:\.\d+)?)\s*` + distUnit), kindMin},
	{regexp.MustCompile(`(\d+(?:\.\d+)?)\s*` + distUnit + `\s*\+`), kindMin},
	{regexp.MustCompile(`(?:at\s+most|<=|less\s+than|under)\s+(\d+(?:\.\d+)?)\s*` + distUnit), kindMax},
}

var timePatterns = []rangePattern{
	{regexp.MustCompile(`between\s+(\d+(?:\.\d+)?)\s*` + timeUnit + `?\s*and\s+(\d+(?:\.\d+)?)\s*` + timeUnit), kindBetween},
	{regexp.MustCompile(`(\d+(?:\.\d+)?)\s*-\s*(\d+(?:\.\d+)?)\s*` + timeUnit), kindBetween},
	{regexp.MustCompile(`(?:at\s+least|>=|more\s+than|over)\s+(\d+(?:\.\d+)?)\s*` + timeUnit), kindMin},
	{regexp.MustCompile(`(\d+(?:\.\d+)?)\s*` + timeUnit + `\s*\+`), kindMin},
	{regexp.MustCompile(`(?:at\s+most|<=|less\s+than|under)\s+(\d+(?:\.\d+)?)\s*` + timeUnit), kindMax},
}

func toKM(value float64, unit string) float64 {
	if len(unit) >= 2 && unit[:2] == "km" {
		return value
	}
	return value * milesToKM
}

// ParseNumericFilters extracts distance and time range bounds from free
// text. Time units are already hours; distances are converted to km.
func ParseNumericFilters(text string) NumericFilters {
	s := strings.ToLower(text)
	var out NumericFilters

	for _, p := range distPatterns {
		m := p.re.FindStringSubmatch(s)
		if m == nil {
			continue
		}
		switch p.kind {
		case kindBetween:
			var v1, v2 float64
			var u1, u2 string
			if len(m) == 5 {
				v1, u1 = mustFloat(m[1]), m[2]
				v2, u2 = mustFloat(m[3]), m[4]
				// "between 10 and 15 km" leaves the first unit blank.
				if u1 == "" {
					u1 = u2
				}
			} else {
				v1, v2 = mustFloat(m[1]), mustFloat(m[2])
				u1, u2 = m[3], m[3]
			}
			d1, d2 := toKM(v1, u1), toKM(v2, u2)
			lo, hi := minMax(d1, d2)
			out.DistanceMinKM, out.DistanceMaxKM = &lo, &hi
		case kindMin:
			d := toKM(mustFloat(m[1]), m[2])
			out.DistanceMinKM = &d
		case kindMax:
			d := toKM(mustFloat(m[1]), m[2])
			out.DistanceMaxKM = &d
		}
		break
	}

	for _, p := range timePatterns {
		m := p.re.FindStringSubmatch(s)
		if m == nil {
			continue
		}
		switch p.kind {
		case kindBetween:
			var v1, v2 float64
			if len(m) == 5 {
				v1, v2 = mustFloat(m[1]), mustFloat(m[3])
			} else {
				v1, v2 = mustFloat(m[1]), mustFloat(m[2])
			}
			lo, hi := minMax(v1, v2)
			out.TimeMinH, out.TimeMaxH = &lo, &hi
		case kindMin:
			t := mustFloat(m[1])
			out.TimeMinH = &t
		case kindMax:
			t := mustFloat(m[1])
			out.TimeMaxH = &t
		}
		break
	}

	return out
}

func mustFloat(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}

func minMax(a, b float64) (float64, float64) {
	if a > b {
		return b, a
	}
	return a, b
}