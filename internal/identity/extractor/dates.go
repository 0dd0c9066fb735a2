package extractor

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// Two-digit years at or above this value are read as 19xx.
const centuryPivot = 30

var dayMonthYear = regexp.MustCompile(`(\d{2})[/-](\d{2})[/-](\d{4})`)

// birthYear expands a two-digit birth year with the fixed pivot:
// 30..99 become 19xx, 00..29 become 20xx.
func birthYear(yy int) int {
	if yy >= centuryPivot {
		return 1900 + yy
	}
	return 2000 + yy
}

// expiryYear expands a two-digit expiration year, always into 20xx.
func expiryYear(yy int) int {
	return 2000 + yy
}

// fromYYMMDD converts a six-digit YYMMDD string to YYYY-MM-DD.
// Strings that are not six digits or not a real calendar date yield "".
func fromYYMMDD(s string, expand func(int) int) string {
	if len(s) != 6 {
		return ""
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return ""
		}
	}
	yy, _ := strconv.Atoi(s[0:2])
	mm, _ := strconv.Atoi(s[2:4])
	dd, _ := strconv.Atoi(s[4:6])
	return isoDate(expand(yy), mm, dd)
}

// fromDayMonthYear finds DD/MM/YYYY or DD-MM-YYYY in s and returns YYYY-MM-DD.
func fromDayMonthYear(s string) string {
	m := dayMonthYear.FindStringSubmatch(s)
	if m == nil {
		return ""
	}
	dd, _ := strconv.Atoi(m[1])
	mm, _ := strconv.Atoi(m[2])
	yyyy, _ := strconv.Atoi(m[3])
	return isoDate(yyyy, mm, dd)
}

func isoDate(year, month, day int) string {
	s := fmt.Sprintf("%04d-%02d-%02d", year, month, day)
	if _, err := time.Parse("2006-01-02", s); err != nil {
		return ""
	}
	return s
}
