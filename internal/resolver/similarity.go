package resolver

import (
	"math"
	"unicode/utf8"

	"github.com/hbollon/go-edlib"
)

// Ratio returns the normalized indel similarity of a and b in the range
// 0-100: 2·LCS(a, b) / (len(a) + len(b)), rounded to the nearest integer.
func Ratio(a, b string) int {
	total := utf8.RuneCountInString(a) + utf8.RuneCountInString(b)
	if total == 0 {
		return 100
	}
	lcs := edlib.LCS(a, b)
	return int(math.Round(float64(2*lcs) * 100 / float64(total)))
}
