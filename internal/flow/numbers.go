package flow

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrBadNumber flags input that does not parse as a positive amount.
var ErrBadNumber = errors.New("not a positive number")

// digit translation for Persian (۰-۹) and Arabic-Indic (٠-٩) numerals.
var digitReplacer = strings.NewReplacer(
	"۰", "0", "۱", "1", "۲", "2", "۳", "3", "۴", "4",
	"۵", "5", "۶", "6", "۷", "7", "۸", "8", "۹", "9",
	"٠", "0", "١", "1", "٢", "2", "٣", "3", "٤", "4",
	"٥", "5", "٦", "6", "٧", "7", "٨", "8", "٩", "9",
)

// separatorReplacer strips thousands separators and normalizes the Persian
// decimal mark (U+066B) to a dot.
var separatorReplacer = strings.NewReplacer(
	",", "",
	"٬", "", // U+066C Arabic thousands separator
	" ", "",
	"_", "",
	"٫", ".", // U+066B Arabic decimal separator
)

// ParseAmount parses a user-entered amount or rate. Persian and Arabic
// digits are accepted; thousands separators are stripped. Zero, negative,
// and unparsable values are rejected.
func ParseAmount(input string) (float64, error) {
	cleaned := separatorReplacer.Replace(digitReplacer.Replace(strings.TrimSpace(input)))
	if cleaned == "" {
		return 0, ErrBadNumber
	}

	value, err := strconv.ParseFloat(cleaned, 64)
	if err != nil || value <= 0 {
		return 0, ErrBadNumber
	}
	return value, nil
}

// FormatAmount renders an amount without trailing decimal noise: whole
// numbers stay whole, everything else keeps two places.
func FormatAmount(v float64) string {
	if v == float64(int64(v)) {
		return fmt.Sprintf("%d", int64(v))
	}
	return fmt.Sprintf("%.2f", v)
}
