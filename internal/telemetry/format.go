package telemetry

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// MissingValue is shown in place of an absent numeric value.
const MissingValue = "n/a"

// VelocityUnit is the display unit of RMSVelocity.
const VelocityUnit = "mm/s"

// FormatNumeric renders v with two decimals. Absent values render as
// MissingValue and non-finite values fall back to their raw text.
func FormatNumeric(v *float64) string {
	if v == nil {
		return MissingValue
	}

	return formatFloat(*v)
}

// FormatValue is FormatNumeric for loosely typed values, such as numbers
// taken from an undecoded JSON document. Anything that is not a number is
// rendered raw.
func FormatValue(v any) string {
	switch n := v.(type) {
	case nil:
		return MissingValue
	case float64:
		return formatFloat(n)
	case *float64:
		return FormatNumeric(n)
	case float32:
		return formatFloat(float64(n))
	case int:
		return formatFloat(float64(n))
	case int64:
		return formatFloat(float64(n))
	case json.Number:
		if f, err := n.Float64(); err == nil {
			return formatFloat(f)
		}
		return n.String()
	case string:
		return n
	default:
		return fmt.Sprint(v)
	}
}

// FormatRMS renders the RMS velocity with its unit, e.g. "7.82 mm/s".
func FormatRMS(f Frame) string {
	return FormatNumeric(&f.RMSVelocity) + " " + VelocityUnit
}

// BinLabel returns the frequency label of spectrum bin i, e.g. "30Hz".
func BinLabel(i int) string {
	return strconv.Itoa(i*BinWidthHz) + "Hz"
}

func formatFloat(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return strconv.FormatFloat(v, 'f', -1, 64)
	}

	return strconv.FormatFloat(v, 'f', 2, 64)
}
