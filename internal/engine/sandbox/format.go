package sandbox

import "fmt"

// FormatTime renders a duration given in milliseconds with a unit chosen by
// magnitude: ns, µs, ms or s, two decimals
func FormatTime(ms float64) string {
	switch {
	case ms < 0.001:
		return fmt.Sprintf("%.2f ns", ms*1e6)
	case ms < 1:
		return fmt.Sprintf("%.2f µs", ms*1e3)
	case ms < 1000:
		return fmt.Sprintf("%.2f ms", ms)
	default:
		return fmt.Sprintf("%.2f s", ms/1000)
	}
}
