package utils

import "math"

const (
	// MiB is the byte count of one megabyte as reported in memory figures
	MiB = 1024 * 1024

	// GiB is the byte count of one gigabyte as reported in disk figures
	GiB = 1024 * 1024 * 1024
)

// Round rounds a float64 value to 2 decimal places
// Used throughout the sampler for metrics to avoid unnecessary precision
func Round(val float64) float64 {
	// Use proper rounding that works for both positive and negative numbers
	return math.Round(val*100) / 100
}

// BytesToMB converts bytes to whole megabytes using floor division
func BytesToMB(b uint64) uint64 {
	return b / MiB
}

// BytesToGB converts bytes to gigabytes rounded to 2 decimal places
func BytesToGB(b uint64) float64 {
	return Round(float64(b) / GiB)
}

// Percent returns part/total*100 rounded to 2 decimal places.
// A zero total yields 0 rather than a division error
func Percent(part, total uint64) float64 {
	if total == 0 {
		return 0
	}
	return Round(float64(part) / float64(total) * 100)
}
