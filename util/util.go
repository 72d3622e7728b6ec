// Package util contains misc internal utilities.
package util

import (
	"os"
	"strconv"
	"strings"
)

// CopyMarker is appended to a file name whose target already exists
const CopyMarker = "-(copy)"

// IntSliceToCSV convets a slice of ints to CSV formatted data.
// e.g., []int{1,2,3,4,5} => "1,2,3,4,5"
func IntSliceToCSV(is []int) string {
	s := make([]string, len(is))
	for i, v := range is {
		s[i] = strconv.Itoa(v)
	}

	return strings.Join(s, ",")
}

// Clamp limits x to the closed interval [low, high]
func Clamp(x, low, high float64) float64 {
	if x < low {
		return low
	}
	if x > high {
		return high
	}
	return x
}

// FileExists returns true if path names an existing regular file
func FileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Mode().IsRegular()
}

// UniquePath returns base.ext if no such file exists, otherwise
// base-(copy).ext.  The marker is applied once and not re-checked,
// so a third write with the same base replaces the -(copy) file.
func UniquePath(base, ext string) string {
	ext = strings.TrimPrefix(ext, ".")
	path := base + "." + ext
	if FileExists(path) {
		return base + CopyMarker + "." + ext
	}
	return path
}
