package compare

import "dsum-go/internal/digest"

// Delta class values shared by the time and size columns.
const (
	DeltaEqual  = "=="
	DeltaAbsent = ".."
)

type unit struct {
	threshold int64
	label     byte
}

var timeUnits = []unit{
	{31536000, 'y'},
	{2592000, 'm'},
	{604800, 'w'},
	{86400, 'd'},
	{3600, 'h'},
	{1, 's'},
}

var sizeUnits = []unit{
	{1 << 30, 'G'},
	{1 << 20, 'M'},
	{1 << 10, 'K'},
	{1, 'B'},
}

// TimeClass classifies the difference between two timestamps in seconds.
func TimeClass(left, right int64) string { return classify(left, right, timeUnits) }

// SizeClass classifies the difference between two byte counts.
func SizeClass(left, right int64) string { return classify(left, right, sizeUnits) }

// classify returns the largest unit the absolute delta reaches, prefixed
// with < when left is smaller and > otherwise.
func classify(a, b int64, units []unit) string {
	if a == b {
		return DeltaEqual
	}
	d := a - b
	if d < 0 {
		d = -d
	}
	dir := byte('>')
	if a < b {
		dir = '<'
	}
	for _, u := range units {
		if d >= u.threshold {
			return string([]byte{dir, u.label})
		}
	}
	return "ER"
}

// HashUsable reports whether fingerprints from two snapshots can be
// compared: the schemes must match and address file content.
func HashUsable(left, right string) bool {
	return digest.Comparable(left, right)
}
