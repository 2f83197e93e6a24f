package utils

import "strings"

// PickFirstNonEmpty picks the first non-empty value from a list of strings.
// If all values are empty, returns the empty string.
func PickFirstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}

// SafeKeyTimestamp makes an ISO-8601 timestamp usable as an object key or
// file name segment by replacing ':' and '.' with '-'.
func SafeKeyTimestamp(ts string) string {
	return strings.NewReplacer(":", "-", ".", "-").Replace(ts)
}
