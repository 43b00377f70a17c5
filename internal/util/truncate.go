package util

// Truncate bounds s to at most n bytes. Responses and checkpoint payloads
// carry truncated copies of code and output so a runaway print loop on the
// backend cannot blow up local storage or logs.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if len(s) <= n {
		return s
	}
	return s[:n]
}
