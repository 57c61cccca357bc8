package query

import "regexp"

// trailingLimit matches a LIMIT clause (offset-count or LIMIT/OFFSET form)
// at the very end of a statement, optionally followed by a semicolon.
var trailingLimit = regexp.MustCompile(`(?i)\s+LIMIT\s+\d+\s*(?:,\s*\d+|OFFSET\s+\d+)?\s*;?\s*$`)

// StripTrailingLimit removes a trailing LIMIT clause from user-supplied SQL
// so monitoring always snapshots the complete result set. Limits inside
// subqueries are left alone.
func StripTrailingLimit(sql string) string {
	return trailingLimit.ReplaceAllString(sql, "")
}
