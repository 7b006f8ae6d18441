package database

import (
	"strings"
)

const uniqueMarker = "UNIQUE constraint failed: "

// UniqueViolation reports whether err is a SQLite unique constraint failure
// and, if so, returns the offending column names without their table prefix.
// e.g. "UNIQUE constraint failed: books.name, books.author_id (2067)" yields
// ["name", "author_id"].
func UniqueViolation(err error) ([]string, bool) {
	if err == nil {
		return nil, false
	}
	msg := err.Error()
	idx := strings.Index(msg, uniqueMarker)
	if idx < 0 {
		return nil, false
	}
	rest := msg[idx+len(uniqueMarker):]
	if end := strings.IndexAny(rest, "(\n"); end >= 0 {
		rest = rest[:end]
	}

	var columns []string
	for _, part := range strings.Split(rest, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if dot := strings.LastIndex(part, "."); dot >= 0 {
			part = part[dot+1:]
		}
		columns = append(columns, part)
	}
	return columns, true
}
