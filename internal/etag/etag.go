// Package etag derives and validates entity version tags for optimistic
// concurrency. Tags are weak (W/"...") since they track "not known to
// have changed" rather than byte identity.
package etag

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/objectql/odata/provider"
)

// timestampFields are the record fields checked, in order, for an
// update timestamp to derive the tag from.
var timestampFields = []string{"updated_at", "modified", "last_modified"}

// Generate creates a weak ETag for a record. The derivation precedence
// is: update-timestamp field (millisecond value), then the record id,
// then a hash of the serialized record. Two reads of an unmodified
// record always yield an identical tag.
func Generate(record provider.Record) string {
	if record == nil {
		return ""
	}

	for _, field := range timestampFields {
		if ms, ok := timestampMillis(record[field]); ok {
			return format(fmt.Sprintf("ts-%d", ms))
		}
	}

	if id, ok := record["id"]; ok && id != nil {
		return format(fmt.Sprintf("id-%v", id))
	}

	// Content hash fallback. Marshaling a map sorts keys, so the
	// serialization is deterministic.
	serialized, err := json.Marshal(record)
	if err != nil {
		return ""
	}
	return format(fmt.Sprintf("h-%d", xxhash.Sum64(serialized)))
}

func format(source string) string {
	return fmt.Sprintf("W/\"%016x\"", xxhash.Sum64String(source))
}

// timestampMillis extracts a millisecond timestamp from the common value
// shapes a store returns: time.Time, RFC 3339 strings, and numeric epoch
// millisecond values.
func timestampMillis(value interface{}) (int64, bool) {
	switch v := value.(type) {
	case nil:
		return 0, false
	case time.Time:
		return v.UnixMilli(), true
	case *time.Time:
		if v == nil {
			return 0, false
		}
		return v.UnixMilli(), true
	case string:
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			return t.UnixMilli(), true
		}
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			return t.UnixMilli(), true
		}
		return 0, false
	case int64:
		return v, true
	case int:
		return int64(v), true
	case float64:
		return int64(v), true
	case json.Number:
		if ms, err := strconv.ParseInt(string(v), 10, 64); err == nil {
			return ms, true
		}
		return 0, false
	default:
		return 0, false
	}
}

// Parse extracts the bare tag value from an ETag header, stripping the
// weak prefix and surrounding quotes.
func Parse(header string) string {
	if header == "" {
		return ""
	}

	if len(header) > 2 && header[:2] == "W/" {
		header = header[2:]
	}

	if len(header) >= 2 && header[0] == '"' && header[len(header)-1] == '"' {
		return header[1 : len(header)-1]
	}

	return header
}

// Match checks an If-Match header against the current ETag. An empty
// header means no precondition; "*" matches any existing entity.
func Match(ifMatch string, currentETag string) bool {
	if ifMatch == "" {
		return true
	}
	if ifMatch == "*" {
		return currentETag != ""
	}
	return Parse(ifMatch) == Parse(currentETag)
}

// NoneMatch checks an If-None-Match header against the current ETag.
// It returns false when the tags match, meaning the resource is
// unchanged and the caller should answer 304 with an empty body.
func NoneMatch(ifNoneMatch string, currentETag string) bool {
	if ifNoneMatch == "" {
		return true
	}
	if ifNoneMatch == "*" {
		return currentETag == ""
	}
	return Parse(ifNoneMatch) != Parse(currentETag)
}
