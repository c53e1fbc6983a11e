package parser

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/miradorstack/pool-watcher/internal/models"
)

// Result labels which stage produced a record.
type Result string

const (
	ResultStrict     Result = "strict"
	ResultFallback   Result = "fallback"
	ResultUnparsable Result = "unparsable"
)

// Parse converts one access-log line into a record. The JSON decoder runs first; when it
// rejects the line the named field patterns try to salvage individual fields.
func Parse(line string) (models.Record, Result) {
	if rec, ok := StrictParse(line); ok {
		return rec, ResultStrict
	}
	if rec, ok := FallbackParse(line); ok {
		return rec, ResultFallback
	}
	return models.Record{}, ResultUnparsable
}

// StrictParse decodes a JSON access-log object.
func StrictParse(line string) (models.Record, bool) {
	raw := strings.TrimRight(line, "\r\n")
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || trimmed[0] != '{' {
		return models.Record{}, false
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(trimmed)))
	dec.UseNumber()
	var fields map[string]any
	if err := dec.Decode(&fields); err != nil || fields == nil {
		return models.Record{}, false
	}
	if dec.InputOffset() != int64(len(trimmed)) {
		return models.Record{}, false
	}

	rec := models.Record{RawText: raw}
	if status, ok := intField(fields["status"]); ok {
		rec.Status = status
	}
	rec.Pool = stringField(fields["pool"])
	rec.Release = stringField(fields["release"])
	rec.UpstreamStatuses = upstreamStatuses(fields["upstream_status"])
	if addrs := stringField(fields["upstream_addr"]); addrs != nil {
		rec.UpstreamAddrs = SplitUpstream(*addrs)
	}
	return rec, true
}

var (
	statusPattern         = regexp.MustCompile(`"status"\s*:\s*"?(\d{3})`)
	poolPattern           = regexp.MustCompile(`"pool"\s*:\s*"([^"]*)"`)
	releasePattern        = regexp.MustCompile(`"release"\s*:\s*"([^"]*)"`)
	upstreamAddrPattern   = regexp.MustCompile(`"upstream_addr"\s*:\s*"([^"]*)"`)
	upstreamStatusPattern = regexp.MustCompile(`"upstream_status"\s*:\s*"?([0-9][0-9,: -]*)`)
)

// FallbackParse extracts known fields independently from a malformed line. It succeeds
// when at least one field is recovered.
func FallbackParse(line string) (models.Record, bool) {
	raw := strings.TrimRight(line, "\r\n")
	if strings.TrimSpace(raw) == "" {
		return models.Record{}, false
	}

	rec := models.Record{RawText: raw}
	found := false
	if m := statusPattern.FindStringSubmatch(raw); m != nil {
		if v, err := strconv.Atoi(m[1]); err == nil {
			rec.Status = v
			found = true
		}
	}
	if m := poolPattern.FindStringSubmatch(raw); m != nil {
		rec.Pool = models.StringPtr(m[1])
		found = true
	}
	if m := releasePattern.FindStringSubmatch(raw); m != nil {
		rec.Release = models.StringPtr(m[1])
		found = true
	}
	if m := upstreamAddrPattern.FindStringSubmatch(raw); m != nil {
		rec.UpstreamAddrs = SplitUpstream(m[1])
		found = true
	}
	if m := upstreamStatusPattern.FindStringSubmatch(raw); m != nil {
		if statuses := parseStatusList(m[1]); len(statuses) > 0 {
			rec.UpstreamStatuses = statuses
			found = true
		}
	}
	if !found {
		return models.Record{}, false
	}
	return rec, true
}

// SplitUpstream splits an nginx upstream list. Commas separate retries within a group and
// " : " separates groups after an internal redirect. Placeholder "-" entries are dropped.
func SplitUpstream(value string) []string {
	fields := strings.FieldsFunc(value, func(r rune) bool { return r == ',' })
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		for _, part := range strings.Split(f, " : ") {
			part = strings.TrimSpace(part)
			if part == "" || part == "-" {
				continue
			}
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func parseStatusList(value string) []int {
	value = strings.ReplaceAll(value, ":", ",")
	var out []int
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part == "" || part == "-" {
			continue
		}
		if v, ok := intField(part); ok {
			out = append(out, v)
		}
	}
	return out
}

func upstreamStatuses(value any) []int {
	switch v := value.(type) {
	case json.Number:
		if n, ok := intField(v); ok {
			return []int{n}
		}
	case string:
		return parseStatusList(v)
	case []any:
		var out []int
		for _, item := range v {
			if n, ok := intField(item); ok {
				out = append(out, n)
			}
		}
		return out
	}
	return nil
}

// maxStatus bounds HTTP status codes; anything outside [0, maxStatus] is treated as absent.
const maxStatus = 999

func intField(value any) (int, bool) {
	switch v := value.(type) {
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return statusInRange(n)
		}
		if f, err := v.Float64(); err == nil && f >= 0 && f <= maxStatus {
			return int(f), true
		}
	case string:
		if n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
			return statusInRange(n)
		}
	}
	return 0, false
}

func statusInRange(n int64) (int, bool) {
	if n < 0 || n > maxStatus {
		return 0, false
	}
	return int(n), true
}

func stringField(value any) *string {
	switch v := value.(type) {
	case string:
		return models.StringPtr(v)
	case json.Number:
		return models.StringPtr(v.String())
	}
	return nil
}
