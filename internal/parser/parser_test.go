package parser

import (
	"testing"
)

const blueLine = `{"time":"2025-10-30T00:00:00Z","remote_addr":"1.2.3.4","method":"GET","uri":"/version","status":200,"pool":"blue","release":"blue-1.0.0","upstream_status":200,"upstream_addr":"172.17.0.2:3000","request_time":0.12,"upstream_response_time":"0.12"}`

func TestParseStrictLine(t *testing.T) {
	rec, result := Parse(blueLine + "\n")
	if result != ResultStrict {
		t.Fatalf("expected strict parse, got %s", result)
	}
	if rec.Status != 200 {
		t.Fatalf("expected status 200, got %d", rec.Status)
	}
	if pool, ok := rec.PoolName(); !ok || pool != "blue" {
		t.Fatalf("unexpected pool %q", pool)
	}
	if release, ok := rec.ReleaseName(); !ok || release != "blue-1.0.0" {
		t.Fatalf("unexpected release %q", release)
	}
	if len(rec.UpstreamStatuses) != 1 || rec.UpstreamStatuses[0] != 200 {
		t.Fatalf("unexpected upstream statuses %v", rec.UpstreamStatuses)
	}
	if len(rec.UpstreamAddrs) != 1 || rec.UpstreamAddrs[0] != "172.17.0.2:3000" {
		t.Fatalf("unexpected upstream addrs %v", rec.UpstreamAddrs)
	}
	if rec.RawText != blueLine {
		t.Fatalf("raw text should drop the trailing newline, got %q", rec.RawText)
	}
}

func TestParseUpstreamRetries(t *testing.T) {
	line := `{"status":"200","upstream_status":"502, 504 : 200","upstream_addr":"10.0.0.1:80, 10.0.0.2:80 : 10.0.0.3:80"}`
	rec, result := Parse(line)
	if result != ResultStrict {
		t.Fatalf("expected strict parse, got %s", result)
	}
	if rec.Status != 200 {
		t.Fatalf("expected string status to decode, got %d", rec.Status)
	}
	want := []int{502, 504, 200}
	if len(rec.UpstreamStatuses) != len(want) {
		t.Fatalf("unexpected upstream statuses %v", rec.UpstreamStatuses)
	}
	for i, v := range want {
		if rec.UpstreamStatuses[i] != v {
			t.Fatalf("status %d: expected %d, got %d", i, v, rec.UpstreamStatuses[i])
		}
	}
	if len(rec.UpstreamAddrs) != 3 || rec.UpstreamAddrs[2] != "10.0.0.3:80" {
		t.Fatalf("unexpected upstream addrs %v", rec.UpstreamAddrs)
	}
	if !rec.IsError() {
		t.Fatal("a retried upstream 502 must classify as an error")
	}
}

func TestParseMissingOptionalFields(t *testing.T) {
	rec, result := Parse(`{"uri":"/health"}`)
	if result != ResultStrict {
		t.Fatalf("expected strict parse, got %s", result)
	}
	if rec.Status != 0 || rec.Pool != nil || rec.Release != nil || rec.UpstreamStatuses != nil || rec.UpstreamAddrs != nil {
		t.Fatalf("expected zero record, got %+v", rec)
	}
}

func TestParseDashUpstream(t *testing.T) {
	rec, _ := Parse(`{"status":499,"upstream_status":"-","upstream_addr":"-"}`)
	if len(rec.UpstreamStatuses) != 0 || len(rec.UpstreamAddrs) != 0 {
		t.Fatalf("placeholder upstream values must be dropped, got %+v", rec)
	}
}

func TestParseFallback(t *testing.T) {
	line := `{"status":502,"pool":"green","release":"green-2","upstream_addr":"172.17.0.3:3000", "uri": "/broken`
	rec, result := Parse(line)
	if result != ResultFallback {
		t.Fatalf("expected fallback parse, got %s", result)
	}
	if rec.Status != 502 {
		t.Fatalf("expected salvaged status 502, got %d", rec.Status)
	}
	if pool, _ := rec.PoolName(); pool != "green" {
		t.Fatalf("expected salvaged pool green, got %q", pool)
	}
	if release, _ := rec.ReleaseName(); release != "green-2" {
		t.Fatalf("expected salvaged release, got %q", release)
	}
	if len(rec.UpstreamAddrs) != 1 {
		t.Fatalf("expected salvaged upstream addr, got %v", rec.UpstreamAddrs)
	}
}

func TestParseFallbackSingleField(t *testing.T) {
	rec, result := Parse(`garbage "pool": "blue" more garbage`)
	if result != ResultFallback {
		t.Fatalf("expected fallback parse, got %s", result)
	}
	if rec.Status != 0 {
		t.Fatalf("status should default to 0, got %d", rec.Status)
	}
	if pool, ok := rec.PoolName(); !ok || pool != "blue" {
		t.Fatalf("expected pool blue, got %q", pool)
	}
}

func TestParseUnparsable(t *testing.T) {
	for _, line := range []string{"", "   \n", "GET / HTTP/1.1 200", `[1,2,3]`} {
		if _, result := Parse(line); result != ResultUnparsable {
			t.Fatalf("line %q: expected unparsable, got %s", line, result)
		}
	}
}

func TestParseTrailingGarbageFallsBack(t *testing.T) {
	_, result := Parse(`{"status":500} trailing`)
	if result != ResultFallback {
		t.Fatalf("expected fallback for trailing data, got %s", result)
	}
}

func TestParseOutOfRangeStatusIsAbsent(t *testing.T) {
	cases := []string{
		`{"status":1e30,"pool":"blue"}`,
		`{"status":-500,"pool":"blue"}`,
		`{"status":"99999999999999999999","pool":"blue"}`,
		`{"status":1000,"pool":"blue"}`,
	}
	for _, line := range cases {
		rec, result := Parse(line)
		if result != ResultStrict {
			t.Fatalf("%s: expected strict parse, got %s", line, result)
		}
		if rec.Status != 0 || rec.IsError() {
			t.Fatalf("%s: expected absent status, got %d", line, rec.Status)
		}
		if pool, ok := rec.PoolName(); !ok || pool != "blue" {
			t.Fatalf("%s: expected other fields kept, got %+v", line, rec)
		}
	}

	rec, _ := Parse(`{"status":502.0,"upstream_status":[1e30, 504],"pool":"blue"}`)
	if rec.Status != 502 {
		t.Fatalf("expected in-range float status 502, got %d", rec.Status)
	}
	if len(rec.UpstreamStatuses) != 1 || rec.UpstreamStatuses[0] != 504 {
		t.Fatalf("expected only the in-range upstream status, got %v", rec.UpstreamStatuses)
	}
}
