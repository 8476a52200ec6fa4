package capture

import (
	"testing"
	"time"
)

func sampleEntry(url, method string, status int, ts time.Time) Entry {
	return Entry{ID: "e", Timestamp: ts, URL: url, Method: method, Status: status}
}

func TestFilterOrigin(t *testing.T) {
	f := Filter{Origin: "https://example.com"}
	if !f.Match(sampleEntry("https://example.com/a", "GET", 200, time.Now())) {
		t.Fatal("expected match on same origin")
	}
	if f.Match(sampleEntry("https://other.com/a", "GET", 200, time.Now())) {
		t.Fatal("expected no match on different origin")
	}
}

func TestFilterMethodCaseInsensitive(t *testing.T) {
	f := Filter{Method: "post"}
	if !f.Match(sampleEntry("https://x.test/", "POST", 200, time.Now())) {
		t.Fatal("expected case-insensitive method match")
	}
}

func TestFilterStatusExactAndClass(t *testing.T) {
	exact := Filter{Status: "404"}
	if !exact.Match(sampleEntry("https://x.test/", "GET", 404, time.Now())) {
		t.Fatal("expected exact status match")
	}
	if exact.Match(sampleEntry("https://x.test/", "GET", 400, time.Now())) {
		t.Fatal("expected no match for different exact status")
	}

	class := Filter{Status: "4xx"}
	if !class.Match(sampleEntry("https://x.test/", "GET", 404, time.Now())) {
		t.Fatal("expected class match for 404 against 4xx")
	}
	if class.Match(sampleEntry("https://x.test/", "GET", 200, time.Now())) {
		t.Fatal("expected no class match for 200 against 4xx")
	}
}

func TestFilterExcludeStatic(t *testing.T) {
	f := Filter{ExcludeStatic: true}
	if f.Match(sampleEntry("https://x.test/app.css", "GET", 200, time.Now())) {
		t.Fatal("expected .css to be excluded")
	}
	if !f.Match(sampleEntry("https://x.test/api/data", "GET", 200, time.Now())) {
		t.Fatal("expected non-static path to survive")
	}
}

func TestFilterURLPatternVariants(t *testing.T) {
	regex := Filter{URLPattern: "/\\/api\\/v[0-9]+\\//"}
	if !regex.Match(sampleEntry("https://x.test/api/v2/things", "GET", 200, time.Now())) {
		t.Fatal("expected regex pattern to match")
	}

	glob := Filter{URLPattern: "*/things"}
	if !glob.Match(sampleEntry("https://x.test/api/v2/things", "GET", 200, time.Now())) {
		t.Fatal("expected glob pattern to match")
	}

	substr := Filter{URLPattern: "v2"}
	if !substr.Match(sampleEntry("https://x.test/api/v2/things", "GET", 200, time.Now())) {
		t.Fatal("expected substring pattern to match")
	}
}

func TestFilterMinTimestamp(t *testing.T) {
	cutoff := time.Now()
	f := Filter{MinTimestamp: cutoff}
	if f.Match(sampleEntry("https://x.test/", "GET", 200, cutoff.Add(-time.Minute))) {
		t.Fatal("expected entry before cutoff to be excluded")
	}
	if !f.Match(sampleEntry("https://x.test/", "GET", 200, cutoff.Add(time.Minute))) {
		t.Fatal("expected entry after cutoff to survive")
	}
}

func TestFilterTailKeepsMostRecent(t *testing.T) {
	f := Filter{Tail: 2}
	entries := []Entry{
		sampleEntry("https://x.test/1", "GET", 200, time.Now()),
		sampleEntry("https://x.test/2", "GET", 200, time.Now()),
		sampleEntry("https://x.test/3", "GET", 200, time.Now()),
	}
	out := f.Apply(entries)
	if len(out) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(out))
	}
	if out[0].URL != "https://x.test/2" || out[1].URL != "https://x.test/3" {
		t.Fatalf("expected last 2 entries preserved in order, got %+v", out)
	}
}

func TestFilterConjunctive(t *testing.T) {
	f := Filter{Origin: "https://x.test", Method: "GET", Status: "2xx"}
	match := sampleEntry("https://x.test/a", "GET", 204, time.Now())
	if !f.Match(match) {
		t.Fatal("expected all-predicates match")
	}
	wrongMethod := sampleEntry("https://x.test/a", "POST", 204, time.Now())
	if f.Match(wrongMethod) {
		t.Fatal("expected conjunctive filter to reject on one failing predicate")
	}
}
