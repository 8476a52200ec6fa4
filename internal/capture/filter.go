package capture

import (
	"net/url"
	"path"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// staticExtensions are dropped by Filter.ExcludeStatic.
var staticExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".svg": true,
	".webp": true, ".ico": true, ".css": true, ".woff": true, ".woff2": true,
	".ttf": true, ".eot": true, ".map": true,
}

// Filter composes conjunctively over Entry fields, per spec.md §4.B.
type Filter struct {
	Origin            string // exact match against the URL's scheme://host[:port]
	Method            string // exact, case-insensitive; compared upper-cased
	Status            string // exact integer ("200") or class ("2xx")
	ContentTypeSubstr string
	MinTimestamp      time.Time
	RequireBody       bool // entry must have at least one body hash
	ExcludeStatic     bool
	URLPattern        string // "/regex/", "glob*pattern", or plain substring
	Tail              int    // keep only the last N matches, 0 = unlimited
}

// Match reports whether an entry satisfies every configured predicate.
func (f Filter) Match(e Entry) bool {
	if f.Origin != "" && origin(e.URL) != f.Origin {
		return false
	}
	if f.Method != "" && !strings.EqualFold(f.Method, e.Method) {
		return false
	}
	if f.Status != "" && !matchStatus(f.Status, e.Status) {
		return false
	}
	if f.ContentTypeSubstr != "" && !strings.Contains(e.ContentType, f.ContentTypeSubstr) {
		return false
	}
	if !f.MinTimestamp.IsZero() && e.Timestamp.Before(f.MinTimestamp) {
		return false
	}
	if f.RequireBody && e.RequestBodyHash == "" && e.ResponseBodyHash == "" {
		return false
	}
	if f.ExcludeStatic && isStaticAsset(e.URL) {
		return false
	}
	if f.URLPattern != "" && !matchURLPattern(f.URLPattern, e.URL) {
		return false
	}
	return true
}

// Apply filters entries and applies the tail-count limit last.
func (f Filter) Apply(entries []Entry) []Entry {
	out := entries[:0:0]
	for _, e := range entries {
		if f.Match(e) {
			out = append(out, e)
		}
	}
	if f.Tail > 0 && len(out) > f.Tail {
		out = out[len(out)-f.Tail:]
	}
	return out
}

func origin(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Scheme + "://" + u.Host
}

func matchStatus(want string, got int) bool {
	want = strings.ToLower(strings.TrimSpace(want))
	if strings.HasSuffix(want, "xx") && len(want) == 3 {
		class := want[:1]
		return strconv.Itoa(got/100) == class
	}
	n, err := strconv.Atoi(want)
	if err != nil {
		return false
	}
	return got == n
}

func isStaticAsset(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return staticExtensions[strings.ToLower(path.Ext(u.Path))]
}

func matchURLPattern(pattern, target string) bool {
	if strings.HasPrefix(pattern, "/") && strings.HasSuffix(pattern, "/") && len(pattern) >= 2 {
		re, err := regexp.Compile(pattern[1 : len(pattern)-1])
		if err != nil {
			return false
		}
		return re.MatchString(target)
	}
	if strings.Contains(pattern, "*") {
		re, err := globToRegexp(pattern)
		if err != nil {
			return false
		}
		return re.MatchString(target)
	}
	return strings.Contains(target, pattern)
}

func globToRegexp(glob string) (*regexp.Regexp, error) {
	var b strings.Builder
	b.WriteString("^")
	for _, r := range glob {
		switch r {
		case '*':
			b.WriteString(".*")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString("$")
	return regexp.Compile(b.String())
}
