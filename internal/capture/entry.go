// Package capture implements the network-capture store: an append-only,
// content-addressed log of intercepted HTTP traffic with TTL-and-size-bounded
// cleanup, shared between the extension's capture side and clients querying
// it through the bridge daemon.
package capture

import "time"

// Entry is one captured request/response pair, persisted one-per-line in
// requests.jsonl.
type Entry struct {
	ID              string            `json:"id"`
	Timestamp       time.Time         `json:"timestamp"`
	URL             string            `json:"url"`
	Method          string            `json:"method"`
	Status          int               `json:"status"`
	ContentType     string            `json:"contentType,omitempty"`
	RequestHeaders  map[string]string `json:"requestHeaders,omitempty"`
	ResponseHeaders map[string]string `json:"responseHeaders,omitempty"`
	RequestBodyHash string            `json:"requestBodyHash,omitempty"`
	ResponseBodyHash string           `json:"responseBodyHash,omitempty"`
}

// meta is the single on-disk `.meta` file tracking the last cleanup time.
type meta struct {
	LastCleanup time.Time `json:"lastCleanup"`
}

// Stats is the aggregate summary returned by Store.Stats.
type Stats struct {
	EntryCount      int            `json:"entryCount"`
	BodyBytes       int64          `json:"bodyBytes"`
	BodyBytesHuman  string         `json:"bodyBytesHuman"`
	PerOriginCounts map[string]int `json:"perOriginCounts"`
	StatusClasses   map[string]int `json:"statusClasses"` // "2xx", "3xx", "4xx", "5xx", "0xx"
	LastCleanup     time.Time      `json:"lastCleanup"`
}
