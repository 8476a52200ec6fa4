package router

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/batalabs/surfbridge/internal/capture"
	"github.com/batalabs/surfbridge/internal/router/cdp"
)

// captureSubscriber wires a tab's CDP Network domain events into the
// capture store: it records each request/response pair, fetches the
// response body with Network.getResponseBody once loading finishes, and
// passes it whole to Store.Append, which hashes it and inserts the entry.
// Bodies are held in memory rather than streamed, and request bodies are
// not recorded. Capture runs independently of tool requests.
type captureSubscriber struct {
	store *capture.Store

	mu      sync.Mutex
	pending map[string]*inflightExchange // requestId -> exchange
}

type inflightExchange struct {
	url             string
	method          string
	requestHeaders  map[string]string
	requestBody     []byte
	status          int
	contentType     string
	responseHeaders map[string]string
	responseBody    []byte
}

func newCaptureSubscriber(store *capture.Store) *captureSubscriber {
	return &captureSubscriber{store: store, pending: make(map[string]*inflightExchange)}
}

// attach subscribes to the Network domain on client and enables it. Events
// arrive on an internally-owned channel and are processed by a background
// goroutine until the client closes.
func (s *captureSubscriber) attach(client *cdp.Client) error {
	if _, err := client.Call("Network.enable", map[string]any{}, 0); err != nil {
		return fmt.Errorf("capture: enable network domain: %w", err)
	}

	requestWillBeSent := make(chan cdp.Event, 64)
	responseReceived := make(chan cdp.Event, 64)
	loadingFinished := make(chan cdp.Event, 64)
	client.Subscribe("Network.requestWillBeSent", requestWillBeSent)
	client.Subscribe("Network.responseReceived", responseReceived)
	client.Subscribe("Network.loadingFinished", loadingFinished)

	go func() {
		for {
			select {
			case ev, ok := <-requestWillBeSent:
				if !ok {
					return
				}
				s.onRequestWillBeSent(ev)
			case ev, ok := <-responseReceived:
				if !ok {
					return
				}
				s.onResponseReceived(ev)
			case ev, ok := <-loadingFinished:
				if !ok {
					return
				}
				s.onLoadingFinished(client, ev)
			}
		}
	}()
	return nil
}

type requestWillBeSentParams struct {
	RequestID string `json:"requestId"`
	Request   struct {
		URL     string            `json:"url"`
		Method  string            `json:"method"`
		Headers map[string]string `json:"headers"`
	} `json:"request"`
}

func (s *captureSubscriber) onRequestWillBeSent(ev cdp.Event) {
	var p requestWillBeSentParams
	if err := json.Unmarshal(ev.Params, &p); err != nil {
		return
	}
	s.mu.Lock()
	s.pending[p.RequestID] = &inflightExchange{
		url:            p.Request.URL,
		method:         p.Request.Method,
		requestHeaders: p.Request.Headers,
	}
	s.mu.Unlock()
}

type responseReceivedParams struct {
	RequestID string `json:"requestId"`
	Response  struct {
		Status      int               `json:"status"`
		MimeType    string            `json:"mimeType"`
		Headers     map[string]string `json:"headers"`
	} `json:"response"`
}

func (s *captureSubscriber) onResponseReceived(ev cdp.Event) {
	var p responseReceivedParams
	if err := json.Unmarshal(ev.Params, &p); err != nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ex, ok := s.pending[p.RequestID]
	if !ok {
		return
	}
	ex.status = p.Response.Status
	ex.contentType = p.Response.MimeType
	ex.responseHeaders = p.Response.Headers
}

type loadingFinishedParams struct {
	RequestID string `json:"requestId"`
}

type getResponseBodyResult struct {
	Body          string `json:"body"`
	Base64Encoded bool   `json:"base64Encoded"`
}

func (s *captureSubscriber) onLoadingFinished(client *cdp.Client, ev cdp.Event) {
	var p loadingFinishedParams
	if err := json.Unmarshal(ev.Params, &p); err != nil {
		return
	}
	s.mu.Lock()
	ex, ok := s.pending[p.RequestID]
	if ok {
		delete(s.pending, p.RequestID)
	}
	s.mu.Unlock()
	if !ok {
		return
	}

	if raw, err := client.Call("Network.getResponseBody", map[string]any{"requestId": p.RequestID}, 0); err == nil {
		var body getResponseBodyResult
		if json.Unmarshal(raw, &body) == nil {
			if body.Base64Encoded {
				if decoded, err := base64.StdEncoding.DecodeString(body.Body); err == nil {
					ex.responseBody = decoded
				}
			} else {
				ex.responseBody = []byte(body.Body)
			}
		}
	}

	entry := capture.Entry{
		URL:             ex.url,
		Method:          ex.method,
		Status:          ex.status,
		ContentType:     ex.contentType,
		RequestHeaders:  ex.requestHeaders,
		ResponseHeaders: ex.responseHeaders,
	}
	if err := s.store.Append(entry, ex.requestBody, ex.responseBody); err != nil {
		_ = err // capture failures never abort the tab; logged by the caller if it wires a logger
	}
}
