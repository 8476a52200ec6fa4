// Package protocol defines the wire types shared by every subsystem of the
// bridge: the tool request/reply envelope exchanged with clients, the
// content parts carried in a reply, and the typed error kinds bubbled back
// to callers.
package protocol

import (
	"errors"
	"fmt"
)

// MessageType distinguishes the two envelope shapes seen on the wire.
type MessageType string

const (
	MessageToolRequest  MessageType = "tool_request"
	MessageToolResponse MessageType = "tool_response"
)

// ToolRequest is the envelope a client writes on the local socket, and the
// shape the daemon forwards upstream to the extension (after rewriting Id).
type ToolRequest struct {
	Type   MessageType `json:"type"`
	Method string      `json:"method"`
	Params ToolParams  `json:"params"`
	ID     string      `json:"id"`
}

// ToolParams carries the tool name and its tool-specific argument map.
type ToolParams struct {
	Tool     string         `json:"tool"`
	Args     map[string]any `json:"args"`
	TabID    *int           `json:"tabId,omitempty"`
	WindowID *int           `json:"windowId,omitempty"`
}

// ToolReply is the envelope written back to a client (or received from the
// extension upstream). Exactly one of Result / Error is set.
type ToolReply struct {
	Type   MessageType `json:"type"`
	ID     string      `json:"id"`
	Result *ToolResult `json:"result,omitempty"`
	Error  *ToolError  `json:"error,omitempty"`
}

// ToolResult holds the ordered content parts of a successful reply.
type ToolResult struct {
	Content []ContentPart `json:"content"`
}

// ToolError holds the ordered content parts of a failed reply, plus the
// classified error kind (internal only — not required on the wire, but
// useful for clients that want to branch on it).
type ToolError struct {
	Content []ContentPart `json:"content"`
	Kind    ErrorKind     `json:"kind,omitempty"`
}

// ContentPart is either a text part or an inline/cached image part.
type ContentPart struct {
	Type     string `json:"type"` // "text" or "image"
	Text     string `json:"text,omitempty"`
	Data     string `json:"data,omitempty"` // base64, when Type == "image"
	MimeType string `json:"mimeType,omitempty"`
}

// TextPart builds a single text content part.
func TextPart(text string) ContentPart {
	return ContentPart{Type: "text", Text: text}
}

// ImagePart builds a single inline base64 image content part.
func ImagePart(data, mimeType string) ContentPart {
	return ContentPart{Type: "image", Data: data, MimeType: mimeType}
}

// NewResultReply builds a successful reply envelope for the given id.
func NewResultReply(id string, parts ...ContentPart) ToolReply {
	return ToolReply{
		Type:   MessageToolResponse,
		ID:     id,
		Result: &ToolResult{Content: parts},
	}
}

// NewErrorReply builds a failed reply envelope for the given id and kind.
func NewErrorReply(id string, kind ErrorKind, message string) ToolReply {
	return ToolReply{
		Type:  MessageToolResponse,
		ID:    id,
		Error: &ToolError{Content: []ContentPart{TextPart(message)}, Kind: kind},
	}
}

// IsError reports whether the reply carries an error.
func (r ToolReply) IsError() bool {
	return r.Error != nil
}

// ---------------------------------------------------------------------------
// Error kinds
// ---------------------------------------------------------------------------

// ErrorKind classifies a failure per the error handling design: transport,
// protocol, capability, target, timeout, or store.
type ErrorKind string

const (
	ErrTransport  ErrorKind = "transport"
	ErrProtocol   ErrorKind = "protocol"
	ErrCapability ErrorKind = "capability"
	ErrTarget     ErrorKind = "target"
	ErrTimeout    ErrorKind = "timeout"
	ErrStore      ErrorKind = "store"
)

// Error is a typed, wrappable error carrying one of the classified kinds.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError constructs a typed protocol error.
func NewError(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap constructs a typed protocol error wrapping an underlying error.
func Wrap(kind ErrorKind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// AsError extracts a *Error from err, if any is present in its chain.
func AsError(err error) (*Error, bool) {
	var pe *Error
	ok := errors.As(err, &pe)
	return pe, ok
}
