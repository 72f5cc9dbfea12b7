package models

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Message types carried in the envelope Type field
const (
	TypeRequest  = "request"
	TypeResponse = "response"
	TypeEvent    = "event"
)

// EventKeySeparator joins request_id and service_name into an event key
const EventKeySeparator = "--"

// Negative error ids are produced locally, never by the backend
const (
	ErrIDChannelClosed = -1
	ErrIDDecode        = -2
	ErrIDNoError       = -3 // reply carried no error object
)

// MaxFrameSize caps one encoded frame on either side of the channel
const MaxFrameSize = 1 << 20

var (
	ErrInvalidHead    = errors.New("request head needs both request_id and service_name")
	ErrMissingProject = errors.New("request body needs a project_id")
)

// Message is the top-level frame for everything crossing the channel
type Message struct {
	Type     string          `json:"type"` // "request", "response", or "event"
	ID       string          `json:"id,omitempty"`
	Head     *RequestHead    `json:"head,omitempty"`
	Body     json.RawMessage `json:"body,omitempty"`
	Response json.RawMessage `json:"response,omitempty"`
}

// RequestHead identifies a logical request against a backend service
type RequestHead struct {
	RequestID   string `json:"request_id"`
	ServiceName string `json:"service_name"`
}

// RequestBody is the payload sent to the backend
type RequestBody[T any] struct {
	SolutionID string `json:"solution_id,omitempty"`
	Username   string `json:"username,omitempty"`
	ProjectID  string `json:"project_id"`
	Data       T      `json:"data"`
}

// ErrorLevel controls how a failed response is presented to the user
type ErrorLevel int

const (
	Warning      ErrorLevel = 0
	NormalError  ErrorLevel = 1
	SeriousError ErrorLevel = 2
)

func (l ErrorLevel) String() string {
	switch l {
	case Warning:
		return "WARNING"
	case NormalError:
		return "NORMAL_ERROR"
	case SeriousError:
		return "SERIOUS_ERROR"
	default:
		return fmt.Sprintf("LEVEL(%d)", int(l))
	}
}

// ErrorDesc describes an error, optionally as a localization key
type ErrorDesc struct {
	DescKey bool     `json:"desc_key"`
	Desc    string   `json:"desc"`
	Params  []string `json:"params"`
}

// ResponseError is the outcome of a backend operation. ErrorID 0 means success
// regardless of ErrorLevel.
type ResponseError struct {
	ErrorID    int        `json:"error_id"`
	ErrorLevel ErrorLevel `json:"error_level"`
	ErrorDesc  ErrorDesc  `json:"error_desc"`
}

// Response is the envelope returned for every request and pushed event
type Response[T any] struct {
	Error *ResponseError `json:"error"`
	Data  T              `json:"data"`
}

// RawResponse is a response whose data has not been decoded yet
type RawResponse = Response[json.RawMessage]

// Validate checks both routing fields are set
func (h RequestHead) Validate() error {
	if h.RequestID == "" || h.ServiceName == "" {
		return fmt.Errorf("%w: got %q/%q", ErrInvalidHead, h.RequestID, h.ServiceName)
	}
	return nil
}

// EventKey returns request_id + "--" + service_name.
// No escaping is applied: {"a--b","c"} and {"a","b--c"} share a key.
func (h RequestHead) EventKey() string {
	return EventKey(h.RequestID, h.ServiceName)
}

// EventKey builds the routing key for pushed events
func EventKey(requestID, serviceName string) string {
	return requestID + EventKeySeparator + serviceName
}

// Validate checks the body carries a project id
func (b RequestBody[T]) Validate() error {
	if b.ProjectID == "" {
		return ErrMissingProject
	}
	return nil
}

// IsSuccess reports whether the response carries error_id 0.
// A nil response or a missing error object is not a success.
func IsSuccess[T any](r *Response[T]) bool {
	return r != nil && r.Error != nil && r.Error.ErrorID == 0
}

// IsError returns true if the error describes a failure
func (e *ResponseError) IsError() bool {
	return e != nil && e.ErrorID != 0
}

// LocalError builds a SERIOUS_ERROR produced on this side of the channel
func LocalError(id int, desc string) *ResponseError {
	return &ResponseError{
		ErrorID:    id,
		ErrorLevel: SeriousError,
		ErrorDesc:  ErrorDesc{Desc: desc, Params: []string{}},
	}
}

// Success builds a response error describing a successful outcome
func Success() *ResponseError {
	return &ResponseError{ErrorLevel: NormalError, ErrorDesc: ErrorDesc{Params: []string{}}}
}

// NewRequest creates a request frame
func NewRequest(id string, head RequestHead, body any) (*Message, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}
	return &Message{
		Type: TypeRequest,
		ID:   id,
		Head: &head,
		Body: raw,
	}, nil
}

// NewReply creates a response frame answering the request with the given id
func NewReply[T any](id string, head RequestHead, resp Response[T]) (*Message, error) {
	raw, err := json.Marshal(resp)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal response: %w", err)
	}
	return &Message{
		Type:     TypeResponse,
		ID:       id,
		Head:     &head,
		Response: raw,
	}, nil
}

// NewEvent creates a pushed event frame routed by head
func NewEvent[T any](head RequestHead, resp Response[T]) (*Message, error) {
	raw, err := json.Marshal(resp)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}
	return &Message{
		Type:     TypeEvent,
		Head:     &head,
		Response: raw,
	}, nil
}

// DecodeResponse parses the response part of a frame without touching data
func (m *Message) DecodeResponse() (*RawResponse, error) {
	if len(m.Response) == 0 {
		return nil, fmt.Errorf("%s frame has no response", m.Type)
	}
	var resp RawResponse
	if err := json.Unmarshal(m.Response, &resp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return &resp, nil
}

// DecodeData converts a raw response into a typed one. A decode failure is
// reported inside the envelope so callers still get a Response.
func DecodeData[T any](raw *RawResponse) *Response[T] {
	out := &Response[T]{Error: raw.Error}
	if len(raw.Data) == 0 || string(raw.Data) == "null" {
		return out
	}
	if err := json.Unmarshal(raw.Data, &out.Data); err != nil {
		out.Error = LocalError(ErrIDDecode, fmt.Sprintf("failed to decode response data: %v", err))
	}
	return out
}
