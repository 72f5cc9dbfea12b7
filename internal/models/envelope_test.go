package models

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventKey(t *testing.T) {
	tests := []struct {
		head     RequestHead
		expected string
	}{
		{RequestHead{RequestID: "r1", ServiceName: "svc"}, "r1--svc"},
		{RequestHead{RequestID: "compile", ServiceName: "pou"}, "compile--pou"},
		{RequestHead{RequestID: "", ServiceName: "svc"}, "--svc"},
		{RequestHead{RequestID: "a b", ServiceName: "c"}, "a b--c"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := tt.head.EventKey(); got != tt.expected {
				t.Errorf("EventKey(%+v) = %q, want %q", tt.head, got, tt.expected)
			}
		})
	}
}

func TestEventKeyIsOrderSensitive(t *testing.T) {
	a := RequestHead{RequestID: "x", ServiceName: "y"}
	b := RequestHead{RequestID: "y", ServiceName: "x"}
	assert.NotEqual(t, a.EventKey(), b.EventKey())
}

func TestEventKeyCollidesOnEmbeddedSeparator(t *testing.T) {
	a := RequestHead{RequestID: "a--b", ServiceName: "c"}
	b := RequestHead{RequestID: "a", ServiceName: "b--c"}
	assert.Equal(t, a.EventKey(), b.EventKey(), "separator is not escaped")
}

func TestRequestHeadValidate(t *testing.T) {
	tests := []struct {
		name    string
		head    RequestHead
		wantErr bool
	}{
		{"both set", RequestHead{RequestID: "r", ServiceName: "s"}, false},
		{"missing request id", RequestHead{ServiceName: "s"}, true},
		{"missing service", RequestHead{RequestID: "r"}, true},
		{"empty", RequestHead{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.head.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidHead))
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestRequestBodyValidate(t *testing.T) {
	assert.ErrorIs(t, RequestBody[int]{Data: 1}.Validate(), ErrMissingProject)
	assert.NoError(t, RequestBody[int]{ProjectID: "p"}.Validate())
}

func TestIsSuccess(t *testing.T) {
	tests := []struct {
		name string
		resp *Response[string]
		want bool
	}{
		{"nil response", nil, false},
		{"missing error", &Response[string]{Data: "x"}, false},
		{"zero id", &Response[string]{Error: &ResponseError{ErrorID: 0}}, true},
		{"zero id serious level", &Response[string]{Error: &ResponseError{ErrorID: 0, ErrorLevel: SeriousError}}, true},
		{"nonzero id", &Response[string]{Error: &ResponseError{ErrorID: 5}}, false},
		{"nonzero id warning level", &Response[string]{Error: &ResponseError{ErrorID: 5, ErrorLevel: Warning}}, false},
		{"local negative id", &Response[string]{Error: LocalError(ErrIDDecode, "bad")}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsSuccess(tt.resp); got != tt.want {
				t.Errorf("IsSuccess() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsSuccessToleratesMalformedJSON(t *testing.T) {
	for _, raw := range []string{`{}`, `{"error":null}`, `{"data":1}`} {
		var resp Response[json.RawMessage]
		require.NoError(t, json.Unmarshal([]byte(raw), &resp))
		assert.False(t, IsSuccess(&resp), raw)
	}
}

func TestErrorLevelString(t *testing.T) {
	assert.Equal(t, "WARNING", Warning.String())
	assert.Equal(t, "SERIOUS_ERROR", SeriousError.String())
	assert.Equal(t, "LEVEL(7)", ErrorLevel(7).String())
}

func TestWireShape(t *testing.T) {
	head := RequestHead{RequestID: "r1", ServiceName: "svc"}
	msg, err := NewRequest("abc", head, RequestBody[map[string]int]{ProjectID: "p1", Data: map[string]int{"n": 1}})
	require.NoError(t, err)

	data, err := json.Marshal(msg)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"type": "request",
		"id": "abc",
		"head": {"request_id": "r1", "service_name": "svc"},
		"body": {"project_id": "p1", "data": {"n": 1}}
	}`, string(data))
}

func TestDecodeData(t *testing.T) {
	type payload struct {
		Name string `json:"name"`
	}

	ev, err := NewEvent(RequestHead{RequestID: "r", ServiceName: "s"}, Response[payload]{
		Error: Success(),
		Data:  payload{Name: "main.st"},
	})
	require.NoError(t, err)

	raw, err := ev.DecodeResponse()
	require.NoError(t, err)

	typed := DecodeData[payload](raw)
	assert.True(t, IsSuccess(typed))
	assert.Equal(t, "main.st", typed.Data.Name)

	bad := DecodeData[int](raw)
	require.NotNil(t, bad.Error)
	assert.Equal(t, ErrIDDecode, bad.Error.ErrorID)
	assert.False(t, IsSuccess(bad))
}

func TestDecodeResponseMissing(t *testing.T) {
	_, err := (&Message{Type: TypeEvent}).DecodeResponse()
	assert.Error(t, err)
}
