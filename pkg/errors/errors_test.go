package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodeOfThroughWrapping(t *testing.T) {
	base := New(CodeNotFound, "project not found")
	wrapped := fmt.Errorf("load: %w", base)

	assert.True(t, IsCode(wrapped, CodeNotFound))
	assert.False(t, IsCode(wrapped, CodeConflict))
	assert.Equal(t, CodeUnknown, CodeOf(fmt.Errorf("plain")))
}

func TestHTTPStatus(t *testing.T) {
	cases := map[Code]int{
		CodeInvalid:       http.StatusBadRequest,
		CodeUnauthorized:  http.StatusUnauthorized,
		CodeForbidden:     http.StatusForbidden,
		CodeNotFound:      http.StatusNotFound,
		CodeConflict:      http.StatusConflict,
		CodeAlreadyExists: http.StatusConflict,
		CodeUnavailable:   http.StatusServiceUnavailable,
		CodeDeadline:      http.StatusGatewayTimeout,
		CodeRateLimited:   http.StatusTooManyRequests,
		CodeInternal:      http.StatusInternalServerError,
	}
	for code, want := range cases {
		assert.Equal(t, want, HTTPStatus(New(code, "x")), code)
	}
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(fmt.Errorf("boom")))
}

func TestErrorString(t *testing.T) {
	err := Wrap(fmt.Errorf("dial tcp"), CodeUnavailable, "redis down").WithMeta("addr", "127.0.0.1:6379")
	assert.Equal(t, "unavailable: redis down: dial tcp", err.Error())
	assert.Equal(t, "127.0.0.1:6379", err.Meta["addr"])
}
