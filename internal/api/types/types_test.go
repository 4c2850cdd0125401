package types

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErr "github.com/lumnicode/engine/pkg/errors"
)

func TestWriteErrorMapsCodes(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{appErr.New(appErr.CodeNotFound, "project not found"), http.StatusNotFound, "not_found"},
		{appErr.Wrap(errors.New("dup"), appErr.CodeConflict, "already exists"), http.StatusConflict, "conflict"},
		{appErr.New(appErr.CodeForbidden, "not your session"), http.StatusForbidden, "forbidden"},
		{errors.New("pq: connection refused"), http.StatusInternalServerError, "internal"},
	}
	for _, tc := range cases {
		rr := httptest.NewRecorder()
		WriteError(rr, tc.err)
		require.Equal(t, tc.status, rr.Code)

		var body APIResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
		assert.False(t, body.Success)
		assert.Equal(t, tc.code, body.Error.Code)
		assert.NotContains(t, body.Error.Message, "connection refused")
	}
}
