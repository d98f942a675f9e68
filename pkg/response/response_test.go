package response

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newContext() (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	return c, w
}

func TestSuccessReturnsBareResource(t *testing.T) {
	c, w := newContext()
	Success(c, []string{"a", "b"})

	assert.Equal(t, http.StatusOK, w.Code)
	var got []string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, []string{"a", "b"}, got)
}

func TestUnauthorizedHasNoBody(t *testing.T) {
	c, w := newContext()
	Unauthorized(c)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Empty(t, w.Body.String())
	assert.True(t, c.IsAborted())
}

func TestErrorBody(t *testing.T) {
	c, w := newContext()
	Forbidden(c, "无权访问")

	assert.Equal(t, http.StatusForbidden, w.Code)
	var body ErrorBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, CodeForbidden, body.Code)
	assert.Equal(t, "无权访问", body.Message)
}

func TestNoContent(t *testing.T) {
	c, w := newContext()
	NoContent(c)
	c.Writer.WriteHeaderNow()
	assert.Equal(t, http.StatusNoContent, w.Code)
}
