package pagination

import (
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func paramsFor(t *testing.T, query string) Params {
	t.Helper()
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest("GET", "/?"+query, nil)
	return Parse(c)
}

func TestParseDefaults(t *testing.T) {
	p := paramsFor(t, "")
	assert.Equal(t, DefaultPage, p.Page)
	assert.Equal(t, DefaultLimit, p.Limit)
	assert.Zero(t, p.Offset())
}

func TestParseClampsOutOfRange(t *testing.T) {
	p := paramsFor(t, "page=0&limit=-5")
	assert.Equal(t, DefaultPage, p.Page)
	assert.Equal(t, DefaultLimit, p.Limit)

	p = paramsFor(t, "page=3&limit=1000")
	assert.Equal(t, 3, p.Page)
	assert.Equal(t, MaxLimit, p.Limit)
	assert.Equal(t, 2*MaxLimit, p.Offset())
}

func TestParseIgnoresGarbage(t *testing.T) {
	p := paramsFor(t, "page=abc&limit=xyz")
	assert.Equal(t, DefaultPage, p.Page)
	assert.Equal(t, DefaultLimit, p.Limit)
}

func TestMeta(t *testing.T) {
	p := Params{Page: 2, Limit: 25}
	meta := p.Meta(101)
	assert.Equal(t, int64(101), meta["total"])
	assert.Equal(t, 2, meta["page"])
	assert.Equal(t, 25, meta["limit"])
}
