package pagination

import (
	"strconv"

	"github.com/gin-gonic/gin"
)

const (
	DefaultPage  = 1
	DefaultLimit = 20
	MaxLimit     = 100
)

// Params holds validated pagination parameters.
type Params struct {
	Page   int
	Limit  int
	Offset int
}

// Meta is the list-response envelope tail the SPA paginator consumes.
type Meta struct {
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
	Total int64 `json:"total"`
	Pages int   `json:"pages"`
}

// Parse reads page/limit from the query string, clamping out-of-range
// values instead of rejecting them.
func Parse(c *gin.Context) Params {
	page, _ := strconv.Atoi(c.DefaultQuery("page", strconv.Itoa(DefaultPage)))
	if page < 1 {
		page = DefaultPage
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(DefaultLimit)))
	if limit < 1 {
		limit = DefaultLimit
	} else if limit > MaxLimit {
		limit = MaxLimit
	}
	return Params{Page: page, Limit: limit, Offset: (page - 1) * limit}
}

// MetaFor pairs the request params with the repository's total count.
func (p Params) MetaFor(total int64) Meta {
	pages := int(total) / p.Limit
	if int(total)%p.Limit != 0 {
		pages++
	}
	return Meta{Page: p.Page, Limit: p.Limit, Total: total, Pages: pages}
}
