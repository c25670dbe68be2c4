package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// apiResponse is the envelope every /api/v1 route answers with. Code is 0 on
// success and the HTTP status otherwise.
type apiResponse struct {
	Code    int            `json:"code"`
	Message string         `json:"message"`
	Data    any            `json:"data,omitempty"`
	Meta    map[string]any `json:"meta,omitempty"`
}

func Ok(c *gin.Context, data any, meta map[string]any) {
	c.JSON(http.StatusOK, apiResponse{Code: 0, Message: "ok", Data: data, Meta: meta})
}

// Page answers a list query with limit/offset paging in meta.
func Page(c *gin.Context, items any, limit, offset, count int) {
	Ok(c, items, paginationMeta(limit, offset, count))
}

// Accepted is used for work that continues after the response is written.
func Accepted(c *gin.Context, data any) {
	c.JSON(http.StatusAccepted, apiResponse{Code: 0, Message: "accepted", Data: data})
}

func Error(c *gin.Context, status int, message string, meta map[string]any) {
	c.JSON(status, apiResponse{Code: status, Message: message, Meta: meta})
}

// Unavailable reports a dependency that was not wired at startup.
func Unavailable(c *gin.Context, what string) {
	Error(c, http.StatusInternalServerError, what+" unavailable", nil)
}

// Upstream reports a failing backing store.
func Upstream(c *gin.Context, err error) {
	Error(c, http.StatusBadGateway, err.Error(), nil)
}
