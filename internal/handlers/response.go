package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/NREL/torc-sub002/internal/apierr"
	"github.com/NREL/torc-sub002/internal/repos"
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// RespondError maps a typed service error onto its HTTP status; anything
// untyped is a 500.
func RespondError(c *gin.Context, err error) {
	c.JSON(apierr.Status(err), APIError{
		Message: err.Error(),
		Code:    apierr.CodeOf(err),
	})
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

func RespondCreated(c *gin.Context, payload any) {
	c.JSON(http.StatusCreated, payload)
}

func RespondNoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil {
		RespondError(c, apierr.BadRequest("invalid %s %q", name, c.Param(name)))
		return 0, false
	}
	return id, true
}

func queryInt(c *gin.Context, name string, fallback int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

func queryBool(c *gin.Context, name string) bool {
	v, _ := strconv.ParseBool(c.Query(name))
	return v
}

func queryBoolDefault(c *gin.Context, name string, fallback bool) bool {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return v
}

func queryInt64Ptr(c *gin.Context, name string) *int64 {
	raw := c.Query(name)
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil
	}
	return &v
}

func pageFromQuery(c *gin.Context) repos.Page {
	return repos.Page{
		Offset:      queryInt(c, "offset", 0),
		Limit:       queryInt(c, "limit", 0),
		SortBy:      c.Query("sort_by"),
		ReverseSort: queryBool(c, "reverse_sort"),
	}
}

// requestUser identifies the caller for access checks. There is no auth
// layer; workers self-report through the header.
func requestUser(c *gin.Context) string {
	if u := c.GetHeader("X-Torc-User"); u != "" {
		return u
	}
	return c.Query("user")
}
