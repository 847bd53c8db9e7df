package server

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/vesaa/iotlinker/internal/models"
	"github.com/vesaa/iotlinker/internal/store"
)

const (
	defaultDataLimit = 100
	maxDataLimit     = 10000
)

func isUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil && len(s) == 36
}

// tenantQuery reads the mandatory tenant_id query parameter and checks that
// the caller may act for it.
func (s *Server) tenantQuery(c *gin.Context) (string, bool) {
	tenantID := c.Query("tenant_id")
	switch {
	case tenantID == "":
		s.fail(c, store.Invalid("tenant_id", "field required"))
		return "", false
	case !isUUID(tenantID):
		s.fail(c, store.Invalid("tenant_id", "must be a valid UUID"))
		return "", false
	}
	if !s.authorizeTenant(c, tenantID) {
		return "", false
	}
	return tenantID, true
}

// pathID reads the :id path parameter.
func (s *Server) pathID(c *gin.Context) (string, bool) {
	id := c.Param("id")
	if !isUUID(id) {
		s.fail(c, store.Invalid("id", "must be a valid UUID"))
		return "", false
	}
	return id, true
}

// optionalUUIDQuery reads an optional UUID query parameter.
func optionalUUIDQuery(c *gin.Context, name string) (string, error) {
	v := c.Query(name)
	if v != "" && !isUUID(v) {
		return "", store.Invalid(name, "must be a valid UUID")
	}
	return v, nil
}

func intQuery(c *gin.Context, name string, def, lo, hi int) (int, error) {
	raw, ok := c.GetQuery(name)
	if !ok || raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, store.Invalid(name, "must be an integer")
	}
	if n < lo {
		return 0, store.Invalid(name, fmt.Sprintf("must be greater than or equal to %d", lo))
	}
	if n > hi {
		return 0, store.Invalid(name, fmt.Sprintf("must be less than or equal to %d", hi))
	}
	return n, nil
}

// pageQuery reads page (>= 1) and page_size (1..max_page_size).
func (s *Server) pageQuery(c *gin.Context) (models.Page, error) {
	page, err := intQuery(c, "page", 1, 1, math.MaxInt)
	if err != nil {
		return models.Page{}, err
	}
	size, err := intQuery(c, "page_size", s.cfg.DefaultPageSize, 1, s.cfg.MaxPageSize)
	if err != nil {
		return models.Page{}, err
	}
	return models.Page{Number: page, Size: size}, nil
}

func statusQuery(c *gin.Context) (models.DeviceStatus, error) {
	st := models.DeviceStatus(c.Query("status"))
	if st != "" && !st.Valid() {
		return "", store.Invalid("status", "must be one of: online, offline, warning, error, maintenance")
	}
	return st, nil
}

func timeQuery(c *gin.Context, name string) (*time.Time, error) {
	raw := c.Query(name)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return nil, store.Invalid(name, "must be an RFC 3339 timestamp")
	}
	return &t, nil
}

func boolQuery(c *gin.Context, name string) (*bool, error) {
	raw := c.Query(name)
	if raw == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, store.Invalid(name, "must be a boolean")
	}
	return &b, nil
}

// timeRange reads start_time/end_time and rejects an inverted window.
func timeRange(c *gin.Context) (start, end *time.Time, err error) {
	if start, err = timeQuery(c, "start_time"); err != nil {
		return nil, nil, err
	}
	if end, err = timeQuery(c, "end_time"); err != nil {
		return nil, nil, err
	}
	if start != nil && end != nil && end.Before(*start) {
		return nil, nil, store.Invalid("end_time", "must not be before start_time")
	}
	return start, end, nil
}
