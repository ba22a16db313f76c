package httpapi

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/skywatch/skywatch-go/internal/datastore"
	"github.com/skywatch/skywatch-go/internal/errors"
)

const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, s.ctrl.GetStatus())
}

func (s *Server) handleListDetections(c echo.Context) error {
	limit := defaultListLimit
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid limit"})
		}
		limit = n
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	offset := 0
	if raw := c.QueryParam("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid offset"})
		}
		offset = n
	}

	var filter *datastore.Filter
	if class := c.QueryParam("class"); class != "" {
		filter = &datastore.Filter{Class: class}
	}

	detections, err := s.ctrl.ListDetections(limit, offset, filter)
	if err != nil {
		s.log.Error("failed to list detections", "error", err)
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: "query failed"})
	}
	return c.JSON(http.StatusOK, detections)
}

func (s *Server) handleGetDetection(c echo.Context) error {
	id, ok := parseID(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid detection id"})
	}

	det, err := s.ctrl.GetDetection(id)
	if err != nil {
		if errors.Is(err, datastore.ErrNotFound) {
			return c.JSON(http.StatusNotFound, errorResponse{Error: "detection not found"})
		}
		s.log.Error("failed to load detection", "id", id, "error", err)
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: "query failed"})
	}
	return c.JSON(http.StatusOK, det)
}

func (s *Server) handleGetSnapshot(c echo.Context) error {
	id, ok := parseID(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid detection id"})
	}

	data, err := s.ctrl.GetSnapshot(id)
	if err != nil {
		if errors.Is(err, datastore.ErrNotFound) {
			return c.JSON(http.StatusNotFound, errorResponse{Error: "snapshot not found"})
		}
		s.log.Error("failed to load snapshot", "id", id, "error", err)
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: "snapshot read failed"})
	}
	return c.Blob(http.StatusOK, "image/jpeg", data)
}

func (s *Server) handleTest(c echo.Context) error {
	component := c.Param("component")
	if err := s.ctrl.TriggerTest(c.Request().Context(), component); err != nil {
		if errors.CategoryOf(err) == errors.CategoryValidation {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		}
		return c.JSON(http.StatusBadGateway, errorResponse{Error: err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]string{"result": "ok", "component": component})
}

func (s *Server) handleRestart(c echo.Context) error {
	s.ctrl.RequestRestart()
	return c.JSON(http.StatusAccepted, map[string]string{"result": "restart requested"})
}

func parseID(c echo.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}
