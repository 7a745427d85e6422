// Package server is a development implementation of the remote property
// store, backed by sqlite.
package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"propsync/internal/logger"
	"propsync/internal/model"
	"propsync/internal/remote"
	"propsync/internal/repository"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

type Server struct {
	echo  *echo.Echo
	repo  *repository.PropertyRepository
	addr  string
	token string
	now   func() int64
}

// New builds a server on repo. A non-empty token is required as a bearer
// token on every request.
func New(repo *repository.PropertyRepository, addr, token string) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	s := &Server{
		echo:  e,
		repo:  repo,
		addr:  addr,
		token: token,
		now:   func() int64 { return time.Now().UnixMilli() },
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	g := s.echo.Group("/api/v1", s.authenticate)

	g.GET("/properties/exists", s.handleExists)
	g.GET("/properties", s.handleList)
	g.PUT("/properties", s.handlePut)
	g.DELETE("/properties", s.handleDelete)

	g.GET("/attachments", s.handleListAttachments)
	g.PUT("/attachments", s.handlePutAttachment)
	g.PUT("/attachments/chunks", s.handlePutChunk)
	g.PUT("/attachments/checksum", s.handlePutChecksum)
	g.GET("/attachments/:uuid/chunks/:index", s.handleGetChunk)
}

// Handler exposes the routes for embedding and tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) Start() {
	go func() {
		logger.Log.Info("property server started",
			zap.String("addr", s.addr))

		if err := s.echo.Start(s.addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log.Error("property server error", zap.Error(err))
		}
	}()
}

func (s *Server) Stop(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) authenticate(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if s.token != "" && c.Request().Header.Get(echo.HeaderAuthorization) != "Bearer "+s.token {
			return apiError(c, http.StatusUnauthorized, "E_UNAUTHORIZED", "missing or invalid token")
		}
		return next(c)
	}
}

func apiError(c echo.Context, status int, code, msg string) error {
	return c.JSON(status, &remote.APIError{Code: code, Message: msg})
}

// fail maps repository errors onto API error codes.
func fail(c echo.Context, err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return apiError(c, http.StatusNotFound, remote.CodeNotFound, err.Error())
	case errors.Is(err, repository.ErrAlreadyExists):
		return apiError(c, http.StatusConflict, remote.CodeAlreadyExists, err.Error())
	case errors.Is(err, repository.ErrChecksumMismatch):
		return apiError(c, http.StatusConflict, remote.CodeChecksumMismatch, err.Error())
	case errors.Is(err, repository.ErrLengthMismatch):
		return apiError(c, http.StatusConflict, remote.CodeLengthMismatch, err.Error())
	default:
		logger.Log.Error("request failed",
			zap.String("path", c.Path()),
			zap.Error(err))
		return apiError(c, http.StatusInternalServerError, remote.CodeInternal, err.Error())
	}
}

func requireKey(c echo.Context) (string, bool) {
	key := c.QueryParam("key")
	return key, key != ""
}

func (s *Server) handleExists(c echo.Context) error {
	key, ok := requireKey(c)
	if !ok {
		return apiError(c, http.StatusBadRequest, remote.CodeBadRequest, "key required")
	}

	exists, err := s.repo.Exists(key)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]bool{"exists": exists})
}

func (s *Server) handleList(c echo.Context) error {
	props, err := s.repo.List(c.QueryParam("filter"))
	if err != nil {
		return apiError(c, http.StatusBadRequest, remote.CodeBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, props)
}

func (s *Server) handlePut(c echo.Context) error {
	var req model.PutRequest
	if err := c.Bind(&req); err != nil {
		return apiError(c, http.StatusBadRequest, remote.CodeBadRequest, "invalid body")
	}
	if key := c.QueryParam("key"); key != "" {
		req.Key = key
	}
	if req.Key == "" {
		return apiError(c, http.StatusBadRequest, remote.CodeBadRequest, "key required")
	}
	req.Bulk = isBulk(c)

	result, err := s.repo.Put(req, s.now())
	if err != nil {
		return fail(c, err)
	}

	if !req.Bulk && result != model.PutSkip {
		logger.Log.Info("property changed",
			zap.String("key", req.Key),
			zap.String("result", string(result)))
	}

	return c.JSON(http.StatusOK, map[string]model.PutResult{"result": result})
}

func (s *Server) handleDelete(c echo.Context) error {
	key, ok := requireKey(c)
	if !ok {
		return apiError(c, http.StatusBadRequest, remote.CodeBadRequest, "key required")
	}

	n, err := s.repo.Delete(key)
	if err != nil {
		return fail(c, err)
	}

	logger.Log.Info("properties deleted",
		zap.String("key", key),
		zap.Int64("count", n))
	return c.NoContent(http.StatusNoContent)
}

type attachmentRequest struct {
	Length int64 `json:"length"`
}

func (s *Server) handlePutAttachment(c echo.Context) error {
	key, ok := requireKey(c)
	name := c.QueryParam("name")
	if !ok || name == "" {
		return apiError(c, http.StatusBadRequest, remote.CodeBadRequest, "key and name required")
	}

	var req attachmentRequest
	if err := c.Bind(&req); err != nil || req.Length < 0 {
		return apiError(c, http.StatusBadRequest, remote.CodeBadRequest, "invalid body")
	}

	rec, err := s.repo.PutAttachment(key, name, c.QueryParam("collection"), req.Length)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"uuid": rec.UUID})
}

func (s *Server) handlePutChunk(c echo.Context) error {
	key, ok := requireKey(c)
	name := c.QueryParam("name")
	index, err := strconv.Atoi(c.QueryParam("index"))
	if !ok || name == "" || err != nil || index < 0 {
		return apiError(c, http.StatusBadRequest, remote.CodeBadRequest, "key, name and index required")
	}

	data, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return apiError(c, http.StatusBadRequest, remote.CodeBadRequest, "failed to read chunk")
	}

	if err := s.repo.PutChunk(key, name, index, data); err != nil {
		return fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

type checksumRequest struct {
	Checksum string `json:"checksum"`
}

func (s *Server) handlePutChecksum(c echo.Context) error {
	key, ok := requireKey(c)
	name := c.QueryParam("name")
	if !ok || name == "" {
		return apiError(c, http.StatusBadRequest, remote.CodeBadRequest, "key and name required")
	}

	var req checksumRequest
	if err := c.Bind(&req); err != nil || req.Checksum == "" {
		return apiError(c, http.StatusBadRequest, remote.CodeBadRequest, "checksum required")
	}

	if err := s.repo.Finalize(key, name, req.Checksum, s.now()); err != nil {
		return fail(c, err)
	}

	if !isBulk(c) {
		logger.Log.Info("attachment verified",
			zap.String("key", key),
			zap.String("name", name))
	}
	return c.NoContent(http.StatusNoContent)
}

func isBulk(c echo.Context) bool {
	return c.QueryParam("bulk") == "true"
}

func (s *Server) handleListAttachments(c echo.Context) error {
	key, ok := requireKey(c)
	if !ok {
		return apiError(c, http.StatusBadRequest, remote.CodeBadRequest, "key required")
	}

	atts, err := s.repo.ListAttachments(key, c.QueryParam("collection"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, atts)
}

func (s *Server) handleGetChunk(c echo.Context) error {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil || index < 0 {
		return apiError(c, http.StatusBadRequest, remote.CodeBadRequest, "invalid index")
	}

	data, err := s.repo.GetChunk(c.Param("uuid"), index)
	if err != nil {
		return fail(c, err)
	}
	if data == nil {
		return c.NoContent(http.StatusNoContent)
	}
	return c.Blob(http.StatusOK, echo.MIMEOctetStream, data)
}
