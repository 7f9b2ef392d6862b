package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/LJTian/onconews/internal/filter"
	"github.com/LJTian/onconews/internal/logging"
	"github.com/LJTian/onconews/internal/storage"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Server struct {
	store       storage.Reader
	filterStats filter.Stats
	logger      *zap.Logger
}

func NewServer(store storage.Reader, filterStats filter.Stats, logger *zap.Logger) *Server {
	return &Server{
		store:       store,
		filterStats: filterStats,
		logger:      logging.OrNop(logger).Named("api"),
	}
}

func (s *Server) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", s.health)

	v1 := r.Group("/api/v1")
	{
		v1.GET("/stats", s.stats)
		v1.GET("/news", s.listNews)
		v1.GET("/news/:id", s.getNews)
		v1.GET("/sources", s.sources)
		v1.GET("/export", s.export)
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) stats(c *gin.Context) {
	st, err := s.store.Statistics(c.Request.Context())
	if err != nil {
		s.internalError(c, "statistics", err)
		return
	}
	ok(c, gin.H{
		"statistics": st,
		"filter":     s.filterStats,
	})
}

func (s *Server) listNews(c *gin.Context) {
	q := storage.Query{
		Search:   c.Query("search"),
		Source:   c.Query("source"),
		Page:     queryInt(c, "page", 1),
		PageSize: queryInt(c, "page_size", 20),
	}

	page, err := s.store.ListNews(c.Request.Context(), q)
	if err != nil {
		s.internalError(c, "list news", err)
		return
	}
	ok(c, page)
}

func (s *Server) getNews(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    "bad_request",
			"message": "invalid id",
		})
		return
	}

	item, err := s.store.GetByID(c.Request.Context(), uint(id))
	if errors.Is(err, storage.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{
			"code":    "not_found",
			"message": "article not found",
		})
		return
	}
	if err != nil {
		s.internalError(c, "get news", err)
		return
	}
	ok(c, item)
}

func (s *Server) sources(c *gin.Context) {
	items, err := s.store.Sources(c.Request.Context())
	if err != nil {
		s.internalError(c, "list sources", err)
		return
	}
	ok(c, items)
}

func (s *Server) export(c *gin.Context) {
	items, err := s.store.ExportCompleted(c.Request.Context())
	if err != nil {
		s.internalError(c, "export", err)
		return
	}
	ok(c, items)
}

func (s *Server) internalError(c *gin.Context, op string, err error) {
	s.logger.Error(op+" failed", zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{
		"code":    "internal_error",
		"message": "internal server error",
	})
}

func ok(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{
		"code":    "ok",
		"message": "success",
		"data":    data,
	})
}

func queryInt(c *gin.Context, key string, def int) int {
	n, err := strconv.Atoi(c.DefaultQuery(key, strconv.Itoa(def)))
	if err != nil || n <= 0 {
		return def
	}
	return n
}
