package main

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"

	"bitbucket.org/avalia/dashboard_backend/docstore"
	"bitbucket.org/avalia/dashboard_backend/middlewares"
	"bitbucket.org/avalia/dashboard_backend/models"
	"bitbucket.org/avalia/dashboard_backend/utils"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// api serves the dashboard routes. The service is installed once the store is open;
// until then every /api route answers 503.
type api struct {
	svc    atomic.Pointer[models.Service]
	logger *logrus.Logger
}

func newAPI(logger *logrus.Logger) *api {
	return &api{logger: logger}
}

func (a *api) setService(svc *models.Service) {
	a.svc.Store(svc)
}

func (a *api) service() *models.Service {
	return a.svc.Load()
}

// readinessGate lets /healthz through and holds everything else until the service is up.
func (a *api) readinessGate(c *gin.Context) {
	if c.Request.URL.Path == "/healthz" {
		c.Next()
		return
	}
	if a.service() == nil {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, apiResponse{Success: false, Error: "service starting"})
		return
	}
	c.Next()
}

// newRouter builds the engine without CORS or rate limiting so tests can drive it
// directly; main adds those in front.
func newRouter(a *api, extra ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(middlewares.RequestContextMiddleware())
	r.Use(a.readinessGate)
	r.Use(extra...)
	r.Use(customErrorLogger(a.logger))
	r.Use(gin.CustomRecovery(recoverPanic))

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	g := r.Group("/api")
	g.GET("/entities", a.listEntities)
	g.POST("/entities", a.createEntity)
	g.GET("/entity", a.getEntity)
	g.PUT("/entity", a.updateEntity)
	g.DELETE("/entity", a.deleteEntity)
	g.PUT("/entity/team", a.setEntityTeam)
	g.GET("/entity/history", a.entityHistory)
	g.POST("/entity/revert", a.revertEntity)

	g.GET("/stats", a.entityStats)

	g.GET("/use-cases", a.listUseCases)
	g.POST("/use-cases", a.createUseCase)
	g.GET("/use-case", a.getUseCase)
	g.PUT("/use-case", a.updateUseCase)
	g.DELETE("/use-case", a.deleteUseCase)
	g.GET("/use-case/history", a.useCaseHistory)
	g.POST("/use-case/revert", a.revertUseCase)

	g.GET("/metrics", a.listMetrics)
	g.POST("/metrics", a.addMetricSnapshot)
	g.PUT("/metrics", a.updateMetricSnapshot)
	g.GET("/metrics/history", a.metricHistory)
	g.POST("/metrics/revert", a.revertMetricSnapshot)

	g.GET("/files", a.listFiles)
	g.POST("/files", a.registerFile)
	g.DELETE("/files", a.deleteFile)

	g.GET("/dashboard-config", a.getDashboardConfig)
	g.PUT("/dashboard-config", a.saveDashboardConfig)
	g.DELETE("/dashboard-config", a.deleteDashboardConfig)
	g.GET("/dashboard-config/history", a.dashboardConfigHistory)

	g.GET("/export", a.exportEntity)

	r.NoMethod(customMethodNotAllowedHandler)
	r.NoRoute(customNotFoundHandler)
	return r
}

// customErrorLogger is a custom Gin middleware that logs only errors
func customErrorLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 {
			utils.LoggerWithContext(c.Request.Context(), logger).WithFields(logrus.Fields{
				"method": c.Request.Method,
				"path":   c.Request.URL.Path,
				"status": c.Writer.Status(),
			}).Error(c.Errors.String())
		}
	}
}

// readBody decodes a JSON object body. A missing body reads as an empty object so
// DELETE callers can pass identifiers in the query string instead.
func readBody(c *gin.Context) (docstore.Data, error) {
	body := docstore.Data{}
	if c.Request.Body == nil || c.Request.Body == http.NoBody {
		return body, nil
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		if errors.Is(err, io.EOF) {
			return docstore.Data{}, nil
		}
		return nil, utils.BindingError(err)
	}
	return body, nil
}

func bindJSON(c *gin.Context, dst any) error {
	if err := c.ShouldBindJSON(dst); err != nil {
		return utils.BindingError(err)
	}
	return nil
}

// takeString removes key from body and returns it, falling back to the query string.
func takeString(c *gin.Context, body docstore.Data, key string) (string, error) {
	if v, ok := body[key]; ok {
		delete(body, key)
		if v == nil {
			return "", nil
		}
		s, ok := v.(string)
		if !ok {
			return "", utils.NewValidationError(key, "must be a string")
		}
		return strings.TrimSpace(s), nil
	}
	return strings.TrimSpace(c.Query(key)), nil
}

// takeStrings reads several identifiers with takeString, stopping at the first error.
func takeStrings(c *gin.Context, body docstore.Data, keys ...string) ([]string, error) {
	out := make([]string, len(keys))
	for i, key := range keys {
		v, err := takeString(c, body, key)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// queryLimit parses ?limit=; 0 means no limit.
func queryLimit(c *gin.Context) (int, error) {
	raw := strings.TrimSpace(c.Query("limit"))
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, utils.NewValidationError("limit", "must be a non-negative integer")
	}
	return n, nil
}

func queryCategory(c *gin.Context) (models.MetricCategory, error) {
	return models.ParseMetricCategory(c.Query("category"))
}
