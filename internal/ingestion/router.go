package ingestion

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"drilltrack/internal/metrics"
	"drilltrack/internal/survey"
	"drilltrack/internal/util/logger/sl"

	"github.com/gin-gonic/gin"
)

const (
	statusSuccess = "success"
	statusError   = "error"
	statusRunning = "running"
)

// Response is the JSON envelope of every API reply.
type Response struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	ID      *int64 `json:"id,omitempty"`
	Data    any    `json:"data,omitempty"`
}

func errorResponse(msg string) Response {
	return Response{Status: statusError, Message: msg}
}

func (s *Server) router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(s.log))
	if mw := corsMiddleware(s.config.CORSOrigins); mw != nil {
		r.Use(mw)
	}

	api := r.Group("/api")
	api.GET("/status", s.handleStatus)
	api.POST("/data", bodyLimit(s.config.MaxBodyBytes), s.handleData)
	api.GET("/data/status", s.handleDataStatus)
	api.GET("/runs/:id/points", s.handleRunPoints)

	r.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	return r
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, Response{Status: statusRunning, Message: "Data server is running"})
}

func (s *Server) handleData(c *gin.Context) {
	const op = "ingestion.handleData"
	log := s.log.With(slog.String("op", op))

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		s.metrics.IngestionRequests.WithLabelValues(metrics.OutcomeBadRequest).Inc()
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, errorResponse("request body too large"))
			return
		}
		c.JSON(http.StatusBadRequest, errorResponse("failed to read request body"))
		return
	}

	upload, err := survey.Decode(body)
	if err != nil {
		s.metrics.IngestionRequests.WithLabelValues(metrics.OutcomeBadRequest).Inc()
		c.JSON(http.StatusBadRequest, errorResponse("invalid payload: "+err.Error()))
		return
	}

	id, err := s.ingestor.Persist(c.Request.Context(), upload)
	if err != nil {
		outcome := metrics.OutcomePointFailed
		if errors.Is(err, ErrRunInsert) {
			outcome = metrics.OutcomeRunFailed
		}
		s.metrics.IngestionRequests.WithLabelValues(outcome).Inc()
		log.Error("Failed to store upload", slog.String("run", upload.Run.Name), sl.Err(err))
		c.JSON(http.StatusInternalServerError, errorResponse(err.Error()))
		return
	}

	s.received.Add(1)
	s.metrics.IngestionRequests.WithLabelValues(metrics.OutcomeSuccess).Inc()
	log.Info("Upload received",
		slog.Int64("run_id", id),
		slog.Int("points", len(upload.Points)),
		slog.String("device_id", upload.DeviceID),
	)
	c.JSON(http.StatusOK, Response{Status: statusSuccess, Message: "Data received and saved", ID: &id})
}

func (s *Server) handleDataStatus(c *gin.Context) {
	runs, err := s.ingestor.Gateway().ListRuns(c.Request.Context())
	if err != nil {
		s.log.Error("Failed to list runs", sl.Err(err))
		c.JSON(http.StatusOK, errorResponse("failed to query runs: "+err.Error()))
		return
	}
	c.JSON(http.StatusOK, Response{Status: statusRunning, Message: "Data server is running", Data: runs})
}

func (s *Server) handleRunPoints(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, errorResponse("invalid run id"))
		return
	}

	points, err := s.ingestor.Gateway().ListPoints(c.Request.Context(), id)
	if err != nil {
		s.log.Error("Failed to list points", slog.Int64("run_id", id), sl.Err(err))
		c.JSON(http.StatusInternalServerError, errorResponse("failed to query points: "+err.Error()))
		return
	}
	c.JSON(http.StatusOK, Response{Status: statusSuccess, Message: "ok", Data: points})
}
