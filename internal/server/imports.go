package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	importdomain "github.com/smallbiznis/wealthdesk/internal/importjob/domain"
	"github.com/smallbiznis/wealthdesk/internal/importjob/progress"
)

func (s *Server) StartImport(c *gin.Context) {
	var req importdomain.StartImportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	summary, err := s.importSvc.StartImport(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, summary)
}

func (s *Server) ListImports(c *gin.Context) {
	var req importdomain.ListImportsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	resp, err := s.importSvc.ListJobs(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) GetImport(c *gin.Context) {
	jobID, err := jobIDParam(c)
	if err != nil {
		AbortWithError(c, importdomain.ErrJobNotFound)
		return
	}

	job, err := s.importSvc.GetJob(c.Request.Context(), jobID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

func (s *Server) RequestUndo(c *gin.Context) {
	jobID, err := jobIDParam(c)
	if err != nil {
		AbortWithError(c, importdomain.ErrJobNotFound)
		return
	}

	state, err := s.undoSvc.RequestUndo(c.Request.Context(), jobID)
	if errors.Is(err, importdomain.ErrUndoInProgress) {
		// The job is already being reversed. Report the running state
		// instead of failing; both callers observe the same outcome.
		current, stateErr := s.undoSvc.UndoState(c.Request.Context(), jobID)
		if stateErr != nil {
			AbortWithError(c, stateErr)
			return
		}
		c.JSON(http.StatusAccepted, current)
		return
	}
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, state)
}

func (s *Server) GetUndoState(c *gin.Context) {
	jobID, err := jobIDParam(c)
	if err != nil {
		AbortWithError(c, importdomain.ErrJobNotFound)
		return
	}

	state, err := s.undoSvc.UndoState(c.Request.Context(), jobID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, state)
}

// StreamImportEvents serves progress for both the import and any undo
// run over SSE. Subscribers that join late receive the buffered events
// first.
func (s *Server) StreamImportEvents(c *gin.Context) {
	if s.progressHub == nil {
		AbortWithError(c, ErrServiceUnavailable)
		return
	}

	jobID, err := jobIDParam(c)
	if err != nil {
		AbortWithError(c, importdomain.ErrJobNotFound)
		return
	}

	// Visibility check: the stream only exists for jobs the caller's
	// firm owns.
	if _, err := s.importSvc.GetJob(c.Request.Context(), jobID); err != nil {
		AbortWithError(c, err)
		return
	}

	subscription, backlog, err := s.progressHub.Subscribe(jobID.String())
	if err != nil {
		AbortWithError(c, ErrServiceUnavailable)
		return
	}
	defer subscription.Close()

	writer := c.Writer
	headers := writer.Header()
	headers.Set("Content-Type", "text/event-stream")
	headers.Set("Cache-Control", "no-cache")
	headers.Set("Connection", "keep-alive")
	headers.Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	flusher, ok := writer.(http.Flusher)
	if !ok {
		AbortWithError(c, ErrServiceUnavailable)
		return
	}

	if _, err := io.WriteString(writer, "retry: 2000\n\n"); err != nil {
		return
	}

	for _, event := range backlog {
		if err := writeProgressEvent(writer, event); err != nil {
			return
		}
	}
	flusher.Flush()

	ctx := c.Request.Context()
	heartbeat := time.NewTicker(15 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case event := <-subscription.Events():
			if err := writeProgressEvent(writer, event); err != nil {
				return
			}
			flusher.Flush()
		case <-heartbeat.C:
			if _, err := io.WriteString(writer, ": heartbeat\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeProgressEvent(w io.Writer, event progress.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}

func jobIDParam(c *gin.Context) (snowflake.ID, error) {
	raw := strings.TrimSpace(c.Param("id"))
	if raw == "" {
		return 0, ErrInvalidRequest
	}
	return snowflake.ParseString(raw)
}
