package api

import (
	"context"
	stderrors "errors"
	"net/http"
	"time"

	"journal-sync/internal/config"
	"journal-sync/internal/db"
	"journal-sync/internal/journal"
	"journal-sync/internal/logger"
	"journal-sync/internal/model"
	"journal-sync/internal/storage"
	"journal-sync/pkg/errors"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

const dateLayout = "2006-01-02"

// SnapshotReader reads archived attestation snapshots back.
type SnapshotReader interface {
	Load(ctx context.Context, groupID int64, period model.Period, id string) (*storage.AttestationSnapshot, error)
}

type Handler struct {
	manager   *journal.Manager
	repo      db.Repository
	snapshots SnapshotReader
	cfg       *config.Config
	log       zerolog.Logger
}

// NewHandler wires the HTTP surface. repo and snapshots may be nil when the
// audit database or the snapshot archive is not configured.
func NewHandler(manager *journal.Manager, repo db.Repository, snapshots SnapshotReader, cfg *config.Config) *Handler {
	return &Handler{
		manager:   manager,
		repo:      repo,
		snapshots: snapshots,
		cfg:       cfg,
		log:       logger.For("api"),
	}
}

type openJournalRequest struct {
	GroupID   int64  `json:"group_id" binding:"required"`
	SubjectID *int64 `json:"subject_id"`
	StartDate string `json:"start_date" binding:"required,datetime=2006-01-02"`
	EndDate   string `json:"end_date" binding:"required,datetime=2006-01-02"`
	Period    string `json:"period" binding:"omitempty,oneof=first second all"`
}

type attendanceRequest struct {
	LessonID  int64   `json:"lesson_id" binding:"required"`
	StudentID int64   `json:"student_id" binding:"required"`
	Status    *string `json:"status"`
}

type cellRequest struct {
	LessonID  int64 `json:"lesson_id" binding:"required"`
	StudentID int64 `json:"student_id" binding:"required"`
}

type gradeRequest struct {
	LessonID   int64 `json:"lesson_id" binding:"required"`
	StudentID  int64 `json:"student_id" binding:"required"`
	Grade      *int  `json:"grade"`
	WorkNumber *int  `json:"work_number" binding:"omitempty,min=1"`
}

type periodRequest struct {
	Period string `json:"period" binding:"required,oneof=first second all"`
}

func (h *Handler) OpenJournal(c *gin.Context) {
	var req openJournalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	start, _ := time.Parse(dateLayout, req.StartDate)
	end, _ := time.Parse(dateLayout, req.EndDate)
	if end.Before(start) {
		h.respondError(c, errors.ValidationError{Field: "end_date", Value: req.EndDate, Message: "must not be before start_date"})
		return
	}

	period := model.PeriodAll
	if req.Period != "" {
		period = model.Period(req.Period)
	}

	session, err := h.manager.Open(c.Request.Context(), journal.SessionParams{
		GroupID:   req.GroupID,
		SubjectID: req.SubjectID,
		StartDate: start,
		EndDate:   end,
		Period:    period,
	})
	if err != nil {
		h.log.Error().Err(err).Int64("group_id", req.GroupID).Msg("Failed to open journal")
		h.respondError(c, err)
		return
	}

	h.log.Info().Str("session_id", session.ID()).Int64("group_id", req.GroupID).Msg("Journal opened")

	c.JSON(http.StatusCreated, gin.H{
		"session_id": session.ID(),
		"grid":       session.Grid(),
	})
}

func (h *Handler) GetJournal(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"session_id":    session.ID(),
		"params":        session.Params(),
		"grid":          session.Grid(),
		"notifications": session.Notifications().List(),
	})
}

func (h *Handler) CloseJournal(c *gin.Context) {
	if err := h.manager.Close(c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) ReloadJournal(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}
	session.Reload(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{
		"grid":          session.Grid(),
		"notifications": session.Notifications().List(),
	})
}

func (h *Handler) UpdateAttendance(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}

	var req attendanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	var status *model.AttendanceStatus
	if req.Status != nil {
		st, err := model.ParseAttendanceStatus(*req.Status)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		status = &st
	}

	err := session.Attendance.Update(c.Request.Context(), req.LessonID, req.StudentID, status)
	h.respondCell(c, session, req.LessonID, req.StudentID, err)
}

func (h *Handler) CycleAttendance(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}

	var req cellRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	_, err := session.Attendance.Cycle(c.Request.Context(), req.LessonID, req.StudentID)
	h.respondCell(c, session, req.LessonID, req.StudentID, err)
}

func (h *Handler) UpdateGrade(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}

	var req gradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	workNumber := req.WorkNumber
	if lesson, ok := session.Lesson(req.LessonID); ok && !lesson.LessonType.Numbered() {
		// Only lab and practice grades can target another work.
		workNumber = nil
	}

	err := session.Grades.Update(c.Request.Context(), req.LessonID, req.StudentID, req.Grade, workNumber)
	h.respondCell(c, session, req.LessonID, req.StudentID, err)
}

func (h *Handler) SetAttestationPeriod(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}

	var req periodRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	if err := session.SetPeriod(c.Request.Context(), model.Period(req.Period)); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"grid": session.Grid()})
}

// GetAttestationArchive returns the archived copy of the attestation results
// the session currently shows.
func (h *Handler) GetAttestationArchive(c *gin.Context) {
	if h.snapshots == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "Snapshot archive is not configured"})
		return
	}
	session, ok := h.session(c)
	if !ok {
		return
	}

	id, ok := session.Attestation.ArchiveID()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "No archived attestation snapshot"})
		return
	}

	snap, err := h.snapshots.Load(c.Request.Context(), session.Params().GroupID, session.Attestation.Period(), id)
	if err != nil {
		if stderrors.Is(err, storage.ErrSnapshotNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "No archived attestation snapshot"})
			return
		}
		h.log.Error().Err(err).Str("snapshot_id", id).Msg("Failed to load attestation snapshot")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"snapshot": snap})
}

func (h *Handler) GetStats(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}

	stats, fetchedAt, ok := session.Stats.Latest()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Stats not loaded yet"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"stats": stats, "fetched_at": fetchedAt})
}

func (h *Handler) ListNotifications(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"notifications": session.Notifications().List()})
}

func (h *Handler) DismissNotification(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}
	if !session.Notifications().Dismiss(c.Param("nid")) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Notification not found"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) GetAudit(c *gin.Context) {
	if h.repo == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "Audit log is not configured"})
		return
	}

	sessionID := c.Param("id")
	summary, err := h.repo.GetSessionSummary(c.Request.Context(), sessionID)
	if err != nil {
		h.log.Error().Err(err).Str("session_id", sessionID).Msg("Failed to get audit summary")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	events, err := h.repo.ListNotifications(c.Request.Context(), sessionID, 50)
	if err != nil {
		h.log.Error().Err(err).Str("session_id", sessionID).Msg("Failed to list audit events")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"summary": summary, "events": events})
}

func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":   "healthy",
		"service":  h.cfg.App.Name,
		"version":  h.cfg.App.Version,
		"sessions": h.manager.Count(),
	})
}

func (h *Handler) session(c *gin.Context) (*journal.Session, bool) {
	session, err := h.manager.Get(c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return nil, false
	}
	return session, true
}

// respondCell answers a cell write with the cell's current (committed or rolled back) value.
func (h *Handler) respondCell(c *gin.Context, session *journal.Session, lessonID, studentID int64, err error) {
	body := gin.H{"lesson_id": lessonID, "student_id": studentID}
	if st, ok := session.Attendance.Get(lessonID, studentID); ok {
		body["status"] = st
	} else {
		body["status"] = nil
	}
	if g, ok := session.Grades.Get(lessonID, studentID); ok {
		body["grade"] = g
	} else {
		body["grade"] = nil
	}

	if err != nil {
		status, msg := classify(err)
		body["error"] = msg
		c.JSON(status, body)
		return
	}
	c.JSON(http.StatusOK, body)
}

func (h *Handler) respondError(c *gin.Context, err error) {
	status, msg := classify(err)
	c.JSON(status, gin.H{"error": msg})
}

func classify(err error) (int, string) {
	var verr errors.ValidationError
	switch {
	case stderrors.As(err, &verr):
		return http.StatusBadRequest, verr.Error()
	case stderrors.Is(err, errors.ErrSessionNotFound):
		return http.StatusNotFound, "Journal session not found"
	case stderrors.Is(err, errors.ErrInvalidGrade),
		stderrors.Is(err, errors.ErrInvalidStatus),
		stderrors.Is(err, errors.ErrInvalidPeriod):
		return http.StatusBadRequest, err.Error()
	case errors.IsClientError(err):
		return http.StatusUnprocessableEntity, err.Error()
	case stderrors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "Journal gateway timed out"
	case stderrors.Is(err, errors.ErrGatewayUnavailable):
		return http.StatusServiceUnavailable, err.Error()
	default:
		return http.StatusBadGateway, err.Error()
	}
}
