package gateway

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"journal-sync/internal/model"

	"github.com/patrickmn/go-cache"
)

const dateLayout = "2006-01-02"

func joinIDs(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ",")
}

func keyParams(lessonID, studentID int64) url.Values {
	params := url.Values{}
	params.Set("lesson_id", strconv.FormatInt(lessonID, 10))
	params.Set("student_id", strconv.FormatInt(studentID, 10))
	return params
}

// LoadAttendance returns every attendance record of the group for the given lessons.
func (c *Client) LoadAttendance(ctx context.Context, groupID int64, lessonIDs []int64) ([]model.AttendanceRecord, error) {
	params := url.Values{}
	params.Set("group_id", strconv.FormatInt(groupID, 10))
	params.Set("lesson_ids", joinIDs(lessonIDs))

	var records []model.AttendanceRecord
	if err := c.do(ctx, http.MethodGet, c.cfg.Endpoints.Attendance, params, nil, &records); err != nil {
		return nil, fmt.Errorf("failed to load attendance: %w", err)
	}
	return records, nil
}

func (c *Client) UpsertAttendance(ctx context.Context, req model.AttendanceBulkRequest) error {
	if err := c.do(ctx, http.MethodPost, c.cfg.Endpoints.AttendanceBulk, nil, req, nil); err != nil {
		return fmt.Errorf("failed to upsert attendance: %w", err)
	}
	return nil
}

func (c *Client) DeleteAttendance(ctx context.Context, lessonID, studentID int64) error {
	if err := c.do(ctx, http.MethodDelete, c.cfg.Endpoints.Attendance, keyParams(lessonID, studentID), nil, nil); err != nil {
		return fmt.Errorf("failed to delete attendance: %w", err)
	}
	return nil
}

func (c *Client) LoadGrades(ctx context.Context, lessonIDs []int64) ([]model.GradeRecord, error) {
	params := url.Values{}
	params.Set("lesson_ids", joinIDs(lessonIDs))

	var records []model.GradeRecord
	if err := c.do(ctx, http.MethodGet, c.cfg.Endpoints.Grades, params, nil, &records); err != nil {
		return nil, fmt.Errorf("failed to load grades: %w", err)
	}
	return records, nil
}

func (c *Client) UpsertGrade(ctx context.Context, record model.GradeRecord) error {
	if err := c.do(ctx, http.MethodPost, c.cfg.Endpoints.Grades, nil, record, nil); err != nil {
		return fmt.Errorf("failed to upsert grade: %w", err)
	}
	return nil
}

func (c *Client) DeleteGrade(ctx context.Context, lessonID, studentID int64) error {
	if err := c.do(ctx, http.MethodDelete, c.cfg.Endpoints.Grades, keyParams(lessonID, studentID), nil, nil); err != nil {
		return fmt.Errorf("failed to delete grade: %w", err)
	}
	return nil
}

func (c *Client) LoadStats(ctx context.Context, q model.StatsQuery) (*model.JournalStats, error) {
	params := url.Values{}
	params.Set("group_id", strconv.FormatInt(q.GroupID, 10))
	params.Set("start_date", q.StartDate.Format(dateLayout))
	params.Set("end_date", q.EndDate.Format(dateLayout))
	if q.SubjectID != nil {
		params.Set("subject_id", strconv.FormatInt(*q.SubjectID, 10))
	}

	var stats model.JournalStats
	if err := c.do(ctx, http.MethodGet, c.cfg.Endpoints.Stats, params, nil, &stats); err != nil {
		return nil, fmt.Errorf("failed to load stats: %w", err)
	}
	return &stats, nil
}

func (c *Client) LoadAttestation(ctx context.Context, groupID int64, period model.Period) ([]model.AttestationResult, error) {
	params := url.Values{}
	params.Set("group_id", strconv.FormatInt(groupID, 10))
	params.Set("period", string(period))

	var results []model.AttestationResult
	if err := c.do(ctx, http.MethodGet, c.cfg.Endpoints.Attestation, params, nil, &results); err != nil {
		return nil, fmt.Errorf("failed to load attestation: %w", err)
	}
	return results, nil
}

// LoadLessons returns the lessons of one journal view. Results are cached.
func (c *Client) LoadLessons(ctx context.Context, q model.LessonQuery) ([]model.Lesson, error) {
	params := url.Values{}
	params.Set("group_id", strconv.FormatInt(q.GroupID, 10))
	params.Set("start_date", q.StartDate.Format(dateLayout))
	params.Set("end_date", q.EndDate.Format(dateLayout))
	if q.SubjectID != nil {
		params.Set("subject_id", strconv.FormatInt(*q.SubjectID, 10))
	}

	cacheKey := "lessons:" + params.Encode()
	if cached, ok := c.cache.Get(cacheKey); ok {
		return cached.([]model.Lesson), nil
	}

	var lessons []model.Lesson
	if err := c.do(ctx, http.MethodGet, c.cfg.Endpoints.Lessons, params, nil, &lessons); err != nil {
		return nil, fmt.Errorf("failed to load lessons: %w", err)
	}

	c.log.Debug().Int("count", len(lessons)).Int64("group_id", q.GroupID).Msg("Received lessons from gateway")
	c.cache.Set(cacheKey, lessons, cache.DefaultExpiration)
	return lessons, nil
}

// LoadStudents returns the students of a group. Results are cached.
func (c *Client) LoadStudents(ctx context.Context, groupID int64) ([]model.Student, error) {
	params := url.Values{}
	params.Set("group_id", strconv.FormatInt(groupID, 10))

	cacheKey := "students:" + params.Encode()
	if cached, ok := c.cache.Get(cacheKey); ok {
		return cached.([]model.Student), nil
	}

	var students []model.Student
	if err := c.do(ctx, http.MethodGet, c.cfg.Endpoints.Students, params, nil, &students); err != nil {
		return nil, fmt.Errorf("failed to load students: %w", err)
	}

	c.log.Debug().Int("count", len(students)).Int64("group_id", groupID).Msg("Received students from gateway")
	c.cache.Set(cacheKey, students, cache.DefaultExpiration)
	return students, nil
}

// FlushReferenceCache drops cached lessons and students.
func (c *Client) FlushReferenceCache() {
	c.cache.Flush()
}
