package model

import "fmt"

// Period selects an attestation checkpoint. PeriodAll means no overlay.
type Period string

const (
	PeriodFirst  Period = "first"
	PeriodSecond Period = "second"
	PeriodAll    Period = "all"
)

func ParsePeriod(s string) (Period, error) {
	switch p := Period(s); p {
	case PeriodFirst, PeriodSecond, PeriodAll:
		return p, nil
	default:
		return "", fmt.Errorf("unknown attestation period %q", s)
	}
}

// AttestationResult is computed by the gateway and treated as immutable.
type AttestationResult struct {
	StudentID        int64   `json:"student_id"`
	StudentName      string  `json:"student_name,omitempty"`
	TotalScore       float64 `json:"total_score"`
	LabScore         float64 `json:"lab_score"`
	AttendanceScore  float64 `json:"attendance_score"`
	ActivityScore    float64 `json:"activity_score"`
	Grade            string  `json:"grade"`
	IsPassing        bool    `json:"is_passing"`
	MaxPoints        float64 `json:"max_points"`
	MinPassingPoints float64 `json:"min_passing_points"`
}
