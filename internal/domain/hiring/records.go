// Package hiring writes the records the assistant's tools read: users' job
// postings, uploaded resumes and resume analyses. Uploading, PDF extraction
// and scoring live elsewhere; this package only persists their results.
package hiring

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/unroll-ai/unroll/internal/infra/sqldb"
)

var ErrInvalidRecord = errors.New("invalid hiring record")

// Analysis is the stored result of scoring one resume.
type Analysis struct {
	ResumeID             int64
	JobID                *int64
	CandidateName        string
	TargetRole           string
	Recommendation       string
	OverallScore         int
	TotalExperienceYears float64
	Result               json.RawMessage
}

// CreateJob inserts a job posting owned by userID.
func CreateJob(ctx context.Context, q sqldb.Querier, userID int64, title, description string) (int64, error) {
	if strings.TrimSpace(title) == "" {
		return 0, fmt.Errorf("%w: job title is required", ErrInvalidRecord)
	}
	var id int64
	err := q.QueryRowContext(ctx,
		`INSERT INTO jobs (user_id, title, description, created_at) VALUES (?, ?, ?, ?) RETURNING id`,
		userID, title, description, sqldb.FormatTime(sqldb.Now()),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert job: %w", err)
	}
	return id, nil
}

// CreateResume inserts a resume's extracted text owned by userID.
func CreateResume(ctx context.Context, q sqldb.Querier, userID int64, url, content string) (int64, error) {
	var id int64
	err := q.QueryRowContext(ctx,
		`INSERT INTO resumes (user_id, url, content, created_at) VALUES (?, ?, ?, ?) RETURNING id`,
		userID, url, content, sqldb.FormatTime(sqldb.Now()),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert resume: %w", err)
	}
	return id, nil
}

// CreateAnalysis inserts an analysis owned by userID.
func CreateAnalysis(ctx context.Context, q sqldb.Querier, userID int64, a Analysis) (int64, error) {
	if strings.TrimSpace(a.CandidateName) == "" {
		return 0, fmt.Errorf("%w: candidate name is required", ErrInvalidRecord)
	}
	if a.OverallScore < 0 || a.OverallScore > 100 {
		return 0, fmt.Errorf("%w: overall score %d out of range", ErrInvalidRecord, a.OverallScore)
	}
	result := a.Result
	if len(result) == 0 {
		result = json.RawMessage(`{}`)
	}
	if !json.Valid(result) {
		return 0, fmt.Errorf("%w: analysis result must be valid json", ErrInvalidRecord)
	}

	var jobID any
	if a.JobID != nil {
		jobID = *a.JobID
	}
	var id int64
	err := q.QueryRowContext(ctx, `
		INSERT INTO analyses (
			user_id, resume_id, job_id, candidate_name, target_role, recommendation,
			overall_score, total_experience_years, analysis_result, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`,
		userID, a.ResumeID, jobID, a.CandidateName, a.TargetRole, a.Recommendation,
		a.OverallScore, a.TotalExperienceYears, string(result), sqldb.FormatTime(sqldb.Now()),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert analysis: %w", err)
	}
	return id, nil
}
