package tool

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/unroll-ai/unroll/internal/domain/scope"
)

type jobSummary struct {
	ID                 int64  `json:"id"`
	Title              string `json:"title"`
	DescriptionPreview string `json:"description_preview"`
	CreatedAt          string `json:"created_at"`
}

func newGetAllJobs() (Tool, error) {
	return NewFunc(GetAllJobs,
		"Get a list of all job positions created by the current user. "+
			"Returns each job with: id, title, description preview, and creation date. "+
			"Use this when the user asks about their job listings.",
		func(ctx context.Context, sc *scope.Scope, _ NoInput) (string, error) {
			var items []jobSummary
			err := sc.Query(ctx,
				`SELECT id, title, description, created_at FROM jobs WHERE user_id = ? ORDER BY created_at DESC, id DESC`,
				[]any{sc.CallerID()},
				func(rows *sql.Rows) error {
					var j jobSummary
					if err := rows.Scan(&j.ID, &j.Title, &j.DescriptionPreview, &j.CreatedAt); err != nil {
						return err
					}
					j.DescriptionPreview = preview(j.DescriptionPreview)
					items = append(items, j)
					return nil
				})
			if err != nil {
				return "", fmt.Errorf("list jobs: %w", err)
			}
			if len(items) == 0 {
				return "No jobs found. The user hasn't created any job positions yet.", nil
			}
			return indentJSON(items)
		})
}

type jobIDInput struct {
	JobID int64 `json:"job_id" jsonschema:"ID of the job position"`
}

type job struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	CreatedAt   string `json:"created_at"`
}

// lookupJob returns the caller's job, or sql.ErrNoRows.
func lookupJob(ctx context.Context, sc *scope.Scope, id int64) (job, error) {
	var j job
	err := sc.QueryRow(ctx,
		`SELECT id, title, description, created_at FROM jobs WHERE id = ? AND user_id = ?`,
		[]any{id, sc.CallerID()},
		&j.ID, &j.Title, &j.Description, &j.CreatedAt)
	return j, err
}

func newGetJobDetails() (Tool, error) {
	return NewFunc(GetJobDetails,
		"Get the full details of a specific job position by its ID. "+
			"Returns the complete job title and description. "+
			"Use this when the user asks about a specific job's requirements.",
		func(ctx context.Context, sc *scope.Scope, in jobIDInput) (string, error) {
			j, err := lookupJob(ctx, sc, in.JobID)
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Sprintf("Job with ID %d not found.", in.JobID), nil
			}
			if err != nil {
				return "", fmt.Errorf("get job: %w", err)
			}
			return indentJSON(j)
		})
}

type jobCandidate struct {
	ID                   int64   `json:"id"`
	CandidateName        string  `json:"candidate_name"`
	OverallScore         int     `json:"overall_score"`
	Recommendation       string  `json:"recommendation"`
	TotalExperienceYears float64 `json:"total_experience_years"`
	CreatedAt            string  `json:"created_at"`
}

func newGetAnalysesForJob() (Tool, error) {
	return NewFunc(GetAnalysesForJob,
		"Get all resume analyses linked to a specific job position. "+
			"Returns a summary of each candidate analyzed for this job. "+
			"Use this when the user asks about candidates for a specific role or job.",
		func(ctx context.Context, sc *scope.Scope, in jobIDInput) (string, error) {
			j, err := lookupJob(ctx, sc, in.JobID)
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Sprintf("Job with ID %d not found.", in.JobID), nil
			}
			if err != nil {
				return "", fmt.Errorf("get job: %w", err)
			}

			var items []jobCandidate
			err = sc.Query(ctx, `
				SELECT id, candidate_name, overall_score, recommendation, total_experience_years, created_at
				FROM analyses
				WHERE job_id = ? AND user_id = ?
				ORDER BY overall_score DESC, id`,
				[]any{in.JobID, sc.CallerID()},
				func(rows *sql.Rows) error {
					var c jobCandidate
					if err := rows.Scan(&c.ID, &c.CandidateName, &c.OverallScore, &c.Recommendation, &c.TotalExperienceYears, &c.CreatedAt); err != nil {
						return err
					}
					items = append(items, c)
					return nil
				})
			if err != nil {
				return "", fmt.Errorf("list job analyses: %w", err)
			}
			if len(items) == 0 {
				return fmt.Sprintf("No analyses found for job '%s'.", j.Title), nil
			}
			return indentJSON(map[string]any{
				"job_title":        j.Title,
				"total_candidates": len(items),
				"candidates":       items,
			})
		})
}
