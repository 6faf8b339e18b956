package tool

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/unroll-ai/unroll/internal/domain/scope"
)

type analysisSummary struct {
	ID             int64  `json:"id"`
	CandidateName  string `json:"candidate_name"`
	TargetRole     string `json:"target_role"`
	OverallScore   int    `json:"overall_score"`
	Recommendation string `json:"recommendation"`
	JobID          *int64 `json:"job_id"`
	CreatedAt      string `json:"created_at"`
}

const analysisSummaryColumns = `id, candidate_name, target_role, overall_score, recommendation, job_id, created_at`

func scanAnalysisSummary(rows *sql.Rows) (analysisSummary, error) {
	var (
		a     analysisSummary
		jobID sql.NullInt64
	)
	if err := rows.Scan(&a.ID, &a.CandidateName, &a.TargetRole, &a.OverallScore, &a.Recommendation, &jobID, &a.CreatedAt); err != nil {
		return a, err
	}
	if jobID.Valid {
		a.JobID = &jobID.Int64
	}
	return a, nil
}

func newGetAllAnalyses() (Tool, error) {
	return NewFunc(GetAllAnalyses,
		"Get a summary list of all resume analyses for the current user. "+
			"Returns each analysis with: id, candidate name, target role, overall score, recommendation, job id and date. "+
			"Use this when the user asks about their analyses, candidates, or overall results.",
		func(ctx context.Context, sc *scope.Scope, _ NoInput) (string, error) {
			var items []analysisSummary
			err := sc.Query(ctx,
				`SELECT `+analysisSummaryColumns+` FROM analyses WHERE user_id = ? ORDER BY created_at DESC, id DESC`,
				[]any{sc.CallerID()},
				func(rows *sql.Rows) error {
					a, err := scanAnalysisSummary(rows)
					items = append(items, a)
					return err
				})
			if err != nil {
				return "", fmt.Errorf("list analyses: %w", err)
			}
			if len(items) == 0 {
				return "No analyses found. The user hasn't analyzed any resumes yet.", nil
			}
			return indentJSON(items)
		})
}

type analysisDetailsInput struct {
	AnalysisID int64 `json:"analysis_id" jsonschema:"ID of the analysis to fetch"`
}

func newGetAnalysisDetails() (Tool, error) {
	return NewFunc(GetAnalysisDetails,
		"Get the full detailed analysis for a specific analysis ID. "+
			"Returns complete data including scores, score justifications, skills, experience, red flags, key vectors, summary, and recommendation. "+
			"Use this when the user asks for details about a specific candidate or analysis.",
		func(ctx context.Context, sc *scope.Scope, in analysisDetailsInput) (string, error) {
			var (
				a          analysisSummary
				jobID      sql.NullInt64
				experience float64
				result     string
			)
			err := sc.QueryRow(ctx, `
				SELECT id, candidate_name, target_role, overall_score, recommendation,
				       total_experience_years, job_id, created_at, analysis_result
				FROM analyses
				WHERE id = ? AND user_id = ?`,
				[]any{in.AnalysisID, sc.CallerID()},
				&a.ID, &a.CandidateName, &a.TargetRole, &a.OverallScore, &a.Recommendation,
				&experience, &jobID, &a.CreatedAt, &result)
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Sprintf("Analysis with ID %d not found.", in.AnalysisID), nil
			}
			if err != nil {
				return "", fmt.Errorf("get analysis: %w", err)
			}
			if jobID.Valid {
				a.JobID = &jobID.Int64
			}
			return indentJSON(map[string]any{
				"id":                     a.ID,
				"candidate_name":         a.CandidateName,
				"target_role":            a.TargetRole,
				"overall_score":          a.OverallScore,
				"recommendation":         a.Recommendation,
				"total_experience_years": experience,
				"job_id":                 nullableID(a.JobID),
				"created_at":             a.CreatedAt,
				"analysis_result":        rawJSON(result),
			})
		})
}

type searchCandidateInput struct {
	CandidateName string `json:"candidate_name" jsonschema:"full or partial candidate name, matched case-insensitively"`
}

func newSearchAnalysesByCandidate() (Tool, error) {
	return NewFunc(SearchAnalysesByCandidate,
		"Search analyses by candidate name (partial, case-insensitive match). "+
			"Use this when the user asks about a specific person by name.",
		func(ctx context.Context, sc *scope.Scope, in searchCandidateInput) (string, error) {
			var items []analysisSummary
			err := sc.Query(ctx,
				`SELECT `+analysisSummaryColumns+` FROM analyses
				 WHERE user_id = ? AND LOWER(candidate_name) LIKE LOWER(?) ESCAPE '\'
				 ORDER BY overall_score DESC, id`,
				[]any{sc.CallerID(), "%" + escapeLike(in.CandidateName) + "%"},
				func(rows *sql.Rows) error {
					a, err := scanAnalysisSummary(rows)
					items = append(items, a)
					return err
				})
			if err != nil {
				return "", fmt.Errorf("search analyses: %w", err)
			}
			if len(items) == 0 {
				return fmt.Sprintf("No analyses found for candidate matching '%s'.", in.CandidateName), nil
			}
			return indentJSON(items)
		}, func(s *jsonschema.Schema) {
			if p, ok := s.Properties["candidate_name"]; ok {
				p.MinLength = ptr(1)
			}
		})
}

type topCandidatesInput struct {
	Limit int    `json:"limit,omitempty" jsonschema:"number of candidates to return (default 5)"`
	JobID *int64 `json:"job_id,omitempty" jsonschema:"only rank candidates analyzed for this job"`
}

type rankedCandidate struct {
	Rank           int     `json:"rank"`
	ID             int64   `json:"id"`
	CandidateName  string  `json:"candidate_name"`
	TargetRole     string  `json:"target_role"`
	OverallScore   int     `json:"overall_score"`
	Recommendation string  `json:"recommendation"`
	JobTitle       *string `json:"job_title,omitempty"`
}

func newGetTopCandidates() (Tool, error) {
	return NewFunc(GetTopCandidates,
		"Get the top candidates ranked by overall score. "+
			"Optionally filter by job_id to see top candidates for a specific job. "+
			"Use this when the user asks about best candidates or rankings.",
		func(ctx context.Context, sc *scope.Scope, in topCandidatesInput) (string, error) {
			limit := in.Limit
			if limit == 0 {
				limit = defaultTopLimit
			}

			query := `
				SELECT a.id, a.candidate_name, a.target_role, a.overall_score, a.recommendation,
				       a.job_id, j.title
				FROM analyses a
				LEFT JOIN jobs j ON j.id = a.job_id AND j.user_id = a.user_id
				WHERE a.user_id = ?`
			args := []any{sc.CallerID()}
			if in.JobID != nil {
				query += ` AND a.job_id = ?`
				args = append(args, *in.JobID)
			}
			query += ` ORDER BY a.overall_score DESC, a.id LIMIT ?`
			args = append(args, limit)

			var items []rankedCandidate
			err := sc.Query(ctx, query, args, func(rows *sql.Rows) error {
				var (
					c        rankedCandidate
					jobID    sql.NullInt64
					jobTitle sql.NullString
				)
				if err := rows.Scan(&c.ID, &c.CandidateName, &c.TargetRole, &c.OverallScore, &c.Recommendation, &jobID, &jobTitle); err != nil {
					return err
				}
				c.Rank = len(items) + 1
				if jobID.Valid {
					title := "Unknown"
					if jobTitle.Valid {
						title = jobTitle.String
					}
					c.JobTitle = &title
				}
				items = append(items, c)
				return nil
			})
			if err != nil {
				return "", fmt.Errorf("rank candidates: %w", err)
			}
			if len(items) == 0 {
				return "No analyses found.", nil
			}
			return indentJSON(items)
		}, func(s *jsonschema.Schema) {
			if p, ok := s.Properties["limit"]; ok {
				p.Minimum = ptr(1.0)
				p.Maximum = ptr(float64(maxTopLimit))
			}
		})
}
