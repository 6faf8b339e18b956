package tool

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/unroll-ai/unroll/internal/domain/scope"
)

type resumeSummary struct {
	ID             int64  `json:"id"`
	URL            string `json:"url"`
	ContentPreview string `json:"content_preview"`
	CreatedAt      string `json:"created_at"`
}

func newGetAllResumes() (Tool, error) {
	return NewFunc(GetAllResumes,
		"Get a list of all uploaded resumes for the current user. "+
			"Returns each resume with: id, url, content preview (first 200 chars), and upload date. "+
			"Use this when the user asks about their uploaded resumes.",
		func(ctx context.Context, sc *scope.Scope, _ NoInput) (string, error) {
			var items []resumeSummary
			err := sc.Query(ctx,
				`SELECT id, url, content, created_at FROM resumes WHERE user_id = ? ORDER BY created_at DESC, id DESC`,
				[]any{sc.CallerID()},
				func(rows *sql.Rows) error {
					var r resumeSummary
					if err := rows.Scan(&r.ID, &r.URL, &r.ContentPreview, &r.CreatedAt); err != nil {
						return err
					}
					r.ContentPreview = preview(r.ContentPreview)
					items = append(items, r)
					return nil
				})
			if err != nil {
				return "", fmt.Errorf("list resumes: %w", err)
			}
			if len(items) == 0 {
				return "No resumes found. The user hasn't uploaded any resumes yet.", nil
			}
			return indentJSON(items)
		})
}

type resumeContentInput struct {
	ResumeID int64 `json:"resume_id" jsonschema:"ID of the resume to read"`
}

func newGetResumeContent() (Tool, error) {
	return NewFunc(GetResumeContent,
		"Get the full extracted text content of a specific resume by its ID. "+
			"Use this when the user wants to see the actual content of a resume, "+
			"or when you need the resume text to answer questions about it.",
		func(ctx context.Context, sc *scope.Scope, in resumeContentInput) (string, error) {
			var id int64
			var url, content, createdAt string
			err := sc.QueryRow(ctx,
				`SELECT id, url, content, created_at FROM resumes WHERE id = ? AND user_id = ?`,
				[]any{in.ResumeID, sc.CallerID()},
				&id, &url, &content, &createdAt)
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Sprintf("Resume with ID %d not found.", in.ResumeID), nil
			}
			if err != nil {
				return "", fmt.Errorf("get resume: %w", err)
			}
			return indentJSON(map[string]any{
				"id":         id,
				"url":        url,
				"content":    content,
				"created_at": createdAt,
			})
		})
}
