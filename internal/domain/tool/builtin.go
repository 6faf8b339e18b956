package tool

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

const (
	GetAllAnalyses            Name = "get_all_analyses"
	GetAnalysisDetails        Name = "get_analysis_details"
	SearchAnalysesByCandidate Name = "search_analyses_by_candidate"
	GetTopCandidates          Name = "get_top_candidates"
	GetAllResumes             Name = "get_all_resumes"
	GetResumeContent          Name = "get_resume_content"
	GetAllJobs                Name = "get_all_jobs"
	GetJobDetails             Name = "get_job_details"
	GetAnalysesForJob         Name = "get_analyses_for_job"
)

const (
	previewRunes    = 200
	defaultTopLimit = 5
	maxTopLimit     = 50
)

// NoInput is the argument type of tools without parameters.
type NoInput struct{}

// RegisterBuiltins registers the read-only hiring-data tools in a stable order.
func RegisterBuiltins(r *Registry) error {
	builders := []func() (Tool, error){
		newGetAllAnalyses,
		newGetAnalysisDetails,
		newSearchAnalysesByCandidate,
		newGetTopCandidates,
		newGetAllResumes,
		newGetResumeContent,
		newGetAllJobs,
		newGetJobDetails,
		newGetAnalysesForJob,
	}
	var errs []error
	for _, build := range builders {
		t, err := build()
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := r.Register(t); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// preview caps s at previewRunes runes, marking truncation with "...".
func preview(s string) string {
	r := []rune(s)
	if len(r) <= previewRunes {
		return s
	}
	return string(r[:previewRunes]) + "..."
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike makes s match literally inside a LIKE pattern using ESCAPE '\'.
func escapeLike(s string) string { return likeEscaper.Replace(s) }

// indentJSON renders tool output the way the model receives it.
func indentJSON(v any) (string, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode result: %w", err)
	}
	return string(out), nil
}

// rawJSON embeds stored JSON text as-is, or as a string when it is not valid JSON.
func rawJSON(text string) json.RawMessage {
	if json.Valid([]byte(text)) {
		return json.RawMessage(text)
	}
	quoted, _ := json.Marshal(text)
	return quoted
}

func nullableID(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

func ptr[T any](v T) *T { return &v }
