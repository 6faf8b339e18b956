package tool

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/unroll-ai/unroll/internal/domain/hiring"
	"github.com/unroll-ai/unroll/internal/infra/sqldb"
)

type seeded struct {
	owner, other        int64
	backendJob, dataJob int64
	aliceAnalysis       int64
	longResume          int64
	otherJob            int64
}

// seedToolData creates records for two users; every lookup must stay inside
// the owner's rows.
func seedToolData(t *testing.T, db *sqldb.DB) seeded {
	t.Helper()
	ctx := context.Background()
	s := seeded{
		owner: createToolUser(t, db, "owner@example.com"),
		other: createToolUser(t, db, "other@example.com"),
	}

	mustID := func(id int64, err error) int64 {
		t.Helper()
		if err != nil {
			t.Fatalf("seed: %v", err)
		}
		return id
	}

	s.backendJob = mustID(hiring.CreateJob(ctx, db, s.owner, "Backend Engineer", strings.Repeat("Go ", 100)))
	s.dataJob = mustID(hiring.CreateJob(ctx, db, s.owner, "Data Analyst", "SQL"))
	s.otherJob = mustID(hiring.CreateJob(ctx, db, s.other, "Secret Role", "hidden"))

	s.longResume = mustID(hiring.CreateResume(ctx, db, s.owner, "s3://alice.pdf", strings.Repeat("é", 250)))
	bob := mustID(hiring.CreateResume(ctx, db, s.owner, "s3://bob.pdf", "Bob resume"))
	eve := mustID(hiring.CreateResume(ctx, db, s.other, "s3://eve.pdf", "Eve resume"))

	s.aliceAnalysis = mustID(hiring.CreateAnalysis(ctx, db, s.owner, hiring.Analysis{
		ResumeID: s.longResume, JobID: &s.backendJob, CandidateName: "Alice Moreno", TargetRole: "Backend",
		Recommendation: "Strong Hire", OverallScore: 91, TotalExperienceYears: 8,
		Result: json.RawMessage(`{"red_flags":[]}`),
	}))
	mustID(hiring.CreateAnalysis(ctx, db, s.owner, hiring.Analysis{
		ResumeID: bob, JobID: &s.backendJob, CandidateName: "Bob Stone", TargetRole: "Backend",
		Recommendation: "Hire", OverallScore: 75, TotalExperienceYears: 4,
	}))
	mustID(hiring.CreateAnalysis(ctx, db, s.owner, hiring.Analysis{
		ResumeID: bob, CandidateName: "Bob Stone", TargetRole: "Analyst",
		Recommendation: "Maybe", OverallScore: 60, TotalExperienceYears: 4,
	}))
	mustID(hiring.CreateAnalysis(ctx, db, s.other, hiring.Analysis{
		ResumeID: eve, JobID: &s.otherJob, CandidateName: "Alice Elsewhere", TargetRole: "Secret",
		Recommendation: "Strong Hire", OverallScore: 99, TotalExperienceYears: 20,
	}))
	return s
}

func TestBuiltins_CallerIsolationAndShapes(t *testing.T) {
	t.Parallel()

	db := openToolTestDB(t)
	s := seedToolData(t, db)
	r := newBuiltinRegistry(t)
	sc := openToolScope(t, db, s.owner)
	ctx := context.Background()

	run := func(t *testing.T, name Name, args string) string {
		t.Helper()
		res := r.Invoke(ctx, sc, string(name), json.RawMessage(args))
		if res.IsError {
			t.Fatalf("%s(%s) failed: %s", name, args, res.Content)
		}
		return res.Content
	}

	t.Run("get_all_analyses", func(t *testing.T) {
		var items []map[string]any
		if err := json.Unmarshal([]byte(run(t, GetAllAnalyses, `{}`)), &items); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if len(items) != 3 {
			t.Fatalf("expected the owner's 3 analyses, got %d", len(items))
		}
		for _, it := range items {
			if it["candidate_name"] == "Alice Elsewhere" {
				t.Fatal("another user's analysis leaked")
			}
		}
	})

	t.Run("get_analysis_details", func(t *testing.T) {
		out := run(t, GetAnalysisDetails, `{"analysis_id":`+itoa(s.aliceAnalysis)+`}`)
		var detail map[string]any
		if err := json.Unmarshal([]byte(out), &detail); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if detail["candidate_name"] != "Alice Moreno" || detail["total_experience_years"] != 8.0 {
			t.Errorf("unexpected detail: %v", detail)
		}
		if _, ok := detail["analysis_result"].(map[string]any); !ok {
			t.Errorf("analysis_result should be embedded JSON, got %T", detail["analysis_result"])
		}
		if !strings.Contains(out, "\n  \"") {
			t.Errorf("expected indented JSON, got %s", out)
		}
	})

	t.Run("search_analyses_by_candidate", func(t *testing.T) {
		var items []map[string]any
		if err := json.Unmarshal([]byte(run(t, SearchAnalysesByCandidate, `{"candidate_name":"aLiCe"}`)), &items); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if len(items) != 1 || items[0]["candidate_name"] != "Alice Moreno" {
			t.Errorf("expected only Alice Moreno, got %v", items)
		}
		if got := run(t, SearchAnalysesByCandidate, `{"candidate_name":"Zed"}`); got != "No analyses found for candidate matching 'Zed'." {
			t.Errorf("unexpected empty result %q", got)
		}
		for _, wildcard := range []string{"_", "%", `\\`} {
			got := run(t, SearchAnalysesByCandidate, `{"candidate_name":"`+wildcard+`"}`)
			if !strings.HasPrefix(got, "No analyses found for candidate matching") {
				t.Errorf("candidate_name %q should match literally, got %s", wildcard, got)
			}
		}
	})

	t.Run("get_top_candidates", func(t *testing.T) {
		var items []map[string]any
		if err := json.Unmarshal([]byte(run(t, GetTopCandidates, `{}`)), &items); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if len(items) != 3 {
			t.Fatalf("expected 3 ranked candidates, got %d", len(items))
		}
		if items[0]["rank"] != 1.0 || items[0]["candidate_name"] != "Alice Moreno" || items[0]["job_title"] != "Backend Engineer" {
			t.Errorf("unexpected first rank: %v", items[0])
		}
		if _, ok := items[2]["job_title"]; ok {
			t.Errorf("analysis without job should carry no job_title: %v", items[2])
		}

		items = nil
		if err := json.Unmarshal([]byte(run(t, GetTopCandidates, `{"limit":1,"job_id":`+itoa(s.backendJob)+`}`)), &items); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if len(items) != 1 || items[0]["candidate_name"] != "Alice Moreno" {
			t.Errorf("expected Alice only, got %v", items)
		}

		if got := run(t, GetTopCandidates, `{"job_id":`+itoa(s.otherJob)+`}`); got != "No analyses found." {
			t.Errorf("another user's job must look empty, got %q", got)
		}
	})

	t.Run("get_all_resumes", func(t *testing.T) {
		var items []map[string]any
		if err := json.Unmarshal([]byte(run(t, GetAllResumes, `{}`)), &items); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if len(items) != 2 {
			t.Fatalf("expected 2 resumes, got %d", len(items))
		}
		for _, it := range items {
			if int64(it["id"].(float64)) == s.longResume {
				p := it["content_preview"].(string)
				if len([]rune(p)) != 203 || !strings.HasSuffix(p, "...") {
					t.Errorf("preview should be 200 runes plus ..., got %d runes", len([]rune(p)))
				}
			}
		}
	})

	t.Run("get_resume_content", func(t *testing.T) {
		out := run(t, GetResumeContent, `{"resume_id":`+itoa(s.longResume)+`}`)
		if !strings.Contains(out, strings.Repeat("é", 250)) {
			t.Error("expected full resume content")
		}
	})

	t.Run("get_all_jobs", func(t *testing.T) {
		var items []map[string]any
		if err := json.Unmarshal([]byte(run(t, GetAllJobs, `{}`)), &items); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if len(items) != 2 {
			t.Fatalf("expected 2 jobs, got %d", len(items))
		}
	})

	t.Run("get_job_details", func(t *testing.T) {
		if got := run(t, GetJobDetails, `{"job_id":`+itoa(s.otherJob)+`}`); got != "Job with ID "+itoa(s.otherJob)+" not found." {
			t.Errorf("another user's job must not be visible, got %q", got)
		}
		if out := run(t, GetJobDetails, `{"job_id":`+itoa(s.dataJob)+`}`); !strings.Contains(out, `"title": "Data Analyst"`) {
			t.Errorf("unexpected job details %s", out)
		}
	})

	t.Run("get_analyses_for_job", func(t *testing.T) {
		var out struct {
			JobTitle        string           `json:"job_title"`
			TotalCandidates int              `json:"total_candidates"`
			Candidates      []map[string]any `json:"candidates"`
		}
		if err := json.Unmarshal([]byte(run(t, GetAnalysesForJob, `{"job_id":`+itoa(s.backendJob)+`}`)), &out); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if out.JobTitle != "Backend Engineer" || out.TotalCandidates != 2 || len(out.Candidates) != 2 {
			t.Errorf("unexpected job analyses: %+v", out)
		}
		if got := run(t, GetAnalysesForJob, `{"job_id":`+itoa(s.dataJob)+`}`); got != "No analyses found for job 'Data Analyst'." {
			t.Errorf("unexpected empty result %q", got)
		}
	})
}

func TestBuiltins_EmptyAccount(t *testing.T) {
	t.Parallel()

	db := openToolTestDB(t)
	user := createToolUser(t, db, "new@example.com")
	r := newBuiltinRegistry(t)
	sc := openToolScope(t, db, user)

	tests := []struct {
		name Name
		args string
		want string
	}{
		{GetAllAnalyses, `{}`, "No analyses found. The user hasn't analyzed any resumes yet."},
		{GetAllResumes, `{}`, "No resumes found. The user hasn't uploaded any resumes yet."},
		{GetAllJobs, `{}`, "No jobs found. The user hasn't created any job positions yet."},
		{GetAnalysisDetails, `{"analysis_id":42}`, "Analysis with ID 42 not found."},
		{GetResumeContent, `{"resume_id":7}`, "Resume with ID 7 not found."},
		{GetAnalysesForJob, `{"job_id":3}`, "Job with ID 3 not found."},
		{GetTopCandidates, `{"limit":5}`, "No analyses found."},
	}
	for _, tt := range tests {
		res := r.Invoke(context.Background(), sc, string(tt.name), json.RawMessage(tt.args))
		if res.IsError || res.Content != tt.want {
			t.Errorf("%s: got %+v; want %q", tt.name, res, tt.want)
		}
	}
}

func TestBuiltins_InvalidArgumentsNeverQuery(t *testing.T) {
	t.Parallel()

	r := newBuiltinRegistry(t)

	// A nil scope would panic if the handler ran.
	tests := []struct {
		name Name
		args string
	}{
		{GetAnalysisDetails, `{}`},
		{GetAnalysisDetails, `{"analysis_id":"one"}`},
		{GetTopCandidates, `{"limit":0}`},
		{GetTopCandidates, `{"limit":500}`},
		{SearchAnalysesByCandidate, `{"candidate_name":""}`},
		{GetAllJobs, `{"unexpected":1}`},
	}
	for _, tt := range tests {
		res := r.Invoke(context.Background(), nil, string(tt.name), json.RawMessage(tt.args))
		if res.Kind != ResultInvalidArguments || !strings.Contains(res.Content, "invalid arguments for "+string(tt.name)) {
			t.Errorf("%s(%s): got %+v", tt.name, tt.args, res)
		}
	}
}

func TestPreview(t *testing.T) {
	t.Parallel()

	if got := preview("short"); got != "short" {
		t.Errorf("preview(short) = %q", got)
	}
	exact := strings.Repeat("a", 200)
	if got := preview(exact); got != exact {
		t.Error("a 200-rune string must not be truncated")
	}
	if got := preview(exact + "b"); got != exact+"..." {
		t.Errorf("unexpected truncation %q", got)
	}
}

func itoa(v int64) string {
	b, _ := json.Marshal(v)
	return string(b)
}
