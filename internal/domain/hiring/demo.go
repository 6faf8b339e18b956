package hiring

import (
	"context"
	"encoding/json"

	"github.com/unroll-ai/unroll/internal/infra/sqldb"
)

// DemoSummary counts the records SeedDemo created.
type DemoSummary struct {
	Jobs     int `json:"jobs"`
	Resumes  int `json:"resumes"`
	Analyses int `json:"analyses"`
}

type demoCandidate struct {
	name, role, recommendation string
	score                      int
	years                      float64
	job                        int // index into demoJobs, -1 for none
	resume                     string
}

var demoJobs = []struct{ title, description string }{
	{"Senior Backend Engineer", "Design and operate Go services backed by PostgreSQL. Experience with distributed systems, observability and on-call ownership is expected."},
	{"Data Analyst", "Turn product data into decisions. SQL, dashboards and clear written communication with stakeholders."},
}

var demoCandidates = []demoCandidate{
	{"Alice Moreno", "Senior Backend Engineer", "Strong Hire", 91, 8, 0,
		"Alice Moreno. Backend engineer, 8 years. Built payment services in Go and PostgreSQL, led migration to Kubernetes, on-call lead."},
	{"Bruno Keller", "Senior Backend Engineer", "Hire", 78, 5.5, 0,
		"Bruno Keller. Software engineer, 5.5 years. Java and Go microservices, Kafka pipelines, some team leadership."},
	{"Chen Wei", "Data Analyst", "Maybe", 64, 2, 1,
		"Chen Wei. Analyst, 2 years. SQL reporting, Looker dashboards, A/B test readouts."},
	{"Dana Okafor", "Product Designer", "No Hire", 42, 3, -1,
		"Dana Okafor. Designer, 3 years. Figma systems, user research, prototyping."},
}

// SeedDemo inserts a small, realistic data set for userID: two jobs, four
// resumes and their analyses.
func SeedDemo(ctx context.Context, q sqldb.Querier, userID int64) (DemoSummary, error) {
	var sum DemoSummary

	jobIDs := make([]int64, 0, len(demoJobs))
	for _, j := range demoJobs {
		id, err := CreateJob(ctx, q, userID, j.title, j.description)
		if err != nil {
			return sum, err
		}
		jobIDs = append(jobIDs, id)
		sum.Jobs++
	}

	for _, c := range demoCandidates {
		resumeID, err := CreateResume(ctx, q, userID, "demo://"+c.name+".pdf", c.resume)
		if err != nil {
			return sum, err
		}
		sum.Resumes++

		var jobID *int64
		if c.job >= 0 {
			jobID = &jobIDs[c.job]
		}
		result, _ := json.Marshal(map[string]any{
			"summary":   c.resume,
			"red_flags": []string{},
			"scores":    map[string]int{"overall": c.score},
		})
		if _, err := CreateAnalysis(ctx, q, userID, Analysis{
			ResumeID:             resumeID,
			JobID:                jobID,
			CandidateName:        c.name,
			TargetRole:           c.role,
			Recommendation:       c.recommendation,
			OverallScore:         c.score,
			TotalExperienceYears: c.years,
			Result:               result,
		}); err != nil {
			return sum, err
		}
		sum.Analyses++
	}
	return sum, nil
}
