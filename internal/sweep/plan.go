package sweep

import (
	"fmt"
	"strings"
	"time"

	"github.com/torosent/sweepfire/internal/runner"
)

// Plan describes the levels of a sweep.
type Plan struct {
	Levels           []int         // concurrency per level, run in this order
	RequestsPerLevel int           // requests dispatched at every level
	Timeout          time.Duration // per-request timeout
	Cooldown         time.Duration // pause between levels
}

// PlanError lists every problem found in a plan.
type PlanError struct {
	Issues []string
}

func (e *PlanError) Error() string {
	return "invalid sweep plan: " + strings.Join(e.Issues, "; ")
}

// Validate checks the plan before any network activity.
func (p Plan) Validate() error {
	var issues []string
	if len(p.Levels) == 0 {
		issues = append(issues, "no concurrency levels")
	}
	for i, level := range p.Levels {
		if level < 1 {
			issues = append(issues, fmt.Sprintf("level %d has concurrency %d, want >= 1", i, level))
		}
	}
	if p.RequestsPerLevel < 0 {
		issues = append(issues, fmt.Sprintf("requests per level %d, want >= 0", p.RequestsPerLevel))
	}
	if p.Timeout <= 0 {
		issues = append(issues, "timeout must be > 0")
	}
	if p.Cooldown < 0 {
		issues = append(issues, "cooldown must be >= 0")
	}
	if len(issues) > 0 {
		return &PlanError{Issues: issues}
	}
	return nil
}

func (p Plan) level(i int) runner.Level {
	return runner.Level{Concurrency: p.Levels[i], Requests: p.RequestsPerLevel}
}
