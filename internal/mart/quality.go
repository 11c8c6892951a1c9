package mart

import "context"

// CheckResult reports one quality check run.
type CheckResult struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Error  string `json:"error,omitempty"`
}

// RunQualityChecks executes the definition's quality checks. Each check's
// SQL must return a single boolean column; a query error marks the check
// failed with the error text rather than aborting the run.
func (a *Artifact) RunQualityChecks(ctx context.Context) []CheckResult {
	results := make([]CheckResult, 0, len(a.def.QualityChecks))
	for _, qc := range a.def.QualityChecks {
		var passed bool
		err := a.db.WithContext(ctx).Raw(qc.SQL).Scan(&passed).Error
		cr := CheckResult{Name: qc.Name, Passed: passed && err == nil}
		if err != nil {
			cr.Error = err.Error()
		}
		results = append(results, cr)
		if !cr.Passed {
			a.log.Warn("quality check failed", "check", qc.Name, "error", cr.Error)
		}
	}
	return results
}
