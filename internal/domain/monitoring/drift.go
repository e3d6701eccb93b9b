package monitoring

import (
	"sort"

	"github.com/pratik-mahalle/complyflow/internal/domain/baseline"
	"github.com/pratik-mahalle/complyflow/internal/domain/compliance"
)

// Classify maps a score delta onto a drift classification
func Classify(delta float64) Classification {
	switch {
	case delta > 0:
		return Improved
	case delta < 0:
		return Degraded
	default:
		return Unchanged
	}
}

// ClassifySeverity rates degraded drift. Other classifications get no severity.
func ClassifySeverity(delta float64, riskCategory string) DriftSeverity {
	if Classify(delta) != Degraded {
		return ""
	}
	switch {
	case riskCategory == compliance.RiskCritical || delta <= -50:
		return DriftCritical
	case riskCategory == compliance.RiskHigh || delta <= -25:
		return DriftHigh
	case riskCategory == compliance.RiskMedium:
		return DriftMedium
	default:
		return DriftLow
	}
}

// ComputeDrift compares current findings against a baseline. Only controls
// present in both are compared; controls with no score change and the same
// evidence count are left out. Results are ordered by control id.
func ComputeDrift(base *baseline.ComplianceBaseline, findings []*compliance.Finding) []DriftResult {
	results := []DriftResult{}
	if base == nil {
		return results
	}

	current := make(map[string]*compliance.Finding, len(findings))
	for _, f := range findings {
		if f == nil || f.ControlID == "" {
			continue
		}
		current[f.ControlID] = f
	}

	ids := make([]string, 0, len(current))
	for id := range current {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		prev, ok := base.Controls[id]
		if !ok {
			continue
		}
		f := current[id]
		score := f.Status.Score()
		delta := score - prev.Score
		countChanged := f.EvidenceCount != prev.EvidenceCount
		if delta == 0 && !countChanged {
			continue
		}

		results = append(results, DriftResult{
			ControlID:             id,
			PreviousStatus:        string(prev.Status),
			CurrentStatus:         string(f.Status),
			PreviousScore:         prev.Score,
			CurrentScore:          score,
			Delta:                 delta,
			Classification:        Classify(delta),
			EvidenceCountChanged:  countChanged,
			PreviousEvidenceCount: prev.EvidenceCount,
			CurrentEvidenceCount:  f.EvidenceCount,
			RiskCategory:          f.RiskCategory,
			Severity:              ClassifySeverity(delta, f.RiskCategory),
		})
	}
	return results
}

// SnapshotControls scores findings into the control map of a baseline
func SnapshotControls(findings []*compliance.Finding) map[string]baseline.ControlSnapshot {
	controls := make(map[string]baseline.ControlSnapshot, len(findings))
	for _, f := range findings {
		if f == nil || f.ControlID == "" {
			continue
		}
		controls[f.ControlID] = baseline.ControlSnapshot{
			Status:        f.Status,
			Score:         f.Status.Score(),
			EvidenceCount: f.EvidenceCount,
		}
	}
	return controls
}
