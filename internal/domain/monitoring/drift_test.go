package monitoring

import (
	"testing"

	"github.com/pratik-mahalle/complyflow/internal/domain/baseline"
	"github.com/pratik-mahalle/complyflow/internal/domain/compliance"
)

func TestClassifySeverity(t *testing.T) {
	tests := []struct {
		name  string
		delta float64
		risk  string
		want  DriftSeverity
	}{
		{"improved has no severity", 50, compliance.RiskCritical, ""},
		{"unchanged has no severity", 0, compliance.RiskCritical, ""},
		{"critical risk", -10, compliance.RiskCritical, DriftCritical},
		{"large drop with medium risk", -50, compliance.RiskMedium, DriftCritical},
		{"large drop with no risk", -100, "", DriftCritical},
		{"high risk", -10, compliance.RiskHigh, DriftHigh},
		{"moderate drop", -25, compliance.RiskLow, DriftHigh},
		{"medium risk", -10, compliance.RiskMedium, DriftMedium},
		{"small drop low risk", -10, compliance.RiskLow, DriftLow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifySeverity(tt.delta, tt.risk); got != tt.want {
				t.Errorf("ClassifySeverity(%v, %q) = %q, want %q", tt.delta, tt.risk, got, tt.want)
			}
		})
	}
}

func TestComputeDrift(t *testing.T) {
	base := &baseline.ComplianceBaseline{
		Controls: map[string]baseline.ControlSnapshot{
			"CC1.1": {Status: compliance.StatusCompliant, Score: 100, EvidenceCount: 3},
			"CC1.2": {Status: compliance.StatusCompliant, Score: 100, EvidenceCount: 2},
			"CC2.1": {Status: compliance.StatusNonCompliant, Score: 0, EvidenceCount: 0},
			"CC3.1": {Status: compliance.StatusPartial, Score: 50, EvidenceCount: 1},
		},
	}
	findings := []*compliance.Finding{
		// unchanged score, unchanged evidence: omitted
		{ControlID: "CC1.1", Status: compliance.StatusCompliant, EvidenceCount: 3},
		// degraded by 50 with medium risk
		{ControlID: "CC1.2", Status: compliance.StatusPartial, RiskCategory: compliance.RiskMedium, EvidenceCount: 2},
		// improved
		{ControlID: "CC2.1", Status: compliance.StatusCompliant, EvidenceCount: 0},
		// unchanged score, evidence count changed
		{ControlID: "CC3.1", Status: compliance.StatusPartial, EvidenceCount: 4},
		// new control: skipped
		{ControlID: "CC9.9", Status: compliance.StatusNonCompliant, RiskCategory: compliance.RiskCritical},
	}

	got := ComputeDrift(base, findings)
	if len(got) != 3 {
		t.Fatalf("ComputeDrift() returned %d results, want 3: %+v", len(got), got)
	}

	byID := map[string]DriftResult{}
	for _, d := range got {
		byID[d.ControlID] = d
	}

	if _, ok := byID["CC1.1"]; ok {
		t.Error("unchanged control should be omitted")
	}
	if _, ok := byID["CC9.9"]; ok {
		t.Error("control absent from baseline should be skipped")
	}

	d := byID["CC1.2"]
	if d.Delta != -50 || d.Classification != Degraded || d.Severity != DriftCritical {
		t.Errorf("CC1.2 = %+v, want degraded/critical with delta -50", d)
	}

	d = byID["CC2.1"]
	if d.Classification != Improved || d.Severity != "" {
		t.Errorf("CC2.1 = %+v, want improved without severity", d)
	}

	d = byID["CC3.1"]
	if d.Classification != Unchanged || !d.EvidenceCountChanged {
		t.Errorf("CC3.1 = %+v, want unchanged with evidence count changed", d)
	}

	for i := 1; i < len(got); i++ {
		if got[i-1].ControlID > got[i].ControlID {
			t.Errorf("results not ordered by control id: %s before %s", got[i-1].ControlID, got[i].ControlID)
		}
	}
}

func TestComputeDrift_NilBaseline(t *testing.T) {
	got := ComputeDrift(nil, []*compliance.Finding{{ControlID: "A", Status: compliance.StatusCompliant}})
	if len(got) != 0 {
		t.Errorf("ComputeDrift(nil) = %v, want empty", got)
	}
}

func TestSnapshotControls(t *testing.T) {
	controls := SnapshotControls([]*compliance.Finding{
		{ControlID: "A", Status: compliance.StatusCompliant, EvidenceCount: 1},
		{ControlID: "B", Status: compliance.StatusNotApplicable},
		{ControlID: "C", Status: compliance.StatusPartial},
		{ControlID: "D", Status: compliance.StatusNonCompliant},
		nil,
		{ControlID: ""},
	})

	want := map[string]float64{"A": 100, "B": 100, "C": 50, "D": 0}
	if len(controls) != len(want) {
		t.Fatalf("got %d controls, want %d", len(controls), len(want))
	}
	for id, score := range want {
		if controls[id].Score != score {
			t.Errorf("control %s score = %v, want %v", id, controls[id].Score, score)
		}
	}
	if controls["A"].EvidenceCount != 1 {
		t.Errorf("control A evidence count = %d, want 1", controls["A"].EvidenceCount)
	}
}
