package classifier

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/t77yq/duewatch/internal/model"
)

func TestClassify_HabilitacionBoundaries(t *testing.T) {
	tests := []struct {
		days     int
		severity model.Severity
		rule     string
		alert    bool
	}{
		{days: -10, severity: model.SeverityCritical, rule: RuleHabilitacionVencida, alert: true},
		{days: -1, severity: model.SeverityCritical, rule: RuleHabilitacionVencida, alert: true},
		{days: 0, severity: model.SeverityCritical, rule: RuleHabilitacionProxima30, alert: true},
		{days: 30, severity: model.SeverityCritical, rule: RuleHabilitacionProxima30, alert: true},
		{days: 31, severity: model.SeverityWarning, rule: RuleHabilitacionProxima90, alert: true},
		{days: 90, severity: model.SeverityWarning, rule: RuleHabilitacionProxima90, alert: true},
		{days: 91, severity: model.SeverityInfo, rule: RuleHabilitacionProxima180, alert: true},
		{days: 180, severity: model.SeverityInfo, rule: RuleHabilitacionProxima180, alert: true},
		{days: 181, alert: false},
	}

	for _, tt := range tests {
		e := model.TrackedEntity{ID: "h1", Kind: model.EntityKindHabilitacion, DueDate: dueIn(tt.days)}
		got, ok := Classify(e, reference, Options{})
		require.Equal(t, tt.alert, ok, "days=%d", tt.days)
		if !tt.alert {
			continue
		}
		assert.Equal(t, tt.severity, got.Severity, "days=%d", tt.days)
		assert.Equal(t, tt.rule, got.Rule, "days=%d", tt.days)
		assert.Equal(t, tt.days, got.DaysRemaining)
		assert.True(t, got.HasDays)
	}
}

func TestClassify_NullDateOnlyStatusRulesFire(t *testing.T) {
	tests := []struct {
		name   string
		entity model.TrackedEntity
		alert  bool
		rule   string
	}{
		{
			name:   "license without date",
			entity: model.TrackedEntity{Kind: model.EntityKindHabilitacion, Status: "ACTIVA"},
		},
		{
			name:   "service without date",
			entity: model.TrackedEntity{Kind: model.EntityKindServicio},
		},
		{
			name:   "pending plan without date",
			entity: model.TrackedEntity{Kind: model.EntityKindPlanMejora, Status: model.StatusPendiente},
		},
		{
			name:   "overdue plan without date",
			entity: model.TrackedEntity{Kind: model.EntityKindPlanMejora, Status: model.StatusVencido},
			alert:  true,
			rule:   RulePlanVencido,
		},
		{
			name:   "draft self-assessment",
			entity: model.TrackedEntity{Kind: model.EntityKindAutoevaluacion, Status: model.StatusBorrador},
			alert:  true,
			rule:   RuleAutoevaluacionPendiente,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Classify(tt.entity, reference, Options{})
			require.Equal(t, tt.alert, ok)
			if ok {
				assert.Equal(t, tt.rule, got.Rule)
				assert.False(t, got.HasDays)
			}
		})
	}
}

func TestClassify_PlanMejora(t *testing.T) {
	tests := []struct {
		name     string
		status   string
		days     int
		opts     Options
		alert    bool
		severity model.Severity
	}{
		{name: "completed and overdue", status: "COMPLETADO", days: -5},
		{name: "completed lower case", status: "completado", days: 3},
		{name: "overdue status", status: "VENCIDO", days: 10, alert: true, severity: model.SeverityCritical},
		{name: "overdue status near due", status: "VENCIDO", days: 2, alert: true, severity: model.SeverityCritical},
		{name: "pending at window edge", status: "PENDIENTE", days: 30, alert: true, severity: model.SeverityWarning},
		{name: "pending past window", status: "PENDIENTE", days: 31},
		{name: "in progress spaced", status: "en curso", days: 0, alert: true, severity: model.SeverityWarning},
		{name: "pending already past", status: "PENDIENTE", days: -2},
		{name: "custom window", status: "EN_CURSO", days: 45, opts: Options{PlanThresholdDays: 60}, alert: true, severity: model.SeverityWarning},
		{name: "unknown status", status: "SUSPENDIDO", days: 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := model.TrackedEntity{ID: "p1", Kind: model.EntityKindPlanMejora, DueDate: dueIn(tt.days), Status: tt.status}
			got, ok := Classify(e, reference, tt.opts)
			require.Equal(t, tt.alert, ok)
			if ok {
				assert.Equal(t, tt.severity, got.Severity)
			}
		})
	}
}

func TestClassify_Servicio(t *testing.T) {
	tests := []struct {
		days     int
		opts     Options
		alert    bool
		severity model.Severity
	}{
		{days: -1, alert: true, severity: model.SeverityCritical},
		{days: 0, alert: true, severity: model.SeverityWarning},
		{days: 90, alert: true, severity: model.SeverityWarning},
		{days: 91},
		{days: 91, opts: Options{ServiceThresholdDays: 120}, alert: true, severity: model.SeverityWarning},
		{days: 20, opts: Options{ServiceThresholdDays: 15}},
	}

	for _, tt := range tests {
		e := model.TrackedEntity{ID: "s1", Kind: model.EntityKindServicio, DueDate: dueIn(tt.days)}
		got, ok := Classify(e, reference, tt.opts)
		require.Equal(t, tt.alert, ok, "days=%d", tt.days)
		if ok {
			assert.Equal(t, tt.severity, got.Severity, "days=%d", tt.days)
		}
	}
}

func TestClassify_Hallazgo(t *testing.T) {
	tests := []struct {
		name      string
		estado    string
		severidad string
		alert     bool
		rule      string
	}{
		{name: "critical open", estado: "ABIERTO", severidad: "CRÍTICA", alert: true, rule: RuleHallazgoCritico},
		{name: "critical in progress", estado: "EN_CURSO", severidad: "critica", alert: true, rule: RuleHallazgoCritico},
		{name: "critical closed", estado: "CERRADO", severidad: "CRÍTICA"},
		{name: "major open", estado: "ABIERTO", severidad: "MAYOR", alert: true, rule: RuleHallazgoAbierto},
		{name: "minor closed", estado: "CERRADO", severidad: "MENOR"},
		{name: "minor in progress", estado: "EN_CURSO", severidad: "MENOR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := model.TrackedEntity{
				ID:       "f1",
				Kind:     model.EntityKindHallazgo,
				Status:   tt.estado,
				Metadata: map[string]string{model.MetaSeveridad: tt.severidad},
			}
			got, ok := Classify(e, reference, Options{})
			require.Equal(t, tt.alert, ok)
			if ok {
				assert.Equal(t, tt.rule, got.Rule)
			}
		})
	}
}

func TestClassify_Autoevaluacion(t *testing.T) {
	for _, status := range []string{"BORRADOR", "EN_CURSO"} {
		e := model.TrackedEntity{Kind: model.EntityKindAutoevaluacion, Status: status, DueDate: dueIn(-400)}
		got, ok := Classify(e, reference, Options{})
		require.True(t, ok, status)
		assert.Equal(t, model.SeverityInfo, got.Severity)
	}
	for _, status := range []string{"COMPLETADA", "VALIDADA"} {
		_, ok := Classify(model.TrackedEntity{Kind: model.EntityKindAutoevaluacion, Status: status}, reference, Options{})
		assert.False(t, ok, status)
	}
}

func TestClassify_UnknownKind(t *testing.T) {
	e := model.TrackedEntity{Kind: "FACTURA", DueDate: dueIn(-3), Status: model.StatusVencido}
	_, ok := Classify(e, reference, Options{})
	assert.False(t, ok)
}
