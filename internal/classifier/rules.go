package classifier

import (
	"strings"
	"time"

	"github.com/t77yq/duewatch/internal/model"
)

const (
	// DefaultServiceThresholdDays is the near-due window for services
	DefaultServiceThresholdDays = 90
	// DefaultPlanThresholdDays is the near-due window for improvement plans
	DefaultPlanThresholdDays = 30
)

// Rule names, in the order their records are emitted into a feed
const (
	RuleHabilitacionVencida     = "habilitacion-vencida"
	RuleHabilitacionProxima30   = "habilitacion-proxima-30"
	RuleHabilitacionProxima90   = "habilitacion-proxima-90"
	RuleHabilitacionProxima180  = "habilitacion-proxima-180"
	RulePlanCompletado          = "plan-completado"
	RulePlanVencido             = "plan-vencido"
	RulePlanProximo             = "plan-proximo"
	RuleServicioVencido         = "servicio-vencido"
	RuleServicioProximo         = "servicio-proximo"
	RuleAutoevaluacionPendiente = "autoevaluacion-pendiente"
	RuleHallazgoCritico         = "hallazgo-critico"
	RuleHallazgoAbierto         = "hallazgo-abierto"
)

// Options tunes the caller-configurable windows of the rule table.
// Non-positive values fall back to the defaults.
type Options struct {
	ServiceThresholdDays int `mapstructure:"service_threshold_days"`
	PlanThresholdDays    int `mapstructure:"plan_threshold_days"`
}

func (o Options) withDefaults() Options {
	if o.ServiceThresholdDays <= 0 {
		o.ServiceThresholdDays = DefaultServiceThresholdDays
	}
	if o.PlanThresholdDays <= 0 {
		o.PlanThresholdDays = DefaultPlanThresholdDays
	}
	return o
}

// Classification is the outcome of matching one entity against the rule table
type Classification struct {
	Severity      model.Severity
	Rule          string
	DaysRemaining int
	HasDays       bool
}

type ruleInput struct {
	status    string
	severidad string
	days      int
	hasDays   bool
	opts      Options
}

type rule struct {
	name     string
	kind     model.EntityKind
	severity model.Severity
	// suppress rules stop evaluation for the kind without emitting anything
	suppress bool
	// grouped rules collapse every matching entity into one record
	grouped bool
	title   string
	// summary describes a group, e.g. "planes de mejora vencidos"
	summary string
	// subject prefixes per-entity detail, e.g. "La habilitación"
	subject string
	match   func(in ruleInput) bool
}

// rules is evaluated top to bottom per kind; first match wins. Its order is
// also the category order used to break ties between equal severities.
var rules = []rule{
	{
		name:     RuleHabilitacionVencida,
		kind:     model.EntityKindHabilitacion,
		severity: model.SeverityCritical,
		title:    "Habilitación vencida",
		subject:  "La habilitación",
		match: func(in ruleInput) bool {
			return IsExpired(in.days, in.hasDays)
		},
	},
	{
		name:     RuleHabilitacionProxima30,
		kind:     model.EntityKindHabilitacion,
		severity: model.SeverityCritical,
		title:    "Habilitación por vencer",
		subject:  "La habilitación",
		match: func(in ruleInput) bool {
			return IsDueWithin(in.days, in.hasDays, 30)
		},
	},
	{
		name:     RuleHabilitacionProxima90,
		kind:     model.EntityKindHabilitacion,
		severity: model.SeverityWarning,
		title:    "Habilitación próxima a vencer",
		subject:  "La habilitación",
		match: func(in ruleInput) bool {
			return IsDueWithin(in.days, in.hasDays, 90)
		},
	},
	{
		name:     RuleHabilitacionProxima180,
		kind:     model.EntityKindHabilitacion,
		severity: model.SeverityInfo,
		title:    "Habilitación vence en menos de 6 meses",
		subject:  "La habilitación",
		match: func(in ruleInput) bool {
			return IsDueWithin(in.days, in.hasDays, 180)
		},
	},
	{
		name:     RulePlanCompletado,
		kind:     model.EntityKindPlanMejora,
		suppress: true,
		match: func(in ruleInput) bool {
			return in.status == model.StatusCompletado
		},
	},
	{
		name:     RulePlanVencido,
		kind:     model.EntityKindPlanMejora,
		severity: model.SeverityCritical,
		grouped:  true,
		title:    "Planes de mejora vencidos",
		summary:  "planes de mejora vencidos",
		match: func(in ruleInput) bool {
			return in.status == model.StatusVencido
		},
	},
	{
		name:     RulePlanProximo,
		kind:     model.EntityKindPlanMejora,
		severity: model.SeverityWarning,
		grouped:  true,
		title:    "Planes de mejora por vencer",
		summary:  "planes de mejora por vencer",
		match: func(in ruleInput) bool {
			active := in.status == model.StatusPendiente || in.status == model.StatusEnCurso
			return active && IsDueWithin(in.days, in.hasDays, in.opts.PlanThresholdDays)
		},
	},
	{
		name:     RuleServicioVencido,
		kind:     model.EntityKindServicio,
		severity: model.SeverityCritical,
		title:    "Servicio vencido",
		subject:  "El servicio",
		match: func(in ruleInput) bool {
			return IsExpired(in.days, in.hasDays)
		},
	},
	{
		name:     RuleServicioProximo,
		kind:     model.EntityKindServicio,
		severity: model.SeverityWarning,
		title:    "Servicio próximo a vencer",
		subject:  "El servicio",
		match: func(in ruleInput) bool {
			return IsDueWithin(in.days, in.hasDays, in.opts.ServiceThresholdDays)
		},
	},
	{
		name:     RuleAutoevaluacionPendiente,
		kind:     model.EntityKindAutoevaluacion,
		severity: model.SeverityInfo,
		grouped:  true,
		title:    "Autoevaluaciones pendientes",
		summary:  "autoevaluaciones pendientes de validación",
		match: func(in ruleInput) bool {
			return in.status == model.StatusBorrador || in.status == model.StatusEnCurso
		},
	},
	{
		name:     RuleHallazgoCritico,
		kind:     model.EntityKindHallazgo,
		severity: model.SeverityCritical,
		grouped:  true,
		title:    "Hallazgos críticos sin cerrar",
		summary:  "hallazgos críticos sin cerrar",
		match: func(in ruleInput) bool {
			return in.severidad == model.SeveridadCritica && in.status != model.StatusCerrado
		},
	},
	{
		name:     RuleHallazgoAbierto,
		kind:     model.EntityKindHallazgo,
		severity: model.SeverityWarning,
		grouped:  true,
		title:    "Hallazgos abiertos",
		summary:  "hallazgos abiertos",
		match: func(in ruleInput) bool {
			return in.status == model.StatusAbierto && in.severidad != model.SeveridadCritica
		},
	},
}

var statusReplacer = strings.NewReplacer("Í", "I", " ", "_", "-", "_")

// normalizeStatus makes "en curso", "EN_CURSO" and "Crítica" comparable
func normalizeStatus(s string) string {
	return statusReplacer.Replace(strings.ToUpper(strings.TrimSpace(s)))
}

// match returns the index in rules of the first rule matching e, or -1
func match(e model.TrackedEntity, days int, hasDays bool, opts Options) int {
	in := ruleInput{
		status:    normalizeStatus(e.Status),
		severidad: normalizeStatus(e.Metadata[model.MetaSeveridad]),
		days:      days,
		hasDays:   hasDays,
		opts:      opts,
	}
	for i := range rules {
		if rules[i].kind != e.Kind {
			continue
		}
		if rules[i].match(in) {
			return i
		}
	}
	return -1
}

// Classify matches a single entity against the rule table. ok is false when no
// alert should be emitted, including for unrecognized kinds and suppressing
// rules such as a completed improvement plan.
func Classify(e model.TrackedEntity, reference time.Time, opts Options) (Classification, bool) {
	days, hasDays := DaysUntil(reference, e.DueDate)
	idx := match(e, days, hasDays, opts.withDefaults())
	if idx < 0 || rules[idx].suppress {
		return Classification{}, false
	}
	return Classification{
		Severity:      rules[idx].severity,
		Rule:          rules[idx].name,
		DaysRemaining: days,
		HasDays:       hasDays,
	}, true
}
