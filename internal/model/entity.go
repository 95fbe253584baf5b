package model

// EntityKind identifies the domain an entity belongs to
type EntityKind string

const (
	EntityKindHabilitacion   EntityKind = "HABILITACION"
	EntityKindPlanMejora     EntityKind = "PLAN_MEJORA"
	EntityKindServicio       EntityKind = "SERVICIO"
	EntityKindAutoevaluacion EntityKind = "AUTOEVALUACION"
	EntityKindHallazgo       EntityKind = "HALLAZGO"
)

// EntityKinds lists every recognized kind in load order
var EntityKinds = []EntityKind{
	EntityKindHabilitacion,
	EntityKindPlanMejora,
	EntityKindServicio,
	EntityKindAutoevaluacion,
	EntityKindHallazgo,
}

// Valid reports whether k is one of the recognized kinds
func (k EntityKind) Valid() bool {
	for _, kind := range EntityKinds {
		if k == kind {
			return true
		}
	}
	return false
}

// Status values used by the rule table
const (
	StatusCompletado = "COMPLETADO"
	StatusVencido    = "VENCIDO"
	StatusPendiente  = "PENDIENTE"
	StatusEnCurso    = "EN_CURSO"
	StatusBorrador   = "BORRADOR"
	StatusAbierto    = "ABIERTO"
	StatusCerrado    = "CERRADO"

	SeveridadCritica = "CRITICA"
)

// Metadata keys understood by the alert text builder
const (
	MetaCodigo    = "codigo"
	MetaNumero    = "numero"
	MetaNombre    = "nombre"
	MetaSeveridad = "severidad"
)

// TrackedEntity is a read-only snapshot of a backend record carrying a due date
type TrackedEntity struct {
	ID       string            `json:"id"`
	Kind     EntityKind        `json:"kind"`
	DueDate  *Date             `json:"due_date,omitempty"`
	Status   string            `json:"status"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// DisplayName returns the identifier shown in alert text
func (e TrackedEntity) DisplayName() string {
	for _, key := range []string{MetaCodigo, MetaNumero, MetaNombre} {
		if v := e.Metadata[key]; v != "" {
			return v
		}
	}
	return e.ID
}
