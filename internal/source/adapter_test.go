package source

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/t77yq/duewatch/internal/model"
)

func TestAdapt_Habilitacion(t *testing.T) {
	raw := json.RawMessage(`{
		"id": 42,
		"codigo_habilitacion": "REPS-0042",
		"nombre_prestador": "IPS Central",
		"estado": "VIGENTE",
		"fecha_vencimiento_habilitacion": "2025-08-31"
	}`)

	e, err := Adapt(model.EntityKindHabilitacion, raw)
	require.NoError(t, err)

	assert.Equal(t, "42", e.ID)
	assert.Equal(t, model.EntityKindHabilitacion, e.Kind)
	assert.Equal(t, "VIGENTE", e.Status)
	require.NotNil(t, e.DueDate)
	assert.Equal(t, model.Date{Year: 2025, Month: time.August, Day: 31}, *e.DueDate)
	assert.Equal(t, "REPS-0042", e.Metadata[model.MetaCodigo])
	assert.Equal(t, "REPS-0042", e.DisplayName())
}

func TestAdapt_PlanMejoraWithoutDate(t *testing.T) {
	raw := json.RawMessage(`{"id":"pm-7","numero_plan":"PM-2025-007","estado":"VENCIDO","fecha_vencimiento":null,"porcentaje_avance":40}`)

	e, err := Adapt(model.EntityKindPlanMejora, raw)
	require.NoError(t, err)

	assert.Nil(t, e.DueDate)
	assert.Equal(t, "PM-2025-007", e.DisplayName())
	assert.Equal(t, "40", e.Metadata["porcentaje_avance"])
	_, hasName := e.Metadata[model.MetaNombre]
	assert.False(t, hasName)
}

func TestAdapt_ServicioTimestampDate(t *testing.T) {
	raw := json.RawMessage(`{"id":3,"codigo_servicio":"S-301","estado":"ACTIVO","fecha_vencimiento":"2025-04-01T00:00:00Z"}`)

	e, err := Adapt(model.EntityKindServicio, raw)
	require.NoError(t, err)
	require.NotNil(t, e.DueDate)
	assert.Equal(t, "2025-04-01", e.DueDate.String())
}

func TestAdapt_Hallazgo(t *testing.T) {
	raw := json.RawMessage(`{"id":9,"codigo":"HZ-9","severidad":"CRÍTICA","estado":"ABIERTO"}`)

	e, err := Adapt(model.EntityKindHallazgo, raw)
	require.NoError(t, err)
	assert.Nil(t, e.DueDate)
	assert.Equal(t, "CRÍTICA", e.Metadata[model.MetaSeveridad])
	assert.Equal(t, "ABIERTO", e.Status)
}

func TestAdapt_Autoevaluacion(t *testing.T) {
	raw := json.RawMessage(`{"id":5,"numero_autoevaluacion":"AE-5","periodo":2025,"estado":"BORRADOR"}`)

	e, err := Adapt(model.EntityKindAutoevaluacion, raw)
	require.NoError(t, err)
	assert.Equal(t, "2025", e.Metadata["periodo"])
	assert.Equal(t, "AE-5", e.DisplayName())
}

func TestAdapt_Errors(t *testing.T) {
	_, err := Adapt(model.EntityKindServicio, json.RawMessage(`{"codigo_servicio":"S-1"}`))
	assert.ErrorIs(t, err, ErrMissingID)

	_, err = Adapt("FACTURA", json.RawMessage(`{"id":1}`))
	assert.ErrorIs(t, err, ErrUnknownKind)

	_, err = Adapt(model.EntityKindHabilitacion, json.RawMessage(`{"id":1,"fecha_vencimiento_habilitacion":"31/08/2025"}`))
	assert.Error(t, err)
}

func TestDecodeCollection(t *testing.T) {
	tests := []struct {
		name string
		body string
		want int
	}{
		{name: "bare array", body: `[{"id":1},{"id":2}]`, want: 2},
		{name: "results envelope", body: `{"count":3,"results":[{"id":1},{"id":2},{"id":3}]}`, want: 3},
		{name: "data envelope", body: ` {"data":[{"id":1}]}`, want: 1},
		{name: "empty object", body: `{}`, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items, err := decodeCollection([]byte(tt.body))
			require.NoError(t, err)
			assert.Len(t, items, tt.want)
		})
	}

	_, err := decodeCollection([]byte(`not json`))
	assert.Error(t, err)
}
