package source

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/t77yq/duewatch/internal/model"
)

// flexString accepts both JSON strings and numbers, backend ids come as either
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("expected string or number, got %s", data)
	}
	*f = flexString(n.String())
	return nil
}

type habilitacionRecord struct {
	ID                 flexString  `json:"id"`
	Codigo             string      `json:"codigo_habilitacion"`
	NombrePrestador    string      `json:"nombre_prestador"`
	Estado             string      `json:"estado"`
	FechaVencimientoHa *model.Date `json:"fecha_vencimiento_habilitacion"`
}

type planMejoraRecord struct {
	ID               flexString  `json:"id"`
	NumeroPlan       string      `json:"numero_plan"`
	Descripcion      string      `json:"descripcion"`
	Estado           string      `json:"estado"`
	FechaVencimiento *model.Date `json:"fecha_vencimiento"`
	PorcentajeAvance *float64    `json:"porcentaje_avance"`
}

type servicioRecord struct {
	ID               flexString  `json:"id"`
	Codigo           string      `json:"codigo_servicio"`
	Nombre           string      `json:"nombre_servicio"`
	Estado           string      `json:"estado"`
	FechaVencimiento *model.Date `json:"fecha_vencimiento"`
}

type autoevaluacionRecord struct {
	ID      flexString `json:"id"`
	Numero  string     `json:"numero_autoevaluacion"`
	Periodo flexString `json:"periodo"`
	Estado  string     `json:"estado"`
}

type hallazgoRecord struct {
	ID          flexString `json:"id"`
	Codigo      string     `json:"codigo"`
	Descripcion string     `json:"descripcion"`
	Severidad   string     `json:"severidad"`
	Estado      string     `json:"estado"`
}

// Adapt maps one backend JSON record of the given kind to a TrackedEntity
func Adapt(kind model.EntityKind, raw json.RawMessage) (model.TrackedEntity, error) {
	switch kind {
	case model.EntityKindHabilitacion:
		var r habilitacionRecord
		if err := json.Unmarshal(raw, &r); err != nil {
			return model.TrackedEntity{}, fmt.Errorf("failed to decode habilitacion: %w", err)
		}
		return entity(kind, r.ID, r.Estado, r.FechaVencimientoHa, map[string]string{
			model.MetaCodigo: r.Codigo,
			model.MetaNombre: r.NombrePrestador,
		})

	case model.EntityKindPlanMejora:
		var r planMejoraRecord
		if err := json.Unmarshal(raw, &r); err != nil {
			return model.TrackedEntity{}, fmt.Errorf("failed to decode plan de mejora: %w", err)
		}
		meta := map[string]string{
			model.MetaNumero: r.NumeroPlan,
			model.MetaNombre: r.Descripcion,
		}
		if r.PorcentajeAvance != nil {
			meta["porcentaje_avance"] = fmt.Sprintf("%.0f", *r.PorcentajeAvance)
		}
		return entity(kind, r.ID, r.Estado, r.FechaVencimiento, meta)

	case model.EntityKindServicio:
		var r servicioRecord
		if err := json.Unmarshal(raw, &r); err != nil {
			return model.TrackedEntity{}, fmt.Errorf("failed to decode servicio: %w", err)
		}
		return entity(kind, r.ID, r.Estado, r.FechaVencimiento, map[string]string{
			model.MetaCodigo: r.Codigo,
			model.MetaNombre: r.Nombre,
		})

	case model.EntityKindAutoevaluacion:
		var r autoevaluacionRecord
		if err := json.Unmarshal(raw, &r); err != nil {
			return model.TrackedEntity{}, fmt.Errorf("failed to decode autoevaluacion: %w", err)
		}
		return entity(kind, r.ID, r.Estado, nil, map[string]string{
			model.MetaNumero: r.Numero,
			"periodo":        string(r.Periodo),
		})

	case model.EntityKindHallazgo:
		var r hallazgoRecord
		if err := json.Unmarshal(raw, &r); err != nil {
			return model.TrackedEntity{}, fmt.Errorf("failed to decode hallazgo: %w", err)
		}
		return entity(kind, r.ID, r.Estado, nil, map[string]string{
			model.MetaCodigo:    r.Codigo,
			model.MetaNombre:    r.Descripcion,
			model.MetaSeveridad: r.Severidad,
		})
	}

	return model.TrackedEntity{}, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
}

func entity(kind model.EntityKind, id flexString, status string, due *model.Date, meta map[string]string) (model.TrackedEntity, error) {
	if id == "" {
		return model.TrackedEntity{}, ErrMissingID
	}
	for k, v := range meta {
		if strings.TrimSpace(v) == "" {
			delete(meta, k)
		}
	}
	if due != nil && due.IsZero() {
		due = nil
	}
	return model.TrackedEntity{
		ID:       string(id),
		Kind:     kind,
		DueDate:  due,
		Status:   status,
		Metadata: meta,
	}, nil
}

// decodeCollection accepts a bare JSON array or an object wrapping it in
// "results" or "data"
func decodeCollection(body []byte) ([]json.RawMessage, error) {
	body = bytes.TrimSpace(body)
	if len(body) > 0 && body[0] == '[' {
		var items []json.RawMessage
		if err := json.Unmarshal(body, &items); err != nil {
			return nil, fmt.Errorf("failed to decode collection: %w", err)
		}
		return items, nil
	}

	var envelope struct {
		Results []json.RawMessage `json:"results"`
		Data    []json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("failed to decode collection: %w", err)
	}
	if envelope.Results != nil {
		return envelope.Results, nil
	}
	return envelope.Data, nil
}
