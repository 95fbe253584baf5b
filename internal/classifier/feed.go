package classifier

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/t77yq/duewatch/internal/model"
)

// groupPreviewSize is how many members a grouped record names in its detail
const groupPreviewSize = 3

// alertNamespace seeds the name-based UUIDs used as alert ids
var alertNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("urn:duewatch:alert"))

type member struct {
	entity  model.TrackedEntity
	days    int
	hasDays bool
}

// BuildFeed classifies entities against reference and returns the resulting feed.
//
// Per-entity kinds (licenses, services) yield one record per entity; the other
// kinds collapse into one record per rule. Records are ordered by severity,
// ties keep rule-table order and then input order. Unrecognized kinds are
// skipped. A zero reference returns ErrInvalidReference.
func BuildFeed(entities []model.TrackedEntity, reference time.Time, opts Options) (*model.AlertFeed, error) {
	if reference.IsZero() {
		return nil, ErrInvalidReference
	}
	opts = opts.withDefaults()

	buckets := make([][]member, len(rules))
	for _, e := range entities {
		if !e.Kind.Valid() {
			continue
		}
		days, hasDays := DaysUntil(reference, e.DueDate)
		idx := match(e, days, hasDays, opts)
		if idx < 0 || rules[idx].suppress {
			continue
		}
		buckets[idx] = append(buckets[idx], member{entity: e, days: days, hasDays: hasDays})
	}

	var items []model.AlertRecord
	seen := make(map[string]bool)
	emit := func(rec model.AlertRecord) {
		if seen[rec.ID] {
			return
		}
		seen[rec.ID] = true
		items = append(items, rec)
	}

	for i := range rules {
		members := buckets[i]
		if len(members) == 0 {
			continue
		}
		if rules[i].grouped {
			emit(groupRecord(&rules[i], members))
			continue
		}
		for _, m := range members {
			emit(entityRecord(&rules[i], m))
		}
	}

	sort.SliceStable(items, func(a, b int) bool {
		return items[a].Severity.Rank() < items[b].Severity.Rank()
	})

	return model.NewAlertFeed(items), nil
}

// AlertID derives the stable id of an alert from its identity, independent of
// the position of its members in the input.
func AlertID(kind model.EntityKind, severity model.Severity, ruleName string, entityIDs []string) string {
	ids := append([]string(nil), entityIDs...)
	sort.Strings(ids)
	name := strings.Join([]string{string(kind), string(severity), ruleName, strings.Join(ids, ",")}, "|")
	return uuid.NewSHA1(alertNamespace, []byte(name)).String()
}

func entityRecord(r *rule, m member) model.AlertRecord {
	ids := []string{m.entity.ID}
	rec := model.AlertRecord{
		ID:        AlertID(r.kind, r.severity, r.name, ids),
		Severity:  r.severity,
		Kind:      r.kind,
		Rule:      r.name,
		Title:     r.title,
		EntityIDs: ids,
		EntityRef: copyMetadata(m.entity.Metadata),
	}
	if m.hasDays {
		days := m.days
		rec.DaysRemaining = &days
		rec.Detail = fmt.Sprintf("%s %s %s", r.subject, m.entity.DisplayName(), dayPhrase(days))
	} else {
		rec.Detail = fmt.Sprintf("%s %s no tiene fecha de vencimiento", r.subject, m.entity.DisplayName())
	}
	return rec
}

func groupRecord(r *rule, members []member) model.AlertRecord {
	var ids, names []string
	inGroup := make(map[string]bool, len(members))
	for _, m := range members {
		if inGroup[m.entity.ID] {
			continue
		}
		inGroup[m.entity.ID] = true
		ids = append(ids, m.entity.ID)
		names = append(names, m.entity.DisplayName())
	}

	detail := fmt.Sprintf("%d %s: %s", len(ids), r.summary, previewList(names))

	return model.AlertRecord{
		ID:        AlertID(r.kind, r.severity, r.name, ids),
		Severity:  r.severity,
		Kind:      r.kind,
		Rule:      r.name,
		Title:     r.title,
		Detail:    detail,
		EntityIDs: ids,
	}
}

// previewList names the first few entries and summarizes the rest
func previewList(names []string) string {
	if len(names) <= groupPreviewSize {
		return strings.Join(names, ", ")
	}
	rest := len(names) - groupPreviewSize
	return fmt.Sprintf("%s y %d más", strings.Join(names[:groupPreviewSize], ", "), rest)
}

func dayPhrase(days int) string {
	switch {
	case days < -1:
		return fmt.Sprintf("venció hace %d días", -days)
	case days == -1:
		return "venció hace 1 día"
	case days == 0:
		return "vence hoy"
	case days == 1:
		return "vence mañana"
	default:
		return fmt.Sprintf("vence en %d días", days)
	}
}

func copyMetadata(in map[string]string) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
