package workflow

import (
	"sort"

	"github.com/moxworks/auditflow/internal/models"
)

// SelectConfig picks the single applicable routing template for an activity.
// Non-fallback candidates are evaluated in ascending priority order (lowest
// id breaks ties) and the first whose conditions hold wins; the fallback, if
// present, is evaluated last and unconditionally. Archived templates never
// participate; abnormal ones still do, their broken steps simply fail to
// materialize.
//
// Resolution is deterministic: the same candidates, payload and creator
// always select the same template.
func SelectConfig(configs []*models.AuditConfig, payload map[string]interface{}, creator CreatorContext) (*models.AuditConfig, error) {
	var conditional []*models.AuditConfig
	var fallback *models.AuditConfig

	for _, cfg := range configs {
		if cfg.Archived {
			continue
		}
		if cfg.Fallback {
			if fallback == nil || cfg.ID < fallback.ID {
				fallback = cfg
			}
			continue
		}
		conditional = append(conditional, cfg)
	}

	sort.SliceStable(conditional, func(i, j int) bool {
		if conditional[i].Priority != conditional[j].Priority {
			return conditional[i].Priority < conditional[j].Priority
		}
		return conditional[i].ID < conditional[j].ID
	})

	for _, cfg := range conditional {
		if EvaluateConditions(cfg.Conditions, payload, creator) {
			return cfg, nil
		}
	}

	if fallback != nil {
		return fallback, nil
	}
	return nil, ErrTemplateNotFound
}
