package builder

import "github.com/dbmesh/ticketflow/pkg/models"

// BuiltinRecipes returns the recipes shipped with the engine. Deployments
// register additional recipes the same way.
func BuiltinRecipes() []*Recipe {
	return []*Recipe{
		mysqlDeployRecipe(),
		redisScaleRecipe(),
		kafkaRestartRecipe(),
		mysqlDelayedDropRecipe(),
	}
}

// mysqlDeployRecipe provisions a new MySQL cluster: approval, capacity from
// the pool, then the deploy pipeline against the new resources.
func mysqlDeployRecipe() *Recipe {
	return &Recipe{
		Type:  "mysql-deploy",
		Title: "Deploy MySQL cluster",
		DetailsSchema: `{
			"type": "object",
			"required": ["version", "spec"],
			"properties": {
				"version": {"type": "string"},
				"spec": {
					"type": "object",
					"required": ["cpu", "memory_gb", "replicas"],
					"properties": {
						"cpu": {"type": "integer", "minimum": 1},
						"memory_gb": {"type": "integer", "minimum": 1},
						"replicas": {"type": "integer", "minimum": 1}
					}
				},
				"resource_ids": {"type": "array", "items": {"type": "string"}}
			}
		}`,
		Flows: []FlowBlueprint{
			{
				Kind:        models.FlowKindITSMApproval,
				RetryPolicy: models.RetryPolicyManual,
			},
			{
				Kind:        models.FlowKindResourceApply,
				RetryPolicy: models.RetryPolicyManual,
			},
			{
				Kind:        models.FlowKindInnerPipeline,
				RetryPolicy: models.RetryPolicyAuto,
				MaxRetries:  3,
				Mutating:    true,
				Details:     map[string]any{"pipeline": "mysql-deploy"},
			},
		},
	}
}

// redisScaleRecipe resizes a redis cluster with an operator confirmation
// between capacity grant and execution.
func redisScaleRecipe() *Recipe {
	return &Recipe{
		Type:  "redis-scale",
		Title: "Scale redis cluster",
		DetailsSchema: `{
			"type": "object",
			"required": ["target_shards"],
			"properties": {
				"target_shards": {"type": "integer", "minimum": 1},
				"confirmers": {"type": "array", "items": {"type": "string"}},
				"resource_ids": {"type": "array", "items": {"type": "string"}}
			}
		}`,
		Flows: []FlowBlueprint{
			{
				Kind:        models.FlowKindITSMApproval,
				RetryPolicy: models.RetryPolicyManual,
			},
			{
				Kind:        models.FlowKindPauseConfirm,
				RetryPolicy: models.RetryPolicyNone,
			},
			{
				Kind:        models.FlowKindResourceApply,
				RetryPolicy: models.RetryPolicyManual,
			},
			{
				Kind:        models.FlowKindInnerPipeline,
				RetryPolicy: models.RetryPolicyAuto,
				MaxRetries:  3,
				Mutating:    true,
				Details:     map[string]any{"pipeline": "redis-scale"},
			},
		},
	}
}

// kafkaRestartRecipe performs a rolling restart. The pipeline stage is
// skippable so a stuck broker restart can be waved through by an operator.
func kafkaRestartRecipe() *Recipe {
	return &Recipe{
		Type:  "kafka-restart",
		Title: "Rolling restart of kafka cluster",
		DetailsSchema: `{
			"type": "object",
			"properties": {
				"reason": {"type": "string"},
				"resource_ids": {"type": "array", "items": {"type": "string"}}
			}
		}`,
		Flows: []FlowBlueprint{
			{
				Kind:        models.FlowKindITSMApproval,
				RetryPolicy: models.RetryPolicyManual,
			},
			{
				Kind:        models.FlowKindInnerPipeline,
				RetryPolicy: models.RetryPolicyManual,
				Skippable:   true,
				Mutating:    true,
				Details:     map[string]any{"pipeline": "kafka-rolling-restart"},
			},
		},
	}
}

// mysqlDelayedDropRecipe drops a database after a grace period, giving the
// owner time to abort.
func mysqlDelayedDropRecipe() *Recipe {
	return &Recipe{
		Type:  "mysql-delayed-drop",
		Title: "Drop MySQL database after grace period",
		DetailsSchema: `{
			"type": "object",
			"required": ["database"],
			"properties": {
				"database": {"type": "string"},
				"delay_seconds": {"type": "number", "minimum": 60},
				"resource_ids": {"type": "array", "items": {"type": "string"}}
			}
		}`,
		Flows: []FlowBlueprint{
			{
				Kind:        models.FlowKindITSMApproval,
				RetryPolicy: models.RetryPolicyManual,
			},
			{
				Kind:        models.FlowKindTimerDelay,
				RetryPolicy: models.RetryPolicyNone,
			},
			{
				Kind:        models.FlowKindInnerPipeline,
				RetryPolicy: models.RetryPolicyManual,
				Mutating:    true,
				Details:     map[string]any{"pipeline": "mysql-drop-database"},
			},
		},
	}
}
