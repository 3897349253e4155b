package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/dbmesh/ticketflow/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "recipes.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestLoadRecipes(t *testing.T) {
	path := writeConfig(t, `
recipes:
  - type: pg-deploy
    title: Deploy PostgreSQL
    details_schema:
      type: object
      required: [version]
      properties:
        version:
          type: string
    flows:
      - kind: itsm_approval
      - kind: resource_apply
        retry_policy: auto
        max_retries: 2
        mutating: true
      - kind: inner_pipeline
        retry_policy: manual
        skippable: true
        mutating: true
        details:
          pipeline: pg-deploy
`)

	recipes, err := LoadRecipes(path)
	require.NoError(t, err)
	require.Len(t, recipes, 1)

	recipe := recipes[0]
	assert.Equal(t, "pg-deploy", recipe.Type)
	assert.Contains(t, recipe.DetailsSchema, `"required":["version"]`)
	require.Len(t, recipe.Flows, 3)

	assert.Equal(t, models.FlowKindITSMApproval, recipe.Flows[0].Kind)
	assert.Equal(t, models.RetryPolicyNone, recipe.Flows[0].RetryPolicy)

	assert.Equal(t, models.RetryPolicyAuto, recipe.Flows[1].RetryPolicy)
	assert.Equal(t, 2, recipe.Flows[1].MaxRetries)
	assert.True(t, recipe.Flows[1].Mutating)

	assert.True(t, recipe.Flows[2].Skippable)
	assert.Equal(t, "pg-deploy", recipe.Flows[2].Details["pipeline"])
}

func TestLoadRecipes_UnknownKind(t *testing.T) {
	path := writeConfig(t, `
recipes:
  - type: broken
    flows:
      - kind: carrier_pigeon
`)

	_, err := LoadRecipes(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown flow kind")
}

func TestLoadRecipes_MissingFile(t *testing.T) {
	_, err := LoadRecipes(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}
