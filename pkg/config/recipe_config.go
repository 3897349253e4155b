// Package config provides configuration loading for declarative recipes.
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dbmesh/ticketflow/pkg/builder"
	"github.com/dbmesh/ticketflow/pkg/models"
	"gopkg.in/yaml.v3"
)

// RecipeConfigFile represents the structure of a recipes.yaml file. It covers
// static recipes only; recipes with request predicates or detail transforms
// stay in code.
type RecipeConfigFile struct {
	Recipes []RecipeConfig `yaml:"recipes"`
}

// RecipeConfig declares one ticket type.
type RecipeConfig struct {
	Type          string         `yaml:"type"`
	Title         string         `yaml:"title"`
	DetailsSchema map[string]any `yaml:"details_schema"`
	Flows         []FlowConfig   `yaml:"flows"`
}

// FlowConfig declares one stage of a recipe.
type FlowConfig struct {
	Kind        string         `yaml:"kind"`
	RetryPolicy string         `yaml:"retry_policy"`
	MaxRetries  int            `yaml:"max_retries"`
	Skippable   bool           `yaml:"skippable"`
	Mutating    bool           `yaml:"mutating"`
	Details     map[string]any `yaml:"details"`
}

// LoadRecipes reads recipe declarations from a YAML file.
func LoadRecipes(filepath string) ([]*builder.Recipe, error) {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", filepath, err)
	}

	var configFile RecipeConfigFile

	err = yaml.Unmarshal(data, &configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	recipes := make([]*builder.Recipe, 0, len(configFile.Recipes))

	for _, rc := range configFile.Recipes {
		recipe, err := rc.toRecipe()
		if err != nil {
			return nil, err
		}

		recipes = append(recipes, recipe)
	}

	return recipes, nil
}

func (rc RecipeConfig) toRecipe() (*builder.Recipe, error) {
	recipe := &builder.Recipe{
		Type:  rc.Type,
		Title: rc.Title,
	}

	if rc.DetailsSchema != nil {
		schema, err := json.Marshal(rc.DetailsSchema)
		if err != nil {
			return nil, fmt.Errorf("recipe %q has an unserializable schema: %w", rc.Type, err)
		}

		recipe.DetailsSchema = string(schema)
	}

	for _, fc := range rc.Flows {
		blueprint, err := fc.toBlueprint(rc.Type)
		if err != nil {
			return nil, err
		}

		recipe.Flows = append(recipe.Flows, blueprint)
	}

	return recipe, nil
}

func (fc FlowConfig) toBlueprint(recipeType string) (builder.FlowBlueprint, error) {
	kind := models.FlowKind(fc.Kind)

	switch kind {
	case models.FlowKindITSMApproval,
		models.FlowKindInnerPipeline,
		models.FlowKindResourceApply,
		models.FlowKindPauseConfirm,
		models.FlowKindTimerDelay:
	default:
		return builder.FlowBlueprint{}, fmt.Errorf("recipe %q uses unknown flow kind %q", recipeType, fc.Kind)
	}

	policy := models.RetryPolicy(fc.RetryPolicy)
	if fc.RetryPolicy == "" {
		policy = models.RetryPolicyNone
	}

	switch policy {
	case models.RetryPolicyManual, models.RetryPolicyAuto, models.RetryPolicyNone:
	default:
		return builder.FlowBlueprint{}, fmt.Errorf("recipe %q uses unknown retry policy %q", recipeType, fc.RetryPolicy)
	}

	return builder.FlowBlueprint{
		Kind:        kind,
		RetryPolicy: policy,
		MaxRetries:  fc.MaxRetries,
		Skippable:   fc.Skippable,
		Mutating:    fc.Mutating,
		Details:     fc.Details,
	}, nil
}
