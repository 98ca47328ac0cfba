// Package seed loads the embedded demo Suite/Test fixture on first boot (SeedDemoSuite),
// grounded on original_source's db/seeds.py seed_demo_suites, and keeps ProviderSettings
// defaults populated for every known ConnectionType the way seed_provider_settings does.
package seed

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/llmrace/llmrace-backend/internal/models"
	"github.com/llmrace/llmrace-backend/internal/repository"
)

//go:embed fixtures/demo_suites.json
var demoSuitesJSON []byte

type fixtureTest struct {
	Name                string          `json:"name"`
	SystemPrompt        *string         `json:"system_prompt,omitempty"`
	UserPrompt          string          `json:"user_prompt"`
	ExpectedConstraints *string         `json:"expected_constraints,omitempty"`
	ToolsSchema         json.RawMessage `json:"tools_schema,omitempty"`
}

type fixtureSuite struct {
	Name     string        `json:"name"`
	Category string        `json:"category"`
	Tests    []fixtureTest `json:"tests"`
}

// DemoSuites loads the embedded demo Suite/Test fixture. Only if suites is empty, every
// Suite in the fixture is inserted (is_demo=true) along with its ordered Tests.
func DemoSuites(ctx context.Context, store repository.Store) error {
	existing, err := store.ListSuites(ctx)
	if err != nil {
		return fmt.Errorf("listing suites: %w", err)
	}
	if len(existing) > 0 {
		return nil
	}

	var suites []fixtureSuite
	if err := json.Unmarshal(demoSuitesJSON, &suites); err != nil {
		return fmt.Errorf("parsing demo suite fixture: %w", err)
	}

	for _, def := range suites {
		now := time.Now().UTC()
		suite := &models.Suite{
			ID:        uuid.New().String(),
			Name:      def.Name,
			Category:  def.Category,
			IsDemo:    true,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := store.CreateSuite(ctx, suite); err != nil {
			return fmt.Errorf("creating demo suite %q: %w", def.Name, err)
		}

		for i, t := range def.Tests {
			var toolsSchema *string
			if len(t.ToolsSchema) > 0 {
				s := string(t.ToolsSchema)
				toolsSchema = &s
			}
			test := &models.Test{
				ID:                  uuid.New().String(),
				SuiteID:             suite.ID,
				OrderIndex:          i,
				Name:                t.Name,
				SystemPrompt:        t.SystemPrompt,
				UserPrompt:          t.UserPrompt,
				ExpectedConstraints: t.ExpectedConstraints,
				ToolsSchema:         toolsSchema,
				CreatedAt:           time.Now().UTC(),
			}
			if err := store.CreateTest(ctx, test); err != nil {
				return fmt.Errorf("creating demo test %q in suite %q: %w", t.Name, def.Name, err)
			}
		}
	}
	return nil
}

// ProviderSettingsDefaults upserts §9's default ProviderSettings row for every known
// ConnectionType that has none yet, so the executor never falls back to in-process
// DefaultProviderSettings for a provider an operator has not explicitly configured.
func ProviderSettingsDefaults(ctx context.Context, store repository.Store) error {
	for _, providerType := range []models.ConnectionType{
		models.ConnectionOllama,
		models.ConnectionOpenAI,
		models.ConnectionAnthropic,
		models.ConnectionOpenRouter,
		models.ConnectionOpenAICompat,
		models.ConnectionLlamaCppOpenAI,
		models.ConnectionCustom,
	} {
		existing, err := store.GetProviderSettings(ctx, providerType)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("checking provider settings for %s: %w", providerType, err)
		}
		if existing != nil {
			continue
		}
		defaults := models.DefaultProviderSettings(providerType)
		defaults.ID = uuid.New().String()
		defaults.TimeoutMs = 90000
		defaults.RetryBackoffMs = 500
		if err := store.UpsertProviderSettings(ctx, &defaults); err != nil {
			return fmt.Errorf("seeding provider settings for %s: %w", providerType, err)
		}
	}
	return nil
}
