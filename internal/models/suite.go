package models

import "time"

// Suite is an ordered bag of Tests ("the benchmark").
type Suite struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Category  string    `db:"category" json:"category"`
	IsDemo    bool      `db:"is_demo" json:"is_demo"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Test is a single prompt case belonging to a Suite.
// Invariant: (suite_id, order_index) is unique.
type Test struct {
	ID                  string    `db:"id" json:"id"`
	SuiteID             string    `db:"suite_id" json:"suite_id"`
	OrderIndex          int       `db:"order_index" json:"order_index"`
	Name                string    `db:"name" json:"name"`
	SystemPrompt        *string   `db:"system_prompt" json:"system_prompt,omitempty"`
	UserPrompt          string    `db:"user_prompt" json:"user_prompt"`
	ExpectedConstraints *string   `db:"expected_constraints" json:"expected_constraints,omitempty"`
	ToolsSchema         *string   `db:"tools_schema" json:"tools_schema,omitempty"` // JSON array, provider tool-definitions shape
	CreatedAt           time.Time `db:"created_at" json:"created_at"`
}
