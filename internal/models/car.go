package models

import "time"

// Car is a named pairing of a Connection with a fixed model and sampling configuration.
type Car struct {
	ID           string    `db:"id" json:"id"`
	Name         string    `db:"name" json:"name"`
	ConnectionID string    `db:"connection_id" json:"connection_id"`
	ModelName    string    `db:"model_name" json:"model_name"`
	Temperature  float64   `db:"temperature" json:"temperature"`
	TopP         float64   `db:"top_p" json:"top_p"`
	MaxTokens    *int      `db:"max_tokens" json:"max_tokens,omitempty"`
	Stop         *string   `db:"stop" json:"stop,omitempty"` // one stop sequence, sent to providers as a single string (not split)
	Seed         *int      `db:"seed" json:"seed,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}
