package main

import (
	"github.com/liamcoop/cellrules/dataset"
	"github.com/liamcoop/cellrules/rules"
	"github.com/liamcoop/cellrules/sessions"
)

// API request and response models

// OperatorResponse describes one operator for the authoring panel
type OperatorResponse struct {
	Kind  rules.Operator `json:"kind" example:"greaterThan"`
	Label string         `json:"label" example:"Greater Than"`
}

// OperatorsResponse lists operators in display order
type OperatorsResponse struct {
	Operators []OperatorResponse `json:"operators"`
	Default   rules.Operator     `json:"default" example:"contains"`
}

// SchemaResponse describes the dataset columns
type SchemaResponse struct {
	Fields []dataset.Field `json:"fields"`
}

// SessionsListResponse represents the response for listing sessions
type SessionsListResponse struct {
	Sessions []sessions.Info `json:"sessions"`
}

// RulesListResponse represents the response for listing rules
type RulesListResponse struct {
	Rules []*rules.Rule `json:"rules"`
}

// EvaluateRequest asks for the style of one cell
type EvaluateRequest struct {
	ColumnID string       `json:"columnId" example:"status"`
	Value    rules.Scalar `json:"value"`
}

// EvaluateResponse is the merged style for a cell
type EvaluateResponse struct {
	Style rules.Style `json:"style"`
	CSS   string      `json:"css" example:"background-color: #ffed9d"`
}

// ExplainResponse reports every rule targeting a column
type ExplainResponse struct {
	Results []*rules.EvaluationResult `json:"results"`
	Style   rules.Style               `json:"style"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error" example:"invalid rule"`
	Details string `json:"details,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status   string `json:"status" example:"healthy"`
	Dataset  string `json:"dataset" example:"sample"`
	Sessions int    `json:"sessions"`
	Error    string `json:"error,omitempty"`
}
