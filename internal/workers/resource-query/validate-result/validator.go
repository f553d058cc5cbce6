package validateresult

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	apperrors "catalog-assistant/internal/common/errors"
	"catalog-assistant/internal/common/logger"
	"catalog-assistant/internal/common/validation"
	"catalog-assistant/internal/models"
)

var ErrValidationFailed = errors.New("VALIDATION_FAILED")

// Outcome is the validator's three-way verdict.
type Outcome string

const (
	OutcomeFailed        Outcome = "FAILED"
	OutcomeEmptyValid    Outcome = "EMPTY_VALID"
	OutcomeNonEmptyValid Outcome = "NON_EMPTY_VALID"
)

// Classification carries the verdict plus either the rows or the failure.
type Classification struct {
	Outcome Outcome
	Rows    []models.CatalogRow
	// Reason is the stable, user-safe classification for failures.
	Reason string
	Err    error
}

// ResultSchema is the shape every execution result must have.
var ResultSchema = validation.JSONSchema{
	Type: "object",
	Properties: map[string]validation.Property{
		"success": {Type: "boolean"},
		"rows": {
			Type: "array",
			Items: &validation.Property{
				Type: "object",
				Properties: map[string]validation.Property{
					"name":        {Type: "string"},
					"tier":        {Type: "string"},
					"description": {Type: []string{"string", "null"}},
					"rarity":      {Type: []string{"number", "null"}},
					"value":       {Type: []string{"number", "null"}},
				},
				Required: []string{"name", "tier"},
			},
		},
		"errorMessage": {Type: "string"},
	},
	Required: []string{"success", "rows"},
}

type Validator struct {
	logger logger.Logger
}

func NewValidator(log logger.Logger) *Validator {
	return &Validator{logger: log.With(map[string]interface{}{"stage": "validate"})}
}

// Validate classifies an execution result.
func (v *Validator) Validate(result models.ExecutionResult) Classification {
	if result.Rows == nil {
		result.Rows = []models.CatalogRow{}
	}
	res, err := validation.Validate(ResultSchema, result)
	return v.classify(res, err, func() (models.ExecutionResult, error) { return result, nil })
}

// ValidatePayload classifies a raw JSON execution result, e.g. one received
// as a job variable.
func (v *Validator) ValidatePayload(raw []byte) Classification {
	res, err := validation.ValidateBytes(ResultSchema, raw)
	return v.classify(res, err, func() (models.ExecutionResult, error) {
		var result models.ExecutionResult
		err := json.Unmarshal(raw, &result)
		return result, err
	})
}

func (v *Validator) classify(res *validation.ValidationResult, err error, decode func() (models.ExecutionResult, error)) Classification {
	if err != nil {
		return v.failed(err.Error())
	}
	if !res.Valid {
		return v.failed(strings.Join(res.GetErrorMessages(), "; "))
	}

	result, err := decode()
	if err != nil {
		return v.failed(err.Error())
	}

	if !result.Success {
		reason := result.ErrorMessage
		if reason == "" {
			reason = "query failed"
		}
		return Classification{
			Outcome: OutcomeFailed,
			Rows:    []models.CatalogRow{},
			Reason:  reason,
			Err:     fmt.Errorf("%w: %s", ErrValidationFailed, reason),
		}
	}

	if len(result.Rows) == 0 {
		return Classification{Outcome: OutcomeEmptyValid, Rows: []models.CatalogRow{}}
	}
	return Classification{Outcome: OutcomeNonEmptyValid, Rows: result.Rows}
}

func (v *Validator) failed(details string) Classification {
	v.logger.Error("execution result rejected", map[string]interface{}{
		"errorCode": string(apperrors.ErrCodeValidationFailed),
		"details":   details,
	})
	return Classification{
		Outcome: OutcomeFailed,
		Rows:    []models.CatalogRow{},
		Reason:  "validation failed",
		Err:     apperrors.NewValidationFailedError(details),
	}
}
