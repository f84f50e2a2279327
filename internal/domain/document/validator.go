package document

import (
	"fmt"
	"strings"
)

// UniversalRequiredFields обязательные поля любого синхронизируемого документа
var UniversalRequiredFields = []string{FieldID, FieldUserID}

// ValidationResult результат проверки документа
type ValidationResult struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors,omitempty"`
}

// Err возвращает ошибку валидации или nil
func (r ValidationResult) Err() error {
	if r.Valid {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrInvalidDocument, strings.Join(r.Errors, "; "))
}

// Validator проверяет обязательные поля документов перед постановкой в очередь
type Validator struct {
	required map[string][]string
}

// DefaultRequiredFields обязательные поля по коллекциям
func DefaultRequiredFields() map[string][]string {
	return map[string][]string{
		"tasks":           {"title", "status"},
		"notes":           {"title"},
		"threads":         {"title"},
		"messages":        {"threadId", "role", "content"},
		"memories":        {"content"},
		"preferences":     {"key"},
		"calendar_events": {"title", "startTime"},
	}
}

// NewValidator создает валидатор с набором обязательных полей по коллекциям
func NewValidator(required map[string][]string) *Validator {
	if required == nil {
		required = map[string][]string{}
	}
	return &Validator{required: required}
}

// ValidateSyncDocument проверяет универсальные и специфичные для коллекции поля
func (v *Validator) ValidateSyncDocument(collection string, doc Document) ValidationResult {
	var errs []string

	if doc == nil {
		return ValidationResult{Valid: false, Errors: []string{"document is nil"}}
	}

	for _, field := range UniversalRequiredFields {
		if isMissing(doc, field) {
			errs = append(errs, fmt.Sprintf("missing required field: %s", field))
		}
	}

	for _, field := range v.required[collection] {
		if isMissing(doc, field) {
			errs = append(errs, fmt.Sprintf("missing required field for %s: %s", collection, field))
		}
	}

	return ValidationResult{Valid: len(errs) == 0, Errors: errs}
}

func isMissing(doc Document, field string) bool {
	v, ok := doc[field]
	if !ok || v == nil {
		return true
	}
	if s, isString := v.(string); isString && strings.TrimSpace(s) == "" {
		return true
	}
	return false
}
