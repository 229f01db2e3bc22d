package model

import "fmt"

// StructuralValidationError is returned when the XML fails the namespace,
// mandatory-subtree or layout-version checks
type StructuralValidationError struct {
	Reason string
	Cause  error
}

func (e *StructuralValidationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("invalid NF-e structure: %s (%v)", e.Reason, e.Cause)
	}
	return fmt.Sprintf("invalid NF-e structure: %s", e.Reason)
}

func (e *StructuralValidationError) Unwrap() error {
	return e.Cause
}

// NewStructuralValidationError creates a new structural validation error
func NewStructuralValidationError(reason string, cause error) *StructuralValidationError {
	return &StructuralValidationError{Reason: reason, Cause: cause}
}

// FieldExtractionError represents a required field that is absent or unparsable.
// Item is the det nItem the field belongs to, or 0 for document-level fields.
type FieldExtractionError struct {
	Field   string
	Item    int
	Message string
	Cause   error
}

func (e *FieldExtractionError) Error() string {
	field := e.Field
	if e.Item > 0 {
		field = fmt.Sprintf("item %d: %s", e.Item, e.Field)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (%v)", field, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", field, e.Message)
}

func (e *FieldExtractionError) Unwrap() error {
	return e.Cause
}

// NewFieldExtractionError creates a new field extraction error
func NewFieldExtractionError(field string, item int, message string, cause error) *FieldExtractionError {
	return &FieldExtractionError{
		Field:   field,
		Item:    item,
		Message: message,
		Cause:   cause,
	}
}

// KeyFormatError represents a malformed document key
type KeyFormatError struct {
	Key     string
	Message string
}

func (e *KeyFormatError) Error() string {
	return fmt.Sprintf("invalid document key %q: %s", e.Key, e.Message)
}

// NewKeyFormatError creates a new key format error
func NewKeyFormatError(key, message string) *KeyFormatError {
	return &KeyFormatError{Key: key, Message: message}
}

// DateParseError represents a malformed issue timestamp
type DateParseError struct {
	Field string
	Value string
	Cause error
}

func (e *DateParseError) Error() string {
	return fmt.Sprintf("invalid date in %s: %q (%v)", e.Field, e.Value, e.Cause)
}

func (e *DateParseError) Unwrap() error {
	return e.Cause
}

// NewDateParseError creates a new date parse error
func NewDateParseError(field, value string, cause error) *DateParseError {
	return &DateParseError{Field: field, Value: value, Cause: cause}
}

// IntegrationError represents a failed call to the tax calculation service,
// either terminal (4xx other than 429) or after the retry budget ran out.
// StatusCode is the last HTTP status seen, 0 when no response arrived.
type IntegrationError struct {
	Operation  string
	Attempts   int
	StatusCode int
	Cause      error
}

func (e *IntegrationError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("tax service %s failed after %d attempt(s): status %d (%v)", e.Operation, e.Attempts, e.StatusCode, e.Cause)
	}
	return fmt.Sprintf("tax service %s failed after %d attempt(s): %v", e.Operation, e.Attempts, e.Cause)
}

func (e *IntegrationError) Unwrap() error {
	return e.Cause
}

// NewIntegrationError creates a new integration error
func NewIntegrationError(operation string, attempts, status int, cause error) *IntegrationError {
	return &IntegrationError{
		Operation:  operation,
		Attempts:   attempts,
		StatusCode: status,
		Cause:      cause,
	}
}

// GenerationError represents a failure to produce the updated XML
type GenerationError struct {
	DocumentKey string
	Message     string
	Cause       error
}

func (e *GenerationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("generate %s: %s (%v)", e.DocumentKey, e.Message, e.Cause)
	}
	return fmt.Sprintf("generate %s: %s", e.DocumentKey, e.Message)
}

func (e *GenerationError) Unwrap() error {
	return e.Cause
}

// NewGenerationError creates a new generation error
func NewGenerationError(key, message string, cause error) *GenerationError {
	return &GenerationError{DocumentKey: key, Message: message, Cause: cause}
}
