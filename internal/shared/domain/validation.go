package domain

import (
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// ValidateUUID checks if a string is a valid UUID
func ValidateUUID(id string) error {
	if id == "" {
		return NewValidationFieldError("id", "UUID cannot be empty")
	}

	if _, err := uuid.Parse(id); err != nil {
		return NewValidationFieldError("id", "invalid UUID format")
	}

	return nil
}

// ValidateRequiredString checks if a required string field is valid
func ValidateRequiredString(fieldName, value string) error {
	if strings.TrimSpace(value) == "" {
		return NewValidationFieldError(fieldName, fieldName+" cannot be empty")
	}
	
	return nil
}

// ValidateRequiredStringWithLength checks if a required string field is valid and within length limit
func ValidateRequiredStringWithLength(fieldName, value string, maxLength int) error {
	if err := ValidateRequiredString(fieldName, value); err != nil {
		return err
	}
	
	if len(value) > maxLength {
		return NewValidationFieldError(fieldName, fieldName+" cannot exceed "+strconv.Itoa(maxLength)+" characters")
	}
	
	return nil
}

// ValidateEnum validates that a value is one of the allowed enum values
func ValidateEnum(fieldName, value string, allowedValues []string) error {
	if value == "" {
		return NewValidationFieldError(fieldName, fieldName+" cannot be empty")
	}
	
	for _, allowed := range allowedValues {
		if value == allowed {
			return nil
		}
	}
	
	return NewValidationFieldError(fieldName, "invalid "+fieldName+" value: "+value)
}