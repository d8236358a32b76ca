package domain

import (
	"strings"
	"unicode/utf8"
)

const (
	minQuestionLength = 3
	maxQuestionLength = 4000
)

// ValidateQuestion checks a user question before it enters the pipeline.
func ValidateQuestion(text string) error {
	trimmed := strings.TrimSpace(text)

	if trimmed == "" {
		return NewQueryError("question", trimmed, ErrInvalidQuery)
	}
	if utf8.RuneCountInString(trimmed) < minQuestionLength {
		return NewQueryError("question", trimmed, ErrQueryTooShort)
	}
	if utf8.RuneCountInString(trimmed) > maxQuestionLength {
		return NewQueryError("question", trimmed[:64], ErrInvalidQuery)
	}
	return nil
}

// ValidateDocument checks a document before ingestion.
func ValidateDocument(doc Document) error {
	if strings.TrimSpace(doc.ID) == "" {
		return NewQueryError("id", doc.ID, ErrInvalidQuery)
	}
	if strings.TrimSpace(doc.Text) == "" {
		return NewQueryError("text", doc.ID, ErrInvalidQuery)
	}
	return nil
}
