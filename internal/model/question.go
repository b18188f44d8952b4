package model

import (
	"encoding/json"

	"github.com/google/uuid"
)

// QuestionType enumerates supported question kinds.
// Only the objective types are auto-graded; essays await manual review.
type QuestionType string

const (
	QuestionTypeSingleChoice QuestionType = "SINGLE_CHOICE"
	QuestionTypeMultiChoice  QuestionType = "MULTI_CHOICE"
	QuestionTypeEssay        QuestionType = "ESSAY"
)

// Objective reports whether the type is auto-gradable.
func (t QuestionType) Objective() bool {
	return t == QuestionTypeSingleChoice || t == QuestionTypeMultiChoice
}

// Question is a single exam question as the engine reads it.
// CorrectAnswer holds the canonical answer; for MULTI_CHOICE it is a
// comma-separated set.
type Question struct {
	ID            uuid.UUID       `json:"id"`
	ExamID        uuid.UUID       `json:"exam_id"`
	QuestionText  string          `json:"question_text"`
	QuestionType  QuestionType    `json:"question_type"`
	Options       json.RawMessage `json:"options,omitempty"`
	CorrectAnswer string          `json:"-"`
	Marks         float64         `json:"marks"`
	OrderNum      int             `json:"order_num"`
}
