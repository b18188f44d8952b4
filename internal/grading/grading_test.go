package grading

import (
	"testing"

	"github.com/google/uuid"
	"github.com/provexam/provex-backend/internal/model"
	"github.com/stretchr/testify/require"
)

func singleChoice(correct string, marks float64) model.Question {
	return model.Question{
		ID:            uuid.New(),
		QuestionType:  model.QuestionTypeSingleChoice,
		CorrectAnswer: correct,
		Marks:         marks,
	}
}

func multiChoice(correct string, marks float64) model.Question {
	return model.Question{
		ID:            uuid.New(),
		QuestionType:  model.QuestionTypeMultiChoice,
		CorrectAnswer: correct,
		Marks:         marks,
	}
}

func answerFor(q model.Question, payload string) map[uuid.UUID]model.Answer {
	return map[uuid.UUID]model.Answer{
		q.ID: {QuestionID: q.ID, Payload: payload},
	}
}

func TestGradeSingleChoiceCaseInsensitive(t *testing.T) {
	q := singleChoice("B", 5)

	results, summary := Grade([]model.Question{q}, answerFor(q, "b"), Policy{})

	require.Len(t, results, 1)
	require.True(t, results[0].Graded)
	require.NotNil(t, results[0].Correct)
	require.True(t, *results[0].Correct)
	require.Equal(t, 5.0, results[0].MarksAwarded)
	require.Equal(t, 5.0, summary.Score)
	require.Equal(t, 100.0, summary.Percentage)
}

func TestGradeWrongAnswerWithNegativeMarking(t *testing.T) {
	q := singleChoice("B", 5)
	policy := Policy{NegativeMarking: true, NegativeMarks: 1}

	results, summary := Grade([]model.Question{q}, answerFor(q, "C"), policy)

	require.NotNil(t, results[0].Correct)
	require.False(t, *results[0].Correct)
	require.Equal(t, -1.0, results[0].MarksAwarded)
	require.Equal(t, -1.0, summary.Score)
}

func TestGradeUnansweredNeverPenalized(t *testing.T) {
	q := singleChoice("B", 5)
	policy := Policy{NegativeMarking: true, NegativeMarks: 1}

	results, summary := Grade([]model.Question{q}, nil, policy)

	require.True(t, results[0].Graded)
	require.Nil(t, results[0].Correct)
	require.Equal(t, 0.0, results[0].MarksAwarded)
	require.Equal(t, 0.0, summary.Score)

	// Whitespace-only counts as unanswered too.
	results, summary = Grade([]model.Question{q}, answerFor(q, "   "), policy)
	require.Nil(t, results[0].Correct)
	require.Equal(t, 0.0, summary.Score)
}

func TestGradeMultiChoiceSetSemantics(t *testing.T) {
	q := multiChoice("A,C", 4)
	policy := Policy{NegativeMarking: true, NegativeMarks: 2}

	// Order and case are irrelevant, duplicates collapse.
	results, summary := Grade([]model.Question{q}, answerFor(q, "c, a, C"), policy)
	require.True(t, *results[0].Correct)
	require.Equal(t, 4.0, summary.Score)

	// A partial set is simply wrong.
	results, summary = Grade([]model.Question{q}, answerFor(q, "a"), policy)
	require.False(t, *results[0].Correct)
	require.Equal(t, -2.0, summary.Score)
}

func TestGradeEssayStaysUngraded(t *testing.T) {
	q := model.Question{
		ID:           uuid.New(),
		QuestionType: model.QuestionTypeEssay,
		Marks:        10,
	}

	results, summary := Grade([]model.Question{q}, answerFor(q, "a long essay"), Policy{})

	require.False(t, results[0].Graded)
	require.Nil(t, results[0].Correct)
	require.Equal(t, 0.0, results[0].MarksAwarded)
	require.Equal(t, 0.0, summary.Score)
	// The essay's marks still count toward the total.
	require.Equal(t, 10.0, summary.TotalMarks)
}

func TestGradeScoreCanGoNegative(t *testing.T) {
	q1 := singleChoice("A", 2)
	q2 := singleChoice("B", 2)
	policy := Policy{NegativeMarking: true, NegativeMarks: 3}

	answers := map[uuid.UUID]model.Answer{
		q1.ID: {QuestionID: q1.ID, Payload: "D"},
		q2.ID: {QuestionID: q2.ID, Payload: "D"},
	}
	_, summary := Grade([]model.Question{q1, q2}, answers, policy)

	require.Equal(t, -6.0, summary.Score)
	require.Less(t, summary.Percentage, 0.0)
}

func TestGradeDeclaredTotalOverridesQuestionSum(t *testing.T) {
	q := singleChoice("A", 5)

	_, summary := Grade([]model.Question{q}, answerFor(q, "A"), Policy{TotalMarks: 20})

	require.Equal(t, 20.0, summary.TotalMarks)
	require.Equal(t, 25.0, summary.Percentage)
}

func TestNormalizeSet(t *testing.T) {
	require.Equal(t, []string{"A", "B", "C"}, NormalizeSet("c, a ,B, c"))
	require.Nil(t, NormalizeSet(" , ,"))
}
