// Package grading scores objective answers deterministically. It has no side
// effects and runs exactly once per attempt, at submission.
package grading

import (
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/provexam/provex-backend/internal/model"
)

// Policy carries the exam-level scoring rules.
type Policy struct {
	NegativeMarking bool
	// NegativeMarks is the penalty subtracted for a wrong objective answer
	// when NegativeMarking is on. Stored positive, applied negative.
	NegativeMarks float64
	// TotalMarks is the exam's declared total. When zero, the sum of
	// question marks is used instead.
	TotalMarks float64
}

// Summary is the attempt-level outcome.
type Summary struct {
	Score      float64
	TotalMarks float64
	Percentage float64
}

// Grade scores every question of an exam against the student's answers.
// Essay questions come back ungraded with zero marks; unanswered questions
// score zero and never incur the negative-marking penalty. The overall score
// may go negative — no floor is applied here.
func Grade(questions []model.Question, answers map[uuid.UUID]model.Answer, policy Policy) ([]model.QuestionResult, Summary) {
	results := make([]model.QuestionResult, 0, len(questions))

	var score, questionTotal float64
	for _, q := range questions {
		questionTotal += q.Marks

		res := model.QuestionResult{
			QuestionID:      q.ID,
			CanonicalAnswer: q.CorrectAnswer,
		}
		if a, ok := answers[q.ID]; ok {
			res.StudentAnswer = a.Payload
		}

		if !q.QuestionType.Objective() {
			// Manual review; no correctness flag, no marks.
			results = append(results, res)
			continue
		}

		res.Graded = true
		if strings.TrimSpace(res.StudentAnswer) == "" {
			results = append(results, res)
			continue
		}

		var correct bool
		switch q.QuestionType {
		case model.QuestionTypeSingleChoice:
			correct = strings.EqualFold(
				strings.TrimSpace(res.StudentAnswer),
				strings.TrimSpace(q.CorrectAnswer),
			)
		case model.QuestionTypeMultiChoice:
			correct = setsEqual(
				NormalizeSet(res.StudentAnswer),
				NormalizeSet(q.CorrectAnswer),
			)
		}

		res.Correct = &correct
		if correct {
			res.MarksAwarded = q.Marks
		} else if policy.NegativeMarking {
			res.MarksAwarded = -policy.NegativeMarks
		}
		score += res.MarksAwarded

		results = append(results, res)
	}

	total := policy.TotalMarks
	if total <= 0 {
		total = questionTotal
	}

	summary := Summary{Score: score, TotalMarks: total}
	if total > 0 {
		summary.Percentage = 100 * score / total
	}
	return results, summary
}

// NormalizeSet canonicalizes a comma-separated answer set: trimmed,
// uppercased, de-duplicated, sorted.
func NormalizeSet(raw string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, part := range strings.Split(raw, ",") {
		v := strings.ToUpper(strings.TrimSpace(part))
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

func setsEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
