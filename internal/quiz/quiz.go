package quiz

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
)

// Question types.
const (
	TypeRadio    = "radio"
	TypeMultiple = "multiple"
)

// Errors
var (
	ErrNotFound    = errors.New("quiz not found")
	ErrInvalidQuiz = errors.New("invalid quiz")
)

// hiddenQuizFields and hiddenQuestionFields never reach players.
var (
	hiddenQuizFields     = []string{"pass", "client_key"}
	hiddenQuestionFields = []string{"correct", "score"}
)

// Question is the markable part of one question.
type Question struct {
	Type    string
	Correct any

	// Full is awarded for an exact answer. Partial applies to multiple-choice
	// answers that are non-empty but short of the correct value.
	Full    int64
	Partial int64
}

// Quiz is a parsed quiz document.
type Quiz struct {
	ClientKey string
	Pass      int64
	Questions []Question

	raw map[string]any
}

// Parse decodes and validates a quiz document.
func Parse(data []byte) (*Quiz, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidQuiz, err)
	}
	if raw == nil {
		return nil, fmt.Errorf("%w: not an object", ErrInvalidQuiz)
	}

	list, ok := raw["questions"].([]any)
	if !ok {
		return nil, fmt.Errorf("%w: questions must be an array", ErrInvalidQuiz)
	}

	q := &Quiz{raw: raw}
	if key, ok := raw["client_key"].(string); ok {
		q.ClientKey = key
	}
	if v, present := raw["pass"]; present {
		pass, ok := asInt(v)
		if !ok {
			return nil, fmt.Errorf("%w: pass must be an integer", ErrInvalidQuiz)
		}
		q.Pass = pass
	}

	q.Questions = make([]Question, 0, len(list))
	for i, item := range list {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: question %d is not an object", ErrInvalidQuiz, i)
		}
		question, err := parseQuestion(obj)
		if err != nil {
			return nil, fmt.Errorf("%w: question %d: %v", ErrInvalidQuiz, i, err)
		}
		q.Questions = append(q.Questions, question)
	}

	return q, nil
}

func parseQuestion(obj map[string]any) (Question, error) {
	typ, _ := obj["type"].(string)
	question := Question{Type: typ, Correct: obj["correct"]}

	switch typ {
	case TypeRadio:
		full, ok := asInt(obj["score"])
		if !ok {
			return Question{}, errors.New("radio score must be an integer")
		}
		question.Full = full
	case TypeMultiple:
		scores, ok := obj["score"].([]any)
		if !ok || len(scores) != 2 {
			return Question{}, errors.New("multiple score must be [partial, full]")
		}
		partial, pok := asInt(scores[0])
		full, fok := asInt(scores[1])
		if !pok || !fok {
			return Question{}, errors.New("multiple score must hold integers")
		}
		question.Partial, question.Full = partial, full
	}
	// Other types are carried but never scored.

	return question, nil
}

// Public returns the document with answers, scores, pass mark and owner key
// removed.
func (q *Quiz) Public() map[string]any {
	out := make(map[string]any, len(q.raw))
	for k, v := range q.raw {
		out[k] = v
	}
	for _, f := range hiddenQuizFields {
		delete(out, f)
	}

	if list, ok := q.raw["questions"].([]any); ok {
		questions := make([]any, len(list))
		for i, item := range list {
			obj, ok := item.(map[string]any)
			if !ok {
				questions[i] = item
				continue
			}
			copied := make(map[string]any, len(obj))
			for k, v := range obj {
				copied[k] = v
			}
			for _, f := range hiddenQuestionFields {
				delete(copied, f)
			}
			questions[i] = copied
		}
		out["questions"] = questions
	}

	return out
}

// Mark scores answers positionally against the questions. Missing answers
// count as null.
func (q *Quiz) Mark(answers []any) int64 {
	var score int64
	for i, question := range q.Questions {
		var answer any
		if i < len(answers) {
			answer = answers[i]
		}

		switch question.Type {
		case TypeMultiple:
			switch {
			case jsonEqual(answer, question.Correct):
				score += question.Full
			case answer != nil && intLess(answer, question.Correct):
				score += question.Partial
			}
		case TypeRadio:
			if jsonEqual(answer, question.Correct) {
				score += question.Full
			}
		}
	}
	return score
}

// Passed reports whether score reaches the pass mark.
func (q *Quiz) Passed(score int64) bool {
	return score >= q.Pass
}

// asInt reads a decoded JSON number holding an integer.
func asInt(v any) (int64, bool) {
	f, ok := v.(float64)
	if !ok || f != math.Trunc(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return int64(f), true
}

// intLess orders values by their integer reading, with non-integers sorting
// before every integer.
func intLess(a, b any) bool {
	ai, aok := asInt(a)
	bi, bok := asInt(b)
	switch {
	case !aok:
		return bok
	case !bok:
		return false
	default:
		return ai < bi
	}
}

func jsonEqual(a, b any) bool {
	return reflect.DeepEqual(a, b)
}
