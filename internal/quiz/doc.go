// Package quiz loads, publishes and marks whitelist quizzes.
//
// A quiz is a JSON document owned by one registered server:
//
//	{"client_key": "...", "pass": 6, "questions": [
//	    {"type": "radio", "correct": 2, "score": 2, ...},
//	    {"type": "multiple", "correct": 5, "score": [1, 3], ...}
//	]}
//
// Fields other than client_key, pass, type, correct and score are opaque and
// passed through to players untouched.
package quiz
