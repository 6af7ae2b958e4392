// Package exam runs the upload-to-result lifecycle of an exam session.
package exam

import "errors"

var (
	ErrNoDocument          = errors.New("no cached document text")
	ErrInsufficientContent = errors.New("document text is too short")
	ErrNotInExam           = errors.New("session is not in the exam state")
	ErrIndexOutOfRange     = errors.New("question index out of range")
	ErrUnknownQuestion     = errors.New("unknown question")
	ErrOptionOutOfRange    = errors.New("option index out of range")
	ErrNoQuestions         = errors.New("no question set loaded")
	ErrSessionNotFound     = errors.New("session not found")
)
