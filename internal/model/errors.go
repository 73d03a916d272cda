package model

import "errors"

var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation error")
	// ErrNoDocuments signals that retrieval found nothing relevant.
	ErrNoDocuments = errors.New("no documents")
)
