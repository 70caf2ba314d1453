package services

import "errors"

var (
	ErrAlreadyExists = errors.New("record already exists")
	ErrMissingID     = errors.New("record id is required")
)
