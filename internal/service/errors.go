package service

import "errors"

var (
	ErrNotFound              = errors.New("not found")
	ErrForbidden             = errors.New("forbidden")
	ErrInvalid               = errors.New("invalid request")
	ErrConflict              = errors.New("conflict")
	ErrCommentDeleted        = errors.New("comment has been deleted")
	ErrAgentServiceUndefined = errors.New("Agent Service not defined or not supported.")
)
