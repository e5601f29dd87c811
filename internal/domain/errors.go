package domain

import "errors"

var (
	ErrNotFound       = errors.New("not found")
	ErrInvalidAddress = errors.New("invalid address")
	ErrUpstream       = errors.New("upstream request failed")
	ErrContextDone    = errors.New("context cancelled")
)
