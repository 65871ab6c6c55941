package core

import "errors"

var (
	ErrInvalidOrder = errors.New("core: invalid order")
	ErrNoQuote      = errors.New("core: no quote to fill against")
)
