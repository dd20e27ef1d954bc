package core

import (
	"errors"
)

var (
	ErrInvalidArgument = errors.New("cidsum: invalid argument")
	ErrIO              = errors.New("cidsum: i/o failure")
	ErrSerialization   = errors.New("cidsum: serialization failure")
	ErrCorrupt         = errors.New("cidsum: corrupt data")
	ErrNotFound        = errors.New("cidsum: not found")
)
