package cidsum

import (
	"github.com/agenthands/cidsum/pkg/core"
)

var (
	ErrInvalidArgument = core.ErrInvalidArgument
	ErrIO              = core.ErrIO
	ErrSerialization   = core.ErrSerialization
)
