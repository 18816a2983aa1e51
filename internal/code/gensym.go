package code

import (
	"strconv"
	"sync/atomic"
)

// GenSym hands out fresh identifiers. Each call yields prefix followed by
// the next value of a counter that is never reused.
type GenSym struct {
	prefix string
	n      atomic.Int64
}

func NewGenSym(prefix string) *GenSym {
	return &GenSym{prefix: prefix}
}

func (g *GenSym) Next() string {
	return g.prefix + strconv.FormatInt(g.n.Add(1), 10)
}

// DefaultGenSym is shared by sessions that are not given their own.
var DefaultGenSym = NewGenSym("_mpy_")
