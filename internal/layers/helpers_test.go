package layers

import "github.com/paulmach/orb"

func orbPoint(x, y float64) orb.Point { return orb.Point{x, y} }
