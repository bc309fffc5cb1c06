package board

import (
	"github.com/lucasb-eyer/go-colorful"

	"github.com/coreman2200/openscb/internal/wire"
)

// DisabledColor is shown for disabled outputs.
const DisabledColor = "#C0C0C0"

// Hues are spread by stepping a prime through the wheel so neighbouring
// outputs get distant colors.
const huePrime = 17

var palette = func() [wire.MaxOutputs]string {
	var p [wire.MaxOutputs]string
	for i := range p {
		h := float64((huePrime*i)%wire.MaxOutputs) / wire.MaxOutputs
		p[i] = colorful.Hsl(h*360, 0.2, 0.9).Hex()
	}
	return p
}()

// OutputColor is the display color of out as #rrggbb.
func (b *Board) OutputColor(out int) string {
	if out < 0 || out >= len(palette) || !b.OutputEnabled(out) {
		return DisabledColor
	}
	return palette[out]
}
