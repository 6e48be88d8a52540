package segmentation

import (
	"image/color"
	"math/rand/v2"
)

// ColorGenerator hands out one label colour per contour
type ColorGenerator interface {
	Next() color.RGBA
}

// RandomColors draws each channel uniformly from [0, 255), matching the bridge's
// historical colouring. Colours are opaque.
type RandomColors struct {
	rng *rand.Rand
}

// NewRandomColors seeds the generator; seed 0 picks a random seed
func NewRandomColors(seed uint64) *RandomColors {
	if seed == 0 {
		seed = rand.Uint64()
	}
	return &RandomColors{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

func (r *RandomColors) Next() color.RGBA {
	return color.RGBA{
		R: uint8(r.rng.IntN(255)),
		G: uint8(r.rng.IntN(255)),
		B: uint8(r.rng.IntN(255)),
		A: 255,
	}
}

// PaletteColors cycles through a fixed list, for reproducible output
type PaletteColors struct {
	palette []color.RGBA
	next    int
}

var defaultPalette = []color.RGBA{
	{R: 230, G: 25, B: 75, A: 255},
	{R: 60, G: 180, B: 75, A: 255},
	{R: 255, G: 225, B: 25, A: 255},
	{R: 0, G: 130, B: 200, A: 255},
	{R: 245, G: 130, B: 48, A: 255},
	{R: 145, G: 30, B: 180, A: 255},
	{R: 70, G: 240, B: 240, A: 255},
	{R: 240, G: 50, B: 230, A: 255},
}

func NewPaletteColors(palette ...color.RGBA) *PaletteColors {
	if len(palette) == 0 {
		palette = defaultPalette
	}
	return &PaletteColors{palette: palette}
}

func (p *PaletteColors) Next() color.RGBA {
	c := p.palette[p.next%len(p.palette)]
	p.next++
	return c
}
