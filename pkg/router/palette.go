package router

// DefaultPalette is cycled through for logs without a configured color.
var DefaultPalette = []string{
	"green", "yellow", "blue", "magenta", "cyan",
	"grey_on_green", "grey_on_yellow", "grey_on_blue", "grey_on_magenta", "grey_on_cyan", "grey_on_white",
}

// Palette hands out colors round-robin.
type Palette struct {
	colors []string
	next   int
}

// NewPalette creates a palette over colors, or DefaultPalette when empty.
func NewPalette(colors []string) *Palette {
	if len(colors) == 0 {
		colors = DefaultPalette
	}
	return &Palette{colors: colors}
}

// Next returns the next color.
func (p *Palette) Next() string {
	c := p.colors[p.next]
	p.next = (p.next + 1) % len(p.colors)
	return c
}
