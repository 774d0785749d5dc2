package core

import (
	"fmt"
	"slices"
	"strings"
)

// BaseColors are the color names accepted in configuration, alone or as
// "<fg>_on_<bg>".
var BaseColors = []string{"grey", "red", "green", "yellow", "blue", "magenta", "cyan", "white"}

// ParseColor splits a color name into foreground and optional background.
func ParseColor(name string) (fg, bg string, err error) {
	fg, bg, _ = strings.Cut(name, "_on_")
	if !slices.Contains(BaseColors, fg) {
		return "", "", fmt.Errorf("unknown color %q", name)
	}
	if bg != "" && !slices.Contains(BaseColors, bg) {
		return "", "", fmt.Errorf("unknown background in color %q", name)
	}
	return fg, bg, nil
}
