package render

var (
	defaultPalette = []rune(" .:-=+*#%@")
	blockPalette   = []rune(" ░▒▓█")
	asciiPalette   = []rune(" .,:;ox%#@")
)

// Palette returns the glyph ramp used when colour output is disabled,
// ordered from dark to light.
func Palette(name string) []rune {
	switch name {
	case "block":
		return blockPalette
	case "ascii":
		return asciiPalette
	default:
		return defaultPalette
	}
}

// PaletteNames returns all palette identifiers.
func PaletteNames() []string {
	return []string{"default", "block", "ascii"}
}
