package gui

import (
	"image/color"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/theme"
)

// Dark palette with a teal accent
var (
	ColorBackground      = color.NRGBA{R: 0x1B, G: 0x1F, B: 0x27, A: 0xFF} // #1B1F27
	ColorCardBackground  = color.NRGBA{R: 0x25, G: 0x2B, B: 0x36, A: 0xFF} // #252B36
	ColorPrimaryAccent   = color.NRGBA{R: 0x4F, G: 0xC1, B: 0xB6, A: 0xFF} // #4FC1B6
	ColorSuccess         = color.NRGBA{R: 0x8F, G: 0xD1, B: 0x8B, A: 0xFF} // #8FD18B
	ColorWarning         = color.NRGBA{R: 0xF2, G: 0xC9, B: 0x6D, A: 0xFF} // #F2C96D
	ColorError           = color.NRGBA{R: 0xEF, G: 0x7A, B: 0x85, A: 0xFF} // #EF7A85
	ColorTextPrimary     = color.NRGBA{R: 0xE1, G: 0xE6, B: 0xEE, A: 0xFF} // #E1E6EE
	ColorTextSecondary   = color.NRGBA{R: 0x9A, G: 0xA4, B: 0xB5, A: 0xFF} // #9AA4B5
	ColorDisabled        = color.NRGBA{R: 0x55, G: 0x5D, B: 0x6B, A: 0xFF} // #555D6B
	ColorInputBackground = color.NRGBA{R: 0x2D, G: 0x34, B: 0x41, A: 0xFF} // #2D3441
	ColorBorder          = color.NRGBA{R: 0x3E, G: 0x46, B: 0x55, A: 0xFF} // #3E4655
	ColorHover           = color.NRGBA{R: 0x3B, G: 0x9E, B: 0x94, A: 0xFF} // #3B9E94
	ColorStatusGreen     = color.NRGBA{R: 0x40, G: 0xC0, B: 0x57, A: 0xFF} // #40C057
	ColorStatusRed       = color.NRGBA{R: 0xFA, G: 0x52, B: 0x52, A: 0xFF} // #FA5252
)

// themeColors maps fyne color names onto the palette. Names not listed fall
// back to the default dark theme.
var themeColors = map[fyne.ThemeColorName]color.Color{
	theme.ColorNameBackground:        ColorBackground,
	theme.ColorNameButton:            ColorPrimaryAccent,
	theme.ColorNameDisabledButton:    ColorDisabled,
	theme.ColorNameDisabled:          ColorDisabled,
	theme.ColorNameError:             ColorError,
	theme.ColorNameFocus:             ColorPrimaryAccent,
	theme.ColorNameForeground:        ColorTextPrimary,
	theme.ColorNameHeaderBackground:  ColorCardBackground,
	theme.ColorNameHover:             ColorHover,
	theme.ColorNameHyperlink:         ColorPrimaryAccent,
	theme.ColorNameInputBackground:   ColorInputBackground,
	theme.ColorNameInputBorder:       ColorBorder,
	theme.ColorNameMenuBackground:    ColorCardBackground,
	theme.ColorNameOverlayBackground: ColorCardBackground,
	theme.ColorNamePlaceHolder:       ColorTextSecondary,
	theme.ColorNamePressed:           ColorSuccess,
	theme.ColorNamePrimary:           ColorPrimaryAccent,
	theme.ColorNameScrollBar:         ColorBorder,
	theme.ColorNameSelection:         color.NRGBA{R: 0x4F, G: 0xC1, B: 0xB6, A: 0x55},
	theme.ColorNameSeparator:         ColorBorder,
	theme.ColorNameShadow:            color.NRGBA{A: 0x66},
	theme.ColorNameSuccess:           ColorSuccess,
	theme.ColorNameWarning:           ColorWarning,
}

// themeSizes overrides fyne sizes; others come from the default theme.
var themeSizes = map[fyne.ThemeSizeName]float32{
	theme.SizeNamePadding:            8,
	theme.SizeNameInnerPadding:       12,
	theme.SizeNameInlineIcon:         20,
	theme.SizeNameScrollBar:          12,
	theme.SizeNameScrollBarSmall:     4,
	theme.SizeNameSeparatorThickness: 1,
	theme.SizeNameText:               14,
	theme.SizeNameHeadingText:        20,
	theme.SizeNameSubHeadingText:     16,
	theme.SizeNameCaptionText:        12,
	theme.SizeNameInputBorder:        2,
}

// ModernTheme is the wizard's dark theme
type ModernTheme struct{}

var _ fyne.Theme = (*ModernTheme)(nil)

// Color returns the color for the given theme color name
func (m *ModernTheme) Color(name fyne.ThemeColorName, _ fyne.ThemeVariant) color.Color {
	if c, ok := themeColors[name]; ok {
		return c
	}
	return theme.DefaultTheme().Color(name, theme.VariantDark)
}

// Font returns the font for the given text style
func (m *ModernTheme) Font(style fyne.TextStyle) fyne.Resource {
	return theme.DefaultTheme().Font(style)
}

// Icon returns the icon for the given icon name
func (m *ModernTheme) Icon(name fyne.ThemeIconName) fyne.Resource {
	return theme.DefaultTheme().Icon(name)
}

// Size returns the size for the given size name
func (m *ModernTheme) Size(name fyne.ThemeSizeName) float32 {
	if s, ok := themeSizes[name]; ok {
		return s
	}
	return theme.DefaultTheme().Size(name)
}
