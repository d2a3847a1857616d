package chart

import "technical-analyst/models"

// Trace colours
const (
	ColorUp         = "#26a69a"
	ColorDown       = "#ef5350"
	ColorVolumeUp   = "rgba(38,166,154,0.7)"
	ColorVolumeDown = "rgba(239,83,80,0.7)"
	ColorMA20       = "#FF9800"
	ColorMA50       = "#2196F3"
	ColorMA200      = "#9C27B0"
	ColorBollinger  = "#757575"
	ColorBandFill   = "rgba(117,117,117,0.1)"
	ColorRSI        = "#FFEB3B"
	ColorMACD       = "#00BCD4"
	ColorSignal     = "#E91E63"
	ColorOverbought = "rgba(239,83,80,0.1)"
	ColorOversold   = "rgba(38,166,154,0.1)"
)

// Theme selects the background palette
type Theme string

const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
)

// ThemeFor maps the persisted darkMode preference to a theme
func ThemeFor(darkMode bool) Theme {
	if darkMode {
		return ThemeDark
	}
	return ThemeLight
}

// Palette holds the colours a theme changes; trace colours never change
type Palette struct {
	Paper string
	Plot  string
	Grid  string
	Font  string
}

// Palette returns the colours for the theme, defaulting to light
func (t Theme) Palette() Palette {
	if t == ThemeDark {
		return Palette{Paper: "#1e1e1e", Plot: "#1e1e1e", Grid: "#333333", Font: "#e0e0e0"}
	}
	return Palette{Paper: "#ffffff", Plot: "#ffffff", Grid: "#e1e5e9", Font: "#2c3e50"}
}

// VolumeColor is the bar colour of a bar's volume, decided by close >= open
func VolumeColor(b models.Bar) string {
	if b.Up() {
		return ColorVolumeUp
	}
	return ColorVolumeDown
}

// HistogramColor colours MACD histogram bars: positive up, zero or negative down
func HistogramColor(v float64) string {
	if v > 0 {
		return ColorUp
	}
	return ColorDown
}

// ApplyTheme recolours the themed parts of a layout in place
func (l *Layout) ApplyTheme(theme Theme) {
	p := theme.Palette()
	l.PaperBG = p.Paper
	l.PlotBG = p.Plot
	l.Font.Color = p.Font
	l.XAxis.GridColor = p.Grid
	l.YAxis.GridColor = p.Grid
	if l.YAxis2 != nil {
		l.YAxis2.GridColor = p.Grid
	}
}
