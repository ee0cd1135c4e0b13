package ui

// Status glyphs.
const (
	SymbolSuccess  = "✓"
	SymbolFail     = "✗"
	SymbolPending  = "○"
	SymbolRunning  = "●"
	SymbolStarving = "◌"
	SymbolStale    = "⊘"
	SymbolWarning  = "▲"
)
