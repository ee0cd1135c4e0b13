// Package ui renders fleet snapshots for the terminal: sparklines,
// status glyphs, one-shot tables, and a spinner for blocking fetches.
//
// Colors are ANSI codes so output follows the terminal theme. Sparklines
// for percentage signals use a fixed 0-100 scale; raw signals are scaled
// to their own window.
package ui
