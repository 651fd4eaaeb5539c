// Package ui implements the interactive conflict resolver using
// bubbletea's Elm architecture.
//
// The TUI provides a two-view workflow:
//  1. [ConflictListView] : Browse pending conflicts
//  2. [DetailView] : Inspect both sides and pick a resolution
//
// The [Model] implements bubbletea's standard Init/Update/View pattern.
// Resolutions are written to the conflict store as they are chosen; the
// next sync cycle applies them.
//
// Keyboard navigation uses vim-style bindings (j/k, enter, esc, q) plus
// a/b/m/s for the four resolutions, with contextual help displayed via
// charmbracelet/bubbles/help.
package ui
