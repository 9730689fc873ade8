// Package plugin runs the steps of a compile run. Plugins are registered at
// compile time, grouped into the generate, validate and build phases, and
// ordered inside each phase by their declared dependencies.
package plugin
