// Package domain defines core data models and interfaces shared across olmcore.
// It contains plain types (wire/state records) and contracts (interfaces) only.
package domain
