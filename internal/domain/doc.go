// Package domain holds the core entities and closed enums shared by the
// outbound and reputation engines. Enum values match what is persisted so
// repositories scan directly into them; all status changes go through the
// transition helpers here rather than raw string assignment.
package domain
