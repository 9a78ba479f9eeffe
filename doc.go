// Package flashpad is the Composition Root for the Flashpad notes engine.
//
// It connects the core domain (notes, categories and the Service that keeps
// them consistent) with the storage adapters using the Hexagonal
// Architecture pattern.
//
// Flashpad stores short text notes in a local vault: one Markdown file per
// note, a categories list, and an optional git history of every change.
// Notes can be exported to and imported from a plain-text backup
// (see package backup).
//
// Usage:
//
//	svc, err := flashpad.New("./vault",
//		flashpad.WithAutoInit(true),
//		flashpad.WithLogger(logger),
//	)
//
//	note, err := svc.CreateNote(ctx)
//	err = svc.UpdateNote(ctx, note.ID, core.NotePatch{Title: core.StringPtr("Shopping")})
package flashpad
