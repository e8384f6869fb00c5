package types

// Version is the canonical project version.
// The CLI, wire codec and store format share this version.
const Version = "0.3.0"

// StoreFormatVersion identifies the on-disk recording layout.
// Bumped only when the stored frame header changes.
const StoreFormatVersion = 1
