package ir

// RendererVersion is folded into every QueryText fingerprint so that a
// change in rendering rules never collides with older snapshots.
const RendererVersion = "1"
