package types

// Version is the canonical project version. CLI, worker, and the
// job-completed event contract share this version.
const Version = "0.3.0"
