package hb

// Version is the racelens runtime version.
const Version = "0.2.0"

// Info describes the runtime for banners and bug reports.
type Info struct {
	// Version is the runtime version string.
	Version string

	// Algorithm names the detection algorithm.
	Algorithm string

	// Enabled reports whether hooks are currently live.
	Enabled bool
}

// About returns runtime information.
func About() Info {
	return Info{
		Version:   Version,
		Algorithm: "adaptive happens-before (FastTrack)",
		Enabled:   Enabled(),
	}
}
