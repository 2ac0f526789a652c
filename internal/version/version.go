package version

// Current is the released campaign runner version.
const Current = "0.3.0"
