package persistentworker

// WorkRequest represents a single work request for the persistent worker.
// See https://bazel.build/remote/creating for the protocol specification.
// The JSON tags follow Bazel's JSON worker protocol; the protobuf field
// numbers are listed in wire.go.
type WorkRequest struct {
	Arguments  []string `json:"arguments"`
	Inputs     []Input  `json:"inputs,omitempty"`
	RequestId  int      `json:"requestId"`
	Cancel     bool     `json:"cancel,omitempty"`
	Verbosity  int      `json:"verbosity,omitempty"`
	SandboxDir string   `json:"sandboxDir,omitempty"`
}

// WorkResponse represents the response to a work request.
type WorkResponse struct {
	ExitCode     int    `json:"exitCode"`
	Output       string `json:"output"`
	RequestId    int    `json:"requestId"`
	WasCancelled bool   `json:"wasCancelled,omitempty"`
}

// Input represents a single input file with its path and content digest.
// Digest is opaque bytes; the JSON protocol carries it base64 encoded.
type Input struct {
	Path   string `json:"path"`
	Digest []byte `json:"digest,omitempty"`
}
