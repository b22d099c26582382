package contracts

// LogRecord is published when the host forwards a log line
type LogRecord struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

// CommandRequest is published when the host asks for an engine command to run
type CommandRequest struct {
	CommandID int
}

// RunTestsRequest is published when the host asks for the test suite to run
type RunTestsRequest struct{}

// StateRequest is published when the host asks for the current state
type StateRequest struct{}

// ActiveDocumentChange is published when the active document changes.
// Path is nil when the new document has never been saved.
type ActiveDocumentChange struct {
	Path *string `json:"active_document_path"`
}

// HwndChange is published when the host reports its main frame window handle
type HwndChange struct {
	Hwnd int64
}
