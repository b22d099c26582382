package bridge

import (
	"context"
	"encoding/json"

	"github.com/glimte/gdn-bridge/contracts"
)

// Document is an open document in the host application
type Document interface {
	// FullName returns the document's path on disk. It fails with
	// contracts.ErrUnsavedDocument for a document that was never saved.
	FullName(ctx context.Context) (string, error)
}

// HostApplication reads state from the host application
type HostApplication interface {
	// ActiveDocument returns the active document. It fails with
	// contracts.ErrNoDocument when nothing is open.
	ActiveDocument(ctx context.Context) (Document, error)
}

// Caller performs a call-style request against the host
type Caller interface {
	Call(ctx context.Context, method string, params interface{}) (json.RawMessage, error)
}

// Methods invoked by RemoteHost
const (
	MethodGetActiveDocument = "get_active_document"
)

// RemoteHost is a HostApplication that queries the host over the bridge
type RemoteHost struct {
	caller Caller
}

// NewRemoteHost creates a host accessor backed by call-style requests
func NewRemoteHost(caller Caller) *RemoteHost {
	return &RemoteHost{caller: caller}
}

type remoteDocumentInfo struct {
	FullName string `json:"full_name"`
	Saved    *bool  `json:"saved,omitempty"`
}

// ActiveDocument implements HostApplication
func (h *RemoteHost) ActiveDocument(ctx context.Context) (Document, error) {
	raw, err := h.caller.Call(ctx, MethodGetActiveDocument, nil)
	if err != nil {
		return nil, &contracts.HostQueryError{Op: MethodGetActiveDocument, Err: err}
	}

	if len(raw) == 0 || string(raw) == "null" {
		return nil, contracts.ErrNoDocument
	}

	var info remoteDocumentInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		return nil, &contracts.HostQueryError{
			Op:  MethodGetActiveDocument,
			Err: &contracts.DecodeError{Name: MethodGetActiveDocument, Err: err},
		}
	}

	return &remoteDocument{info: info}, nil
}

type remoteDocument struct {
	info remoteDocumentInfo
}

func (d *remoteDocument) FullName(ctx context.Context) (string, error) {
	if d.info.FullName == "" || (d.info.Saved != nil && !*d.info.Saved) {
		return "", contracts.ErrUnsavedDocument
	}
	return d.info.FullName, nil
}
