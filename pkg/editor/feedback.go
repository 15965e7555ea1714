package editor

import (
	"errors"
	"fmt"

	"github.com/menta2k/icon-editor/pkg/types"
	"github.com/menta2k/icon-editor/pkg/upload"
)

// FeedbackKind tells the page how to surface a message.
type FeedbackKind string

const (
	// FeedbackSuccess is an inline confirmation.
	FeedbackSuccess FeedbackKind = "success"
	// FeedbackInline is an inline error next to the form.
	FeedbackInline FeedbackKind = "inline"
	// FeedbackAlert is a blocking message the user must dismiss.
	FeedbackAlert FeedbackKind = "alert"
)

// Feedback is the user-facing outcome of an action.
type Feedback struct {
	Kind    FeedbackKind `json:"kind"`
	Message string       `json:"message"`
	// Name is the server-assigned icon name after a successful upload.
	Name string `json:"name,omitempty"`
	Err  error  `json:"-"`
}

// OK reports whether the action succeeded.
func (f Feedback) OK() bool {
	return f.Kind == FeedbackSuccess
}

// Success is the feedback for an upload stored under name.
func Success(name string) Feedback {
	return Feedback{
		Kind:    FeedbackSuccess,
		Message: "Uploaded successfully as " + name,
		Name:    name,
	}
}

// NoImageMessage is shown when an action needs an image and none is loaded.
const NoImageMessage = "Please import an image first"

// FeedbackFor maps an error to its message and presentation.
func FeedbackFor(err error) Feedback {
	var (
		serverErr    *upload.ServerError
		transportErr *upload.TransportError
	)
	switch {
	case err == nil:
		return Feedback{Kind: FeedbackSuccess}
	case errors.Is(err, types.ErrNoImage):
		return Feedback{Kind: FeedbackAlert, Message: NoImageMessage, Err: err}
	case errors.Is(err, upload.ErrMissingInput):
		return Feedback{Kind: FeedbackInline, Message: "Please enter a name and choose an image", Err: err}
	case errors.As(err, &serverErr):
		return Feedback{Kind: FeedbackInline, Message: "Error: " + serverErr.Message, Err: err}
	case errors.As(err, &transportErr):
		return Feedback{Kind: FeedbackInline, Message: fmt.Sprintf("Upload failed: %v", transportErr.Err), Err: err}
	}
	return Feedback{Kind: FeedbackInline, Message: err.Error(), Err: err}
}
