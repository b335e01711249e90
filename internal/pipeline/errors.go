package pipeline

import "errors"

var (
	ErrExportInProgress = errors.New("export already in progress")
	ErrCapture          = errors.New("capture failed")
	ErrAssembly         = errors.New("assembly failed")
)

// CaptureError is a failure before a bitmap existed. The view was restored.
type CaptureError struct {
	Err error
}

func (e *CaptureError) Error() string { return ErrCapture.Error() + ": " + e.Err.Error() }

func (e *CaptureError) Unwrap() error { return e.Err }

func (e *CaptureError) Is(target error) bool { return target == ErrCapture }

// AssemblyError is a failure building or delivering the document.
type AssemblyError struct {
	Err error
}

func (e *AssemblyError) Error() string { return ErrAssembly.Error() + ": " + e.Err.Error() }

func (e *AssemblyError) Unwrap() error { return e.Err }

func (e *AssemblyError) Is(target error) bool { return target == ErrAssembly }
