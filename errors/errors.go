package errors

import "fmt"

var (
	ErrWorkerPanic      = fmt.Errorf("worker panic")
	ErrPermissionDenied = fmt.Errorf("permission denied")
	ErrNotFound         = fmt.Errorf("not found")
	ErrNoHandler        = fmt.Errorf("no handler registered")
	ErrSessionEnded     = fmt.Errorf("session has ended")
	ErrEmptyWords       = fmt.Errorf("no words have been found")
)
