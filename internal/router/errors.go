package router

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ProcessingError wraps a processing-pipeline failure. The core has no
// authority to fabricate a reply, so this is always surfaced to the caller;
// the invoking adapter translates it into a channel-appropriate message.
type ProcessingError struct {
	Err error
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("processing pipeline failed: %v", e.Err)
}

func (e *ProcessingError) Unwrap() error { return e.Err }

// TranscriptionError wraps a transcription failure, which aborts an audio
// route before the pipeline is called.
type TranscriptionError struct {
	Err error
}

func (e *TranscriptionError) Error() string {
	return fmt.Sprintf("transcription failed: %v", e.Err)
}

func (e *TranscriptionError) Unwrap() error { return e.Err }

// IsTimeout reports whether an external call timed out, as opposed to
// failing outright. Callers use this to pick a degradation strategy.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
