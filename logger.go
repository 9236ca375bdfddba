package qaboard

import (
	"io"
	"os"

	"github.com/charmbracelet/log"
)

// NewLogger creates a [log.Logger] writing to w with timestamps enabled.
//
// The writer defaults to [os.Stderr].
func NewLogger(w io.Writer) *log.Logger {
	if w == nil {
		w = os.Stderr
	}
	return log.NewWithOptions(w, log.Options{ReportTimestamp: true, Prefix: "qaboard"})
}

// discardLogger is used when a component is built without a logger.
func discardLogger() *log.Logger {
	return log.New(io.Discard)
}
