package farm

import (
	"io"
	"log"
)

func newCapturingLogger(w io.Writer) *log.Logger {
	return log.New(w, "", 0)
}
