// Package responsewriter records the status code written by a handler so
// middleware running after it can report on the response.
package responsewriter

import (
	"net/http"
)

// Recorder wraps an http.ResponseWriter and remembers the first status code
// written through it.
type Recorder struct {
	http.ResponseWriter

	status int
}

// Wrap returns a Recorder around w. A handler that writes a body without an
// explicit WriteHeader is recorded as 200.
func Wrap(w http.ResponseWriter) *Recorder {
	return &Recorder{ResponseWriter: w}
}

func (r *Recorder) WriteHeader(status int) {
	if r.status == 0 {
		r.status = status
	}
	r.ResponseWriter.WriteHeader(status)
}

func (r *Recorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

// Status returns the recorded status code, or 200 if nothing was written.
func (r *Recorder) Status() int {
	if r.status == 0 {
		return http.StatusOK
	}
	return r.status
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (r *Recorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}
