package sse

import (
	"fmt"
	"io"
)

// WriteFrame renders one SSE frame onto w per the wire format in spec
// §4.7: "id", "event", "data" (JSON) fields, blank line terminated. A
// heartbeat frame (Event == "heartbeat") is rendered as a comment instead,
// per the SSE spec, so proxies see traffic without dispatching a client
// event.
func WriteFrame(w io.Writer, f Frame) error {
	if f.Event == "heartbeat" {
		_, err := fmt.Fprintf(w, ": heartbeat %s\n\n", f.Data)
		return err
	}
	_, err := fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", f.ID, f.Event, f.Data)
	return err
}
