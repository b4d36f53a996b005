package display

import (
	"encoding/base64"
	"fmt"
	"io"
)

const (
	escapeStart = "\x1b_G"
	escapeEnd   = "\x1b\\"
	chunkSize   = 4096
)

// writeKitty transmits a PNG and displays it at the cursor. Payloads longer
// than chunkSize are split; every chunk but the last carries m=1.
func writeKitty(w io.Writer, pngData []byte) error {
	encoded := base64.StdEncoding.EncodeToString(pngData)
	first := true
	for {
		n := min(chunkSize, len(encoded))
		chunk := encoded[:n]
		encoded = encoded[n:]

		more := 0
		if len(encoded) > 0 {
			more = 1
		}
		params := fmt.Sprintf("m=%d", more)
		if first {
			// a=T transmit and display, f=100 PNG, q=2 suppress replies
			params = "a=T,f=100,q=2," + params
			first = false
		}
		if _, err := fmt.Fprintf(w, "%s%s;%s%s", escapeStart, params, chunk, escapeEnd); err != nil {
			return err
		}
		if more == 0 {
			return nil
		}
	}
}
