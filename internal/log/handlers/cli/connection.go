package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/apex/log"
)

// connectionRows are the fields of a "connection" typed log in the
// order in which we print them, along with their labels.
var connectionRows = []struct {
	field string
	label string
}{
	{"destination", "Destination"},
	{"security", "Security"},
	{"tls_version", "TLS version"},
	{"cipher_suite", "Cipher suite"},
	{"server_name", "Server"},
	{"client_certificate", "Client certificate"},
	{"require_secure", "Require secure"},
}

func logConnection(w io.Writer, f log.Fields) error {
	colWidth := 24

	fmt.Fprint(w, "┏"+strings.Repeat("━", colWidth*2+2)+"┓\n")
	for _, row := range connectionRows {
		value := f.Get(row.field)
		if value == nil {
			continue
		}
		text := fmt.Sprintf("%v", value)
		if text == "" {
			text = "(none)"
		}
		fmt.Fprintf(w, "┃ %s%s ┃\n",
			RightPad(bold.Sprint(row.label), colWidth),
			RightPad(text, colWidth))
	}
	fmt.Fprint(w, "┗"+strings.Repeat("━", colWidth*2+2)+"┛\n")
	return nil
}
