package starttls

import (
	"fmt"
	"strings"
)

type imapNegotiator struct{}

// command sends a tagged command and returns the untagged lines and the
// tagged completion line.
func (*imapNegotiator) command(s *session, tag, command string) ([]string, string, error) {
	if err := s.writeLine(tag + " " + command); err != nil {
		return nil, "", err
	}
	var untagged []string
	for {
		line, err := s.readLine()
		if err != nil {
			return nil, "", err
		}
		if strings.HasPrefix(line, tag+" ") {
			return untagged, strings.TrimPrefix(line, tag+" "), nil
		}
		untagged = append(untagged, line)
	}
}

func (n *imapNegotiator) negotiate(s *session) error {
	greeting, err := s.readLine()
	if err != nil {
		return fmt.Errorf("imap: greeting failed: %w", err)
	}
	if !strings.HasPrefix(greeting, "* OK") {
		return fmt.Errorf("imap: greeting failed: %w: %q", ErrInvalidResponse, greeting)
	}

	untagged, status, err := n.command(s, "a001", "CAPABILITY")
	if err != nil {
		return fmt.Errorf("imap: CAPABILITY failed: %w", err)
	}
	if !strings.HasPrefix(status, "OK") {
		return fmt.Errorf("imap: CAPABILITY failed: %w: %q", ErrInvalidResponse, status)
	}
	var advertised bool
	for _, line := range untagged {
		fields := strings.Fields(strings.ToUpper(line))
		if len(fields) < 2 || fields[0] != "*" || fields[1] != "CAPABILITY" {
			continue
		}
		for _, capability := range fields[2:] {
			advertised = advertised || capability == "STARTTLS"
		}
	}
	if !advertised {
		return fmt.Errorf("imap: %w", ErrStartTLSNotSupported)
	}

	_, status, err = n.command(s, "a002", "STARTTLS")
	if err != nil {
		return fmt.Errorf("imap: STARTTLS failed: %w", err)
	}
	if !strings.HasPrefix(status, "OK") {
		return fmt.Errorf("imap: %w: %s", ErrStartTLSNotSupported, status)
	}
	return nil
}
