package starttls

import (
	"fmt"
	"strings"
)

type smtpNegotiator struct{}

// readReply reads a possibly multi-line SMTP reply and returns its
// code and the text of each line.
func (*smtpNegotiator) readReply(s *session) (string, []string, error) {
	var lines []string
	for {
		line, err := s.readLine()
		if err != nil {
			return "", nil, err
		}
		if len(line) < 3 {
			return "", nil, fmt.Errorf("%w: %q", ErrInvalidResponse, line)
		}
		code := line[:3]
		if len(line) > 3 {
			lines = append(lines, line[4:])
		}
		if len(line) == 3 || line[3] == ' ' {
			return code, lines, nil
		}
		if line[3] != '-' {
			return "", nil, fmt.Errorf("%w: %q", ErrInvalidResponse, line)
		}
	}
}

func (n *smtpNegotiator) negotiate(s *session) error {
	code, _, err := n.readReply(s)
	if err != nil {
		return fmt.Errorf("smtp: greeting failed: %w", err)
	}
	if code != "220" {
		return fmt.Errorf("smtp: greeting failed: %w: code %s", ErrInvalidResponse, code)
	}

	if err := s.writeLine("EHLO " + s.clientName); err != nil {
		return fmt.Errorf("smtp: EHLO failed: %w", err)
	}
	code, caps, err := n.readReply(s)
	if err != nil {
		return fmt.Errorf("smtp: EHLO failed: %w", err)
	}
	if code != "250" {
		return fmt.Errorf("smtp: EHLO failed: %w: code %s", ErrInvalidResponse, code)
	}
	var advertised bool
	for _, capability := range caps {
		if strings.EqualFold(strings.TrimSpace(capability), "STARTTLS") {
			advertised = true
		}
	}
	if !advertised {
		return fmt.Errorf("smtp: %w", ErrStartTLSNotSupported)
	}

	if err := s.writeLine("STARTTLS"); err != nil {
		return fmt.Errorf("smtp: STARTTLS failed: %w", err)
	}
	code, lines, err := n.readReply(s)
	if err != nil {
		return fmt.Errorf("smtp: STARTTLS failed: %w", err)
	}
	if code != "220" {
		return fmt.Errorf("smtp: %w: %s %s", ErrStartTLSNotSupported, code, strings.Join(lines, " "))
	}
	return nil
}
