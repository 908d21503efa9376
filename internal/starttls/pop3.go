package starttls

import (
	"fmt"
	"strings"
)

type pop3Negotiator struct{}

func (n *pop3Negotiator) negotiate(s *session) error {
	greeting, err := s.readLine()
	if err != nil {
		return fmt.Errorf("pop3: greeting failed: %w", err)
	}
	if !strings.HasPrefix(greeting, "+OK") {
		return fmt.Errorf("pop3: greeting failed: %w: %q", ErrInvalidResponse, greeting)
	}

	// CAPA is optional in POP3, so a negative reply does not
	// mean that STLS is not available.
	if err := s.writeLine("CAPA"); err != nil {
		return fmt.Errorf("pop3: CAPA failed: %w", err)
	}
	reply, err := s.readLine()
	if err != nil {
		return fmt.Errorf("pop3: CAPA failed: %w", err)
	}
	if strings.HasPrefix(reply, "+OK") {
		var advertised bool
		for {
			line, err := s.readLine()
			if err != nil {
				return fmt.Errorf("pop3: CAPA failed: %w", err)
			}
			if line == "." {
				break
			}
			advertised = advertised || strings.EqualFold(firstWord(line), "STLS")
		}
		if !advertised {
			return fmt.Errorf("pop3: %w", ErrStartTLSNotSupported)
		}
	}

	if err := s.writeLine("STLS"); err != nil {
		return fmt.Errorf("pop3: STLS failed: %w", err)
	}
	reply, err = s.readLine()
	if err != nil {
		return fmt.Errorf("pop3: STLS failed: %w", err)
	}
	if !strings.HasPrefix(reply, "+OK") {
		return fmt.Errorf("pop3: %w: %s", ErrStartTLSNotSupported, reply)
	}
	return nil
}

// firstWord returns the first space separated word of line.
func firstWord(line string) string {
	fields := strings.Fields(line)
	if len(fields) <= 0 {
		return ""
	}
	return fields[0]
}
