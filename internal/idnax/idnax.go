// Package idnax contains IDNA extensions.
package idnax

import "golang.org/x/net/idna"

// ToASCII converts an IDNA host name to its ASCII form using the
// lookup profile, which also maps the name to lower case.
func ToASCII(domain string) (string, error) {
	return idna.Lookup.ToASCII(domain)
}
