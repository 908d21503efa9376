// Package testingx contains code useful for testing: TLS servers that
// request client certificates, a STARTTLS mail server emulator, a small
// PKI for issuing client certificates, and a tracker for closed conns.
package testingx
