// Package platform returns the platform name and the capabilities
// that depend on the platform we're running on.
package platform

import "runtime"

// Name returns the platform name. The returned value is one of:
//
// 1. "android"
//
// 2. "ios"
//
// 3. "linux"
//
// 4. "macos"
//
// 5. "windows"
//
// 6. "unknown"
func Name() string {
	return name(runtime.GOOS)
}

// name is a utility function for implementing Name.
func name(goos string) string {
	switch goos {
	case "android", "linux", "windows", "ios":
		return goos
	case "darwin":
		return "macos"
	}
	return "unknown"
}

// ClientCertificateSupportAvailable returns whether this platform offers
// a credential store from which we can load TLS client certificates.
//
// This function has no side effects and may be called at any time.
func ClientCertificateSupportAvailable() bool {
	return clientCertificateSupportAvailable(Name())
}

func clientCertificateSupportAvailable(platform string) bool {
	return platform != "unknown"
}
