// SPDX-License-Identifier: MIT

// Package buildinfo holds identifying constants stamped into outbound
// requests and version-reporting surfaces: the HTTP API's GET /api/version,
// the Discord notifier's user agent, and the admin CLI's version command.
package buildinfo

import "fmt"

// AppName identifies this program to external services and in logs.
const AppName = "hoshinova"

// Version is overridden at build time via -ldflags "-X
// github.com/HoloArchivists/hoshinova-go/internal/buildinfo.Version=...".
var Version = "dev"

// UserAgent is sent on every outbound HTTP request this program makes.
func UserAgent() string {
	return fmt.Sprintf("%s/%s (+https://github.com/HoloArchivists/hoshinova-go)", AppName, Version)
}
