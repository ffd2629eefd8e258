// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package main

import "decred.org/xcpgate/gate/version"

const (
	// appName is the application name.
	appName string = "xcpgate"
)

// Version is the application version per the semantic versioning 2.0.0 spec
// (https://semver.org/). It may be overridden at build time with
// '-ldflags "-X main.Version=fullsemver"'.
//
// NOTE: The Version string is overridden on init.
var Version = "0.1.0-pre"

func init() {
	Version = version.Parse(Version)
}
