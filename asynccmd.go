// Package asynccmd runs external commands concurrently with the caller,
// captures their output and classifies the outcome.
package asynccmd

// Version is the asynccmd release version.
const Version = "0.1.0"
