// Package commands defines the olmcore CLI.
//
// Commands
//
//   - init      Create the pickle key and the local Olm account
//   - keys      Print signed device keys and one-time keys for upload
//   - verify    Verify the signature on a JSON object or device keys
//   - sessions  List Olm sessions and health for a remote curve key
//
// # Implementation
//
// The root command loads configuration before any subcommand runs. Commands that touch
// secret state unwrap the pickle key with the passphrase and wire the store and
// managers through internal/app.
package commands
