// Package app loads configuration and wires the crypto store, account service and
// session managers for the CLI.
//
// Configuration comes from a TOML file (default <home>/config.toml) with environment
// overrides. Secret state is sealed with a random pickle key that is itself wrapped by
// the user's passphrase in <home>/pickle.key.
package app
