// Command tankobon is the operator CLI for the tankobond acquisition daemon.
//
// Most subcommands talk to a running daemon over its HTTP API. The serve,
// staging and config subcommands work directly against the local
// configuration and catalog.
package main
