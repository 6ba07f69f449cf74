// Package commands defines the ts3client CLI and wires an engine.Config from
// persistent flags before any subcommand runs.
//
// Commands
//
//   - run   Connect to a server (direct UDP or via a relay) and stay
//     attached, printing events and accepting chat commands on stdin
//
// # Implementation
//
// The root command gathers connection flags into a shared engine.Config so
// subcommands don't each re-declare host/port/nickname/etc, the same
// pattern the teacher's root command used to build a shared app context.
package commands
