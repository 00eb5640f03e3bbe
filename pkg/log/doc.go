/*
Package log provides structured logging for tunnelgroup using zerolog.

A single global Logger is configured once by Init from the process
settings. Packages derive child loggers carrying a context field instead
of formatting names into messages:

	logger := log.WithComponent("loader")
	logger.Info().Str("file", path).Msg("Tunnel configurations loaded")

	logger = log.WithTunnel(name)    // tunnel=<name>
	logger = log.WithSession(id)     // session_id=<id>

zerolog.Logger methods have pointer receivers, so assign a derived logger
to a variable before calling Info, Debug and so on.

# Log Levels

	debug  session ownership, worker lifecycle, gRPC calls
	info   state transitions, loads, saves, migrations (default)
	warn   skipped records, failed migrations, unreadable files
	error  startup failures, failed writes, session close errors

Output is human readable on the console unless JSONOutput is set:

	{"level":"info","component":"group","from":"STARTING","to":"RUNNING","time":"...","message":"Group state changed"}
*/
package log
