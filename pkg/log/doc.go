/*
Package log provides structured logging for cloudcfg using zerolog.

A single package-level Logger is configured once by the CLI through Init and
every stage of the compiler derives a child logger from it:

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: false})
	logger := log.WithComponent("scheduler")
	logger.Info().Str("group", "cp1/cluster1").Int("members", 3).Msg("group allocated")

Console output (the default) goes through zerolog.ConsoleWriter with RFC3339
timestamps; JSON output writes one object per line and is meant for CI logs.

Until Init is called Logger is a no-op logger, so packages can be used from
tests without producing output.

Child loggers:

  - WithComponent: the pipeline stage ("scheduler", "network", "vip", ...)
  - WithRunID: the per-invocation id stamped on every run
  - WithControlPlane: scopes a stage logger to one control plane
  - WithServerID: scopes a stage logger to one server

The last two take the parent logger so the component field is kept:

	logger := log.WithControlPlane(s.logger, cp.Name)
*/
package log
