/*
Package log provides structured logging for sutramem using zerolog.

Component loggers (WithComponent, WithShard, WithTxnID) attach a field to
a child of the global Logger so log lines from the reconciler, the shard
router, and the transaction coordinator can be filtered independently
without each package constructing its own zerolog.Logger.
*/
package log
