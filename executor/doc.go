/*
Package executor spawns host commands through the command interpreter and exposes their standard output as a live stream.

The stream is handed to the caller for progressive consumption so that command output of any length can be forwarded without buffering it in memory. Standard error is deliberately not captured. There is no per-command timeout; callers cancel via context if they need to abort a command.
*/
package executor
