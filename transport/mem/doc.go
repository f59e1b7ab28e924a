// Package mem provides an in-process transport backed by bounded channels,
// for tests and for embedding the pipeline in another process.
package mem
