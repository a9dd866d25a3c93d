// Package mount drives the OS mount utility to expose an AgentFS database
// through the FSKit extension. Every precondition is checked before the
// utility runs, and nothing is retried.
package mount
