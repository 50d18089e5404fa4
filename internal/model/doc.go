// Package model defines instruments, series kinds and the records assembled
// from paginated ISS responses.
package model
