// Package storage selects where finished metatiles are published.
package storage

import "metatiled/internal/ports"

// Provider is the storage contract used by the backend and the CLI.
// It is an alias to ports.StorageProvider to keep call-sites simple.
type Provider = ports.StorageProvider
