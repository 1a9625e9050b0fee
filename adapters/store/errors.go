package store

import "github.com/Naoki-K615/NFT-ticketing-Backend-Progressing/ports"

// ErrNotFound is returned when a requested record does not exist
var ErrNotFound = ports.ErrNotFound
