package refile

import (
	"time"

	"github.com/google/uuid"
)

// Clock supplies the upload and pointer timestamps.
type Clock interface {
	Now() time.Time
}

// RealClock reads the wall clock.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// IDGenerator names scratch files and operations.
type IDGenerator interface {
	New() string
}

// UUIDGenerator returns random v4 UUIDs.
type UUIDGenerator struct{}

func (UUIDGenerator) New() string { return uuid.NewString() }
