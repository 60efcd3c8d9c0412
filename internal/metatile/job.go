package metatile

import (
	"image"

	"github.com/paulmach/orb/maptile"
)

// JobState records what happened to one grid position.
type JobState int

const (
	// JobPending has not been attempted yet.
	JobPending JobState = iota
	// JobRendered holds an image.
	JobRendered
	// JobSkipped lies outside the tile range of its zoom level and was never
	// sent to the renderer.
	JobSkipped
	// JobFailed was attempted and the renderer failed; Err says why.
	JobFailed
)

func (s JobState) String() string {
	switch s {
	case JobPending:
		return "pending"
	case JobRendered:
		return "rendered"
	case JobSkipped:
		return "skipped"
	case JobFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// TileJob is one grid position of a metatile. It leaves JobPending exactly
// once. Skipped and failed jobs both end up as zero-length entries on disk.
type TileJob struct {
	Tile  maptile.Tile
	State JobState
	Image image.Image
	Err   error
}

// HasData reports whether the job carries a rendered image.
func (j *TileJob) HasData() bool {
	return j.State == JobRendered
}

// inRange reports whether the tile lies inside [0, 2^z) on both axes.
func inRange(t maptile.Tile) bool {
	if t.Z >= 32 {
		return false
	}
	zmax := uint64(1) << uint(t.Z)
	return uint64(t.X) < zmax && uint64(t.Y) < zmax
}
