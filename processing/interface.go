package processing

import (
	"context"

	"github.com/paulmach/orb"
)

type Feature interface {
	Geometry() orb.Geometry
	UpdateGeometry(orb.Geometry)
}

// Source sends its features in order. It must stop when ctx is done; Send does that.
// The channel is closed by ProcessFeatures.
type Source interface {
	ReadFeatures(ctx context.Context, features chan<- Feature) error
}

// Target receives features until the channel is closed or ctx is done.
type Target interface {
	WriteFeatures(ctx context.Context, features <-chan Feature) error
}
