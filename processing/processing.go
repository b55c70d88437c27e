// Package processing takes care of the logistics around reading from a Source and writing to a Target.
// Not the processing operation(s) itself.
package processing

import (
	"context"

	"github.com/paulmach/orb"
	"golang.org/x/sync/errgroup"
)

// ProcessGeometryFunc replaces a feature's geometry. A nil func leaves features untouched.
type ProcessGeometryFunc func(orb.Geometry) (orb.Geometry, error)

// ProcessFeatures reads the features from the source, processes their geometry with f
// and hands them to the target. The three stages run concurrently, connected by
// unbuffered channels, so the source order is kept. The first error stops all stages.
func ProcessFeatures(ctx context.Context, source Source, target Target, f ProcessGeometryFunc) error {
	featuresBefore := make(chan Feature)
	featuresAfter := make(chan Feature)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(featuresBefore)
		return source.ReadFeatures(ctx, featuresBefore)
	})
	g.Go(func() error {
		defer close(featuresAfter)
		return processFeatures(ctx, featuresBefore, featuresAfter, f)
	})
	g.Go(func() error {
		return target.WriteFeatures(ctx, featuresAfter)
	})
	return g.Wait()
}

// processFeatures processes the geometries in the features with the given function
func processFeatures(ctx context.Context, featuresIn <-chan Feature, featuresOut chan<- Feature, f ProcessGeometryFunc) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case feature, hasMore := <-featuresIn:
			if !hasMore {
				return nil
			}
			if f != nil {
				newGeometry, err := f(feature.Geometry())
				if err != nil {
					return err
				}
				feature.UpdateGeometry(newGeometry)
			}
			if err := Send(ctx, featuresOut, feature); err != nil {
				return err
			}
		}
	}
}

// Send blocks until the feature is taken or ctx is done.
func Send(ctx context.Context, features chan<- Feature, feature Feature) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case features <- feature:
		return nil
	}
}

// Collector is a Target keeping every feature it receives, in order.
type Collector struct {
	Features []Feature
}

func (c *Collector) WriteFeatures(ctx context.Context, features <-chan Feature) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case feature, hasMore := <-features:
			if !hasMore {
				return nil
			}
			c.Features = append(c.Features, feature)
		}
	}
}
