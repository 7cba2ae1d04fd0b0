package cityinfo

import "context"

// Store opens per-request units of work.
type Store interface {
	Begin(ctx context.Context) (Repository, error)
}

// Repository is the resource store contract for one request. Mutations are staged
// and become visible to other readers only once SaveChanges succeeds; Close
// without SaveChanges discards them. A Repository is not safe for concurrent use.
type Repository interface {
	CityExists(ctx context.Context, cityID int) (bool, error)
	// GetCity returns ErrNotFound when the city is absent. Points of interest are
	// loaded only when includePointsOfInterest is set.
	GetCity(ctx context.Context, cityID int, includePointsOfInterest bool) (City, error)
	// GetCities expects q to be clamped already.
	GetCities(ctx context.Context, q CityQuery) ([]City, PaginationMetadata, error)

	GetPointsOfInterest(ctx context.Context, cityID int) ([]PointOfInterest, error)
	// GetPointOfInterest returns ErrNotFound when the item is absent from the city.
	GetPointOfInterest(ctx context.Context, cityID, id int) (PointOfInterest, error)

	// AddPointOfInterest stages poi under cityID; poi.ID is assigned by the time
	// SaveChanges returns.
	AddPointOfInterest(ctx context.Context, cityID int, poi *PointOfInterest) error
	UpdatePointOfInterest(ctx context.Context, poi PointOfInterest) error
	DeletePointOfInterest(ctx context.Context, poi PointOfInterest) error

	// SaveChanges commits everything staged so far. Failures wrap ErrStorage.
	SaveChanges(ctx context.Context) error
	Close() error
}
