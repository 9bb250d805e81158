package domain

import "context"

// ServicePort is consumed by handlers and other modules
type ServicePort interface {
	Create(ctx context.Context, in CreateInput) (Site, error)
	Get(ctx context.Context, in GetInput) (Site, error)
	List(ctx context.Context, in ListInput) ([]Site, error)
}
