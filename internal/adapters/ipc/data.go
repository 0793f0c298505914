package ipc

import (
	"context"
	"fmt"

	"github.com/okian/lcarun/internal/domain/schema"
)

// Find returns the descriptor of the entity with exactly the given name.
// The application answers with an error when nothing matches; that error
// satisfies errors.Is(err, ErrNotFound).
func (c *Client) Find(ctx context.Context, t schema.RefType, name string) (schema.Ref, error) {
	var ref schema.Ref
	if err := c.call(ctx, MethodGetDescriptor, descriptorParams{Type: string(t), Name: name}, &ref); err != nil {
		return schema.Ref{}, err
	}
	if ref.IsZero() {
		return schema.Ref{}, fmt.Errorf("%s %q: %w", t, name, ErrNotFound)
	}
	return ref, nil
}

// Get returns the descriptor of the entity with the given id.
func (c *Client) Get(ctx context.Context, t schema.RefType, id string) (schema.Ref, error) {
	var ref schema.Ref
	if err := c.call(ctx, MethodGetDescriptor, descriptorParams{Type: string(t), ID: id}, &ref); err != nil {
		return schema.Ref{}, err
	}
	if ref.IsZero() {
		return schema.Ref{}, fmt.Errorf("%s %s: %w", t, id, ErrNotFound)
	}
	return ref, nil
}

// Descriptors lists all descriptors of the given type in server order.
func (c *Client) Descriptors(ctx context.Context, t schema.RefType) ([]schema.Ref, error) {
	var refs []schema.Ref
	if err := c.call(ctx, MethodGetDescriptors, descriptorParams{Type: string(t)}, &refs); err != nil {
		return nil, err
	}
	return refs, nil
}
