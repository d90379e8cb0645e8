// Package di provides a minimal named-token service container used as the
// composition root's registry, in place of package-level singletons.
package di

import "fmt"

// Token identifies a service registered in a Container.
type Token string

// Container holds constructed services keyed by Token.
type Container struct {
	services map[Token]any
}

// NewContainer returns an empty Container.
func NewContainer() *Container {
	return &Container{services: make(map[Token]any)}
}

// Factory builds a service, given the Container it can pull its own
// dependencies from.
type Factory func(c *Container) (any, error)

// RegisterToken builds a service via factory and stores it under token.
// It returns a typed error if factory fails, and panics on a duplicate
// registration since that always indicates a composition-root bug.
func RegisterToken[T any](c *Container, token Token, factory func(c *Container) (T, error)) error {
	if _, exists := c.services[token]; exists {
		panic(fmt.Sprintf("di: token %q already registered", token))
	}
	svc, err := factory(c)
	if err != nil {
		return fmt.Errorf("di: build %q: %w", token, err)
	}
	c.services[token] = svc
	return nil
}

// ServiceRegistry exposes read-only lookup of registered services, the view
// a Monolith hands to Modules so they can reach each other's services.
type ServiceRegistry interface {
	Get(token Token) (any, bool)
}

// Get implements ServiceRegistry.
func (c *Container) Get(token Token) (any, bool) {
	svc, ok := c.services[token]
	return svc, ok
}
