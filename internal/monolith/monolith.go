// Package monolith provides the application container and module interface
// used as the explicit composition root for both HTTP services, in place
// of package-level singletons.
package monolith

import (
	"context"

	"github.com/Pantilei/crypto-converter/internal/di"
	"github.com/Pantilei/crypto-converter/internal/logger"
)

// Monolith is the shared handle a Module's Startup receives: the logger and
// a read-only view of every service registered so far.
type Monolith interface {
	Logger() logger.LoggerInterface
	Services() di.ServiceRegistry
}

// Module is a bounded unit of the process (the connector+aggregator
// pipeline, the HTTP frontend) that registers its services and starts them.
type Module interface {
	RegisterServices(*di.Container) error
	Startup(context.Context, Monolith) error
}

// app implements Monolith.
type app struct {
	logger    logger.LoggerInterface
	container *di.Container
}

// New creates the composition root.
func New(log logger.LoggerInterface) *app {
	container := di.NewContainer()
	return &app{logger: log, container: container}
}

func (a *app) Logger() logger.LoggerInterface  { return a.logger }
func (a *app) Services() di.ServiceRegistry     { return a.container }
func (a *app) Container() *di.Container         { return a.container }

// RegisterModules registers every module's services in order.
func (a *app) RegisterModules(modules ...Module) error {
	for _, m := range modules {
		if err := m.RegisterServices(a.container); err != nil {
			return err
		}
	}
	return nil
}

// StartModules starts every module in order.
func (a *app) StartModules(ctx context.Context, modules ...Module) error {
	for _, m := range modules {
		if err := m.Startup(ctx, a); err != nil {
			return err
		}
	}
	return nil
}
