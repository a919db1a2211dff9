package service

import (
	"github.com/ANIKETSHETTY47/bess-monitoring-dashboard/internal/analysis"
	"github.com/ANIKETSHETTY47/bess-monitoring-dashboard/internal/repository"
	"github.com/ANIKETSHETTY47/bess-monitoring-dashboard/internal/source"
)

// Services bundles what the HTTP layer needs.
type Services struct {
	Store    repository.Store
	Catalog  source.Catalog
	Monitor  *Monitor
	Analysis *analysis.Service
}

func New(store repository.Store, catalog source.Catalog, monitor *Monitor, an *analysis.Service) *Services {
	return &Services{
		Store:    store,
		Catalog:  catalog,
		Monitor:  monitor,
		Analysis: an,
	}
}
