package api

import (
	"fmt"

	"github.com/samber/lo"
	"norelock.dev/rpcsite/internal/config"
	"norelock.dev/rpcsite/internal/rpc"
	"norelock.dev/rpcsite/internal/services/system"
	"norelock.dev/rpcsite/internal/utils"
)

// NewSites creates the configured JSON-RPC sites. The first site is the
// primary one: its rpc.discover also lists the methods of the others.
// Metrics may be nil.
func NewSites(cfg *config.Config, metrics *system.MetricsService, logger *utils.Logger) ([]*rpc.Site, error) {
	sites := make([]*rpc.Site, 0, len(cfg.RPC.Sites))

	for _, sc := range cfg.RPC.Sites {
		options := rpc.DispatcherOptions{
			Debug:            cfg.RPC.Debug,
			BatchConcurrency: cfg.RPC.BatchConcurrency,
		}
		if metrics != nil {
			options.Observer = metrics.ObserverFor(sc.Name)
		}

		site, err := rpc.NewSite(rpc.SiteConfig{
			Name:        sc.Name,
			Path:        sc.Path,
			Title:       sc.Title,
			Description: sc.Description,
			Version:     sc.Version,
			Servers: lo.Map(sc.Servers, func(s config.SiteServer, _ int) rpc.Server {
				return rpc.Server{Name: s.Name, URL: s.URL, Description: s.Description}
			}),
			Defaults: rpc.Defaults{
				Validate:     cfg.RPC.Validate,
				Notification: cfg.RPC.Notification,
			},
			Dispatcher: options,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("site %q: %w", sc.Name, err)
		}
		sites = append(sites, site)
	}

	if len(sites) > 1 {
		sites[0].Aggregate(sites[1:]...)
	}
	return sites, nil
}

// SiteByName returns the site called name, or nil.
func SiteByName(sites []*rpc.Site, name string) *rpc.Site {
	site, _ := lo.Find(sites, func(s *rpc.Site) bool { return s.Name() == name })
	return site
}
