package api

import (
	"github.com/modelgate/credential-engine/internal/config"
	"github.com/modelgate/credential-engine/internal/services/cooldown"
	"github.com/modelgate/credential-engine/internal/services/credential"
	"github.com/modelgate/credential-engine/internal/services/database"
	"github.com/modelgate/credential-engine/internal/services/loadbalancing"
	"github.com/modelgate/credential-engine/internal/services/notify"
	"github.com/modelgate/credential-engine/internal/services/secrets"
	"github.com/modelgate/credential-engine/internal/services/store"
	"github.com/modelgate/credential-engine/internal/services/validator"
	"github.com/modelgate/credential-engine/internal/utils/clientcache"
)

// Services builds and caches the per-provider service instances the handlers
// dispatch to. Controllers are cached so their single-flight guard spans all
// requests touching the same provider.
type Services struct {
	cfg        *config.Config
	db         *database.DB
	cipher     *secrets.Cipher
	cooldowns  *cooldown.Store
	validators *validator.Registry
	notifier   notify.Notifier

	stores      *clientcache.Cache[*store.Service]
	controllers *clientcache.Cache[*credential.Controller]
	balancers   *clientcache.Cache[*loadbalancing.Service]
}

func NewServices(cfg *config.Config, db *database.DB, cipher *secrets.Cipher, cooldowns *cooldown.Store) *Services {
	return &Services{
		cfg:         cfg,
		db:          db,
		cipher:      cipher,
		cooldowns:   cooldowns,
		validators:  validator.NewRegistry(cfg.Providers),
		notifier:    notify.NewLogNotifier(),
		stores:      clientcache.NewCache[*store.Service](),
		controllers: clientcache.NewCache[*credential.Controller](),
		balancers:   clientcache.NewCache[*loadbalancing.Service](),
	}
}

func (s *Services) Store(provider string) *store.Service {
	svc, _ := s.stores.GetOrCreate(provider, func() (*store.Service, error) {
		return store.NewService(s.db.DB, s.cipher, s.cfg.Workspace.TenantID, provider, s.cfg.SecretFields(provider)), nil
	})
	return svc
}

func (s *Services) Controller(provider string) *credential.Controller {
	controller, _ := s.controllers.GetOrCreate(provider, func() (*credential.Controller, error) {
		return credential.NewController(credential.Options{
			Store:    s.Store(provider),
			Notifier: s.notifier,
		}), nil
	})
	return controller
}

func (s *Services) Balancer(provider string) *loadbalancing.Service {
	var cooldowns loadbalancing.CooldownChecker
	if s.cooldowns != nil {
		cooldowns = s.cooldowns
	}
	svc, _ := s.balancers.GetOrCreate(provider, func() (*loadbalancing.Service, error) {
		return loadbalancing.NewService(s.db.DB, s.cipher, cooldowns, s.cfg.Workspace.TenantID, provider, s.cfg.SecretFields(provider)), nil
	})
	return svc
}

func (s *Services) Validators() *validator.Registry {
	return s.validators
}

func (s *Services) Cooldowns() *cooldown.Store {
	return s.cooldowns
}
