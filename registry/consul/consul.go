package consul

import (
	"errors"

	"github.com/hashicorp/consul/api"
	"go.uber.org/zap"

	"github.com/mirror520/chatroom/conf"
)

var ErrRegistryDisabled = errors.New("consul registry disabled")

// Registry announces the HTTP API of this instance to a Consul agent.
type Registry struct {
	log          *zap.Logger
	agent        *api.Agent
	registration *api.AgentServiceRegistration
}

func NewRegistry(name string, cfg conf.Consul, http conf.RegisterHTTP) (*Registry, error) {
	if !cfg.Enabled {
		return nil, ErrRegistryDisabled
	}

	config := api.DefaultConfig()
	if cfg.Address != "" {
		config.Address = cfg.Address
	}

	client, err := api.NewClient(config)
	if err != nil {
		return nil, err
	}

	return &Registry{
		log: zap.L().With(
			zap.String("registry", "consul"),
			zap.String("address", config.Address),
		),
		agent:        client.Agent(),
		registration: NewRegistration(name, cfg, http),
	}, nil
}

// NewRegistration advertises the external instance when one is configured,
// the internal one otherwise.
func NewRegistration(name string, cfg conf.Consul, http conf.RegisterHTTP) *api.AgentServiceRegistration {
	instance := http.Internal
	if http.External != nil {
		instance = *http.External
	}

	id := cfg.ServiceID
	if id == "" {
		id = name + "-" + instance.Address()
	}

	reg := &api.AgentServiceRegistration{
		ID:      id,
		Name:    name,
		Tags:    cfg.Tags,
		Address: instance.Host,
		Port:    instance.Port,
		Meta: map[string]string{
			"scheme": instance.Scheme,
		},
	}

	if http.Internal.Health.Enabled {
		reg.Check = &api.AgentServiceCheck{
			HTTP:                           http.Internal.URL() + http.Internal.Health.Path,
			Interval:                       cfg.Interval.String(),
			Timeout:                        cfg.Timeout.String(),
			DeregisterCriticalServiceAfter: (cfg.Interval * 6).String(),
		}
	}

	return reg
}

func (r *Registry) Register() error {
	if err := r.agent.ServiceRegister(r.registration); err != nil {
		return err
	}

	r.log.Info("service registered",
		zap.String("service_id", r.registration.ID),
		zap.String("service", r.registration.Name),
	)
	return nil
}

func (r *Registry) Deregister() error {
	if err := r.agent.ServiceDeregister(r.registration.ID); err != nil {
		return err
	}

	r.log.Info("service deregistered", zap.String("service_id", r.registration.ID))
	return nil
}
