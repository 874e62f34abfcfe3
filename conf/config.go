package conf

import (
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/mirror520/chatroom/queue"
)

var (
	Path string
	Port int

	global *Config
)

func G() *Config {
	if global == nil {
		panic("configuration not loaded")
	}

	return global
}

func ReplaceGlobals(cfg *Config) {
	global = cfg
}

func LoadEnv(cli *cli.Context) error {
	path := cli.String("path")
	if path == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return err
		}

		path = homeDir + "/.chatroom"
	}

	Path = path
	Port = cli.Int("port")
	return nil
}

func LoadConfig(path string) (*Config, error) {
	f, err := os.Open(path + "/config.yaml")
	if err != nil {
		f, err = os.Open(path + "/config.example.yaml")
		if err != nil {
			return nil, err
		}
	}
	defer f.Close()

	r := NewEnvExpandedReader(f)

	var cfg *Config
	if err := yaml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, err
	}

	if cfg.SystemTopic == "" {
		cfg.SystemTopic = "SISTEMA"
	}

	return cfg, nil
}

type Config struct {
	Name        string      `yaml:"name"`
	SystemTopic string      `yaml:"systemTopic"`
	Topics      []Topic     `yaml:"topics"`
	Queue       Queue       `yaml:"queue"`
	Transports  Transports  `yaml:"transports"`
	Persistence Persistence `yaml:"persistence"`
}

// Topic seeds the catalog. A bare scalar is shorthand for {name: ...}.
type Topic struct {
	Name        string
	Description string
	Reserved    bool
}

func (t *Topic) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		t.Name = value.Value
		return nil
	}

	var raw struct {
		Name        string `yaml:"name"`
		Description string `yaml:"description"`
		Reserved    bool   `yaml:"reserved"`
	}

	if err := value.Decode(&raw); err != nil {
		return err
	}

	t.Name = raw.Name
	t.Description = raw.Description
	t.Reserved = raw.Reserved
	return nil
}

type Queue struct {
	Capacity int
	Policy   queue.Policy
}

func (q *Queue) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		Capacity int    `yaml:"capacity"`
		Policy   string `yaml:"policy"`
	}

	if err := value.Decode(&raw); err != nil {
		return err
	}

	if raw.Capacity < 0 {
		return errors.New("queue capacity must not be negative")
	}

	policy, err := queue.ParsePolicy(raw.Policy)
	if err != nil {
		return err
	}

	q.Capacity = raw.Capacity
	q.Policy = policy
	return nil
}

type Transports struct {
	HTTP   RegisterHTTP `yaml:"http"`
	PubSub PubSub       `yaml:"pubsub"`
	Consul Consul       `yaml:"consul"`
}

type RegisterHTTP struct {
	Enabled  bool
	Internal Instance
	External *Instance
}

func (r *RegisterHTTP) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		Enabled  bool      `yaml:"enabled"`
		Internal Instance  `yaml:"internal"`
		External *Instance `yaml:"external"`
	}

	if err := value.Decode(&raw); err != nil {
		return err
	}

	r.Enabled = raw.Enabled
	r.Internal = raw.Internal
	r.External = raw.External

	// default
	if r.Internal.Scheme == "" {
		r.Internal.Scheme = "http"
	}

	if r.Internal.Host == "" {
		r.Internal.Host = "localhost"
	}

	if r.Internal.Port == 0 {
		r.Internal.Port = Port
	}

	if r.Internal.Health.Path == "" {
		r.Internal.Health.Path = "/health"
	}

	return nil
}

type Instance struct {
	Scheme string `yaml:"scheme"`
	Host   string `yaml:"host"`
	Port   int    `yaml:"port"`
	Health Health `yaml:"health"`
}

func (i *Instance) URL() string {
	return i.Scheme + "://" + i.Host + ":" + strconv.Itoa(i.Port)
}

func (i *Instance) Address() string {
	return i.Host + ":" + strconv.Itoa(i.Port)
}

type Health struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

type TransportProvider int

const (
	InProc TransportProvider = iota
	NATS
	Libp2p
)

func ParseTransportProvider(provider string) (TransportProvider, error) {
	switch provider {
	case "inproc":
		return InProc, nil
	case "nats":
		return NATS, nil
	case "libp2p":
		return Libp2p, nil
	default:
		return -1, errors.New("provider not supported")
	}
}

func (p TransportProvider) String() string {
	switch p {
	case InProc:
		return "inproc"
	case NATS:
		return "nats"
	case Libp2p:
		return "libp2p"
	default:
		return ""
	}
}

// PubSub configures the transport collaborator. All providers carry every
// topic on a single channel (Subject) and filter by byte prefix locally.
type PubSub struct {
	Enabled  bool
	Provider TransportProvider
	URL      string
	Subject  string
	Filters  []string
	Capacity int
	Libp2p   Libp2pOptions
}

func (ps *PubSub) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		Enabled  bool          `yaml:"enabled"`
		Provider string        `yaml:"provider"`
		URL      string        `yaml:"url"`
		Subject  string        `yaml:"subject"`
		Filters  []string      `yaml:"filters"`
		Capacity int           `yaml:"capacity"`
		Libp2p   Libp2pOptions `yaml:"libp2p"`
	}

	if err := value.Decode(&raw); err != nil {
		return err
	}

	if raw.Provider == "" {
		raw.Provider = "inproc"
	}

	provider, err := ParseTransportProvider(raw.Provider)
	if err != nil {
		return err
	}

	ps.Enabled = raw.Enabled
	ps.Provider = provider
	ps.URL = raw.URL
	ps.Subject = raw.Subject
	ps.Filters = raw.Filters
	ps.Capacity = raw.Capacity
	ps.Libp2p = raw.Libp2p

	// default
	if ps.Subject == "" {
		ps.Subject = "chatroom"
	}

	if ps.Filters == nil {
		ps.Filters = []string{""}
	}

	return nil
}

type Libp2pOptions struct {
	ListenAddrs     []string `yaml:"listenAddrs"`
	Bootstrap       []string `yaml:"bootstrap"`
	Rendezvous      string   `yaml:"rendezvous"`
	EnableMDNS      bool     `yaml:"mdns"`
	IdentityKeyFile string   `yaml:"identityKeyFile"`
}

type Consul struct {
	Enabled   bool
	Address   string
	ServiceID string
	Tags      []string
	Interval  time.Duration
	Timeout   time.Duration
}

func (c *Consul) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		Enabled   bool     `yaml:"enabled"`
		Address   string   `yaml:"address"`
		ServiceID string   `yaml:"serviceId"`
		Tags      []string `yaml:"tags"`
		Interval  string   `yaml:"interval"`
		Timeout   string   `yaml:"timeout"`
	}

	if err := value.Decode(&raw); err != nil {
		return err
	}

	c.Enabled = raw.Enabled
	c.Address = raw.Address
	c.ServiceID = raw.ServiceID
	c.Tags = raw.Tags

	c.Interval = 10 * time.Second
	if raw.Interval != "" {
		interval, err := time.ParseDuration(raw.Interval)
		if err != nil {
			return err
		}

		c.Interval = interval
	}

	c.Timeout = 1 * time.Second
	if raw.Timeout != "" {
		timeout, err := time.ParseDuration(raw.Timeout)
		if err != nil {
			return err
		}

		c.Timeout = timeout
	}

	return nil
}

type PersistenceDriver int

const (
	SQLite PersistenceDriver = iota
	BadgerDB
	InMem
)

func ParsePersistenceDriver(driver string) (PersistenceDriver, error) {
	switch driver {
	case "sqlite":
		return SQLite, nil
	case "badger":
		return BadgerDB, nil
	case "inmem":
		return InMem, nil
	default:
		return -1, errors.New("driver not supported")
	}
}

func (driver PersistenceDriver) String() string {
	switch driver {
	case SQLite:
		return "sqlite"
	case BadgerDB:
		return "badger"
	case InMem:
		return "inmem"
	default:
		return "unknown"
	}
}

type Persistence struct {
	Driver PersistenceDriver
	Name   string
	Host   string
	InMem  bool
}

func (p *Persistence) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		Driver string `yaml:"driver"`
		Name   string `yaml:"name"`
		Host   string `yaml:"host"`
		InMem  bool   `yaml:"inmem"`
	}

	if err := value.Decode(&raw); err != nil {
		return err
	}

	if raw.Driver == "" {
		raw.Driver = "inmem"
	}

	driver, err := ParsePersistenceDriver(raw.Driver)
	if err != nil {
		return err
	}

	p.Driver = driver
	p.Name = raw.Name

	p.Host = raw.Host
	if raw.Host == "" {
		p.Host = Path
	}

	p.InMem = raw.InMem

	return nil
}
