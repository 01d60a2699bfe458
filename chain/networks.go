package chain

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"gopkg.in/yaml.v3"

	"github.com/ruteri/certificate-trust-backend/interfaces"
)

// NetworkConfig describes how to reach one ledger network.
type NetworkConfig struct {
	RPCURL string `yaml:"rpc_url"`

	// ChainID, when set, is checked against the endpoint on first use.
	ChainID uint64 `yaml:"chain_id"`

	ReadAccount string        `yaml:"read_account"`
	CallTimeout time.Duration `yaml:"call_timeout"`
	MaxAttempts int           `yaml:"max_attempts"`
}

// NetworksConfig is the top-level networks file.
type NetworksConfig struct {
	Networks map[interfaces.NetworkName]NetworkConfig `yaml:"networks"`
}

// LoadNetworksConfig reads a networks YAML file. ${VAR} references are expanded
// from the environment so RPC API keys stay out of the file.
func LoadNetworksConfig(path string) (*NetworksConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read networks file: %w", err)
	}
	return ParseNetworksConfig(data)
}

func ParseNetworksConfig(data []byte) (*NetworksConfig, error) {
	var cfg NetworksConfig
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse networks file: %w", err)
	}

	if len(cfg.Networks) == 0 {
		return nil, fmt.Errorf("networks file defines no networks")
	}
	for name, network := range cfg.Networks {
		if network.RPCURL == "" {
			return nil, fmt.Errorf("network %s: rpc_url is required", name)
		}
		if network.ReadAccount != "" && !common.IsHexAddress(network.ReadAccount) {
			return nil, fmt.Errorf("network %s: invalid read_account %q", name, network.ReadAccount)
		}
	}
	return &cfg, nil
}

// Dialer connects to an RPC endpoint.
type Dialer func(ctx context.Context, rpcURL string) (Backend, error)

// DialRPC dials with ethclient.
func DialRPC(ctx context.Context, rpcURL string) (Backend, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// Networks resolves a Reader per configured network. Clients are dialed on
// first use and cached for the lifetime of the factory.
type Networks struct {
	configs map[interfaces.NetworkName]NetworkConfig
	dial    Dialer
	log     *slog.Logger

	mutex   sync.Mutex
	readers map[interfaces.NetworkName]*Reader
	closers []func()
}

func NewNetworks(cfg *NetworksConfig, dial Dialer, log *slog.Logger) *Networks {
	if dial == nil {
		dial = DialRPC
	}
	return &Networks{
		configs: cfg.Networks,
		dial:    dial,
		log:     log,
		readers: make(map[interfaces.NetworkName]*Reader),
	}
}

// ReaderFor returns the reader of a configured network.
func (n *Networks) ReaderFor(ctx context.Context, network interfaces.NetworkName) (interfaces.ChainReader, error) {
	cfg, ok := n.configs[network]
	if !ok {
		return nil, fmt.Errorf("%w: unknown network %q", interfaces.ErrBadRequest, network)
	}

	n.mutex.Lock()
	defer n.mutex.Unlock()

	if reader, ok := n.readers[network]; ok {
		return reader, nil
	}

	n.log.Info("Connecting to ledger RPC", "network", network.String())
	backend, err := n.dial(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("%w: dialing %s: %v", interfaces.ErrUpstreamUnavailable, network, err)
	}
	closeBackend := func() {
		if c, ok := backend.(interface{ Close() }); ok {
			c.Close()
		}
	}

	reader := NewReader(backend, ReaderConfig{
		Network:     network,
		ReadAccount: common.HexToAddress(cfg.ReadAccount),
		CallTimeout: cfg.CallTimeout,
		MaxAttempts: cfg.MaxAttempts,
	}, n.log)

	if cfg.ChainID != 0 {
		chainID, err := reader.ChainID(ctx)
		if err != nil {
			closeBackend()
			return nil, err
		}
		if !chainID.IsUint64() || chainID.Uint64() != cfg.ChainID {
			closeBackend()
			return nil, fmt.Errorf("network %s: endpoint reports chain id %s, expected %d", network, chainID, cfg.ChainID)
		}
	}

	n.readers[network] = reader
	n.closers = append(n.closers, closeBackend)
	return reader, nil
}

// Networks lists configured network names in sorted order.
func (n *Networks) Networks() []interfaces.NetworkName {
	names := make([]interfaces.NetworkName, 0, len(n.configs))
	for name := range n.configs {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Close releases all dialed clients.
func (n *Networks) Close() {
	n.mutex.Lock()
	defer n.mutex.Unlock()

	for _, c := range n.closers {
		c()
	}
	n.closers = nil
	n.readers = make(map[interfaces.NetworkName]*Reader)
}
