package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/pior/memcached"
	"github.com/pior/memcached/protocol"
	"github.com/pior/memcached/store"
)

type configSource string

const (
	sourceDefault configSource = "default"
	sourceFile    configSource = "file"
	sourceEnv     configSource = "env"
	sourceFlag    configSource = "flag"
)

const defaultConfigPath = "memcached.yaml"

// setting binds a flag to its YAML path and environment variable.
// Layers apply in order: default, YAML file, environment (.env included),
// command line.
type setting struct {
	flag     string
	yamlPath string
	env      string
}

var settings = []setting{
	{"addr", "server.addr", "MEMCACHED_ADDR"},
	{"max-conns", "server.max_conns", "MEMCACHED_MAX_CONNS"},
	{"idle-timeout", "server.idle_timeout", "MEMCACHED_IDLE_TIMEOUT"},
	{"packet-size", "server.packet_size", "MEMCACHED_PACKET_SIZE"},
	{"queue-depth", "server.queue_depth", "MEMCACHED_QUEUE_DEPTH"},
	{"max-key-length", "protocol.max_key_length", "MEMCACHED_MAX_KEY_LENGTH"},
	{"max-line-length", "protocol.max_line_length", "MEMCACHED_MAX_LINE_LENGTH"},
	{"pipelining", "protocol.pipelining", "MEMCACHED_PIPELINING"},
	{"shards", "store.shards", "MEMCACHED_SHARDS"},
	{"seed", "store.seed", "MEMCACHED_SEED"},
	{"source-dir", "store.source_dir", "MEMCACHED_SOURCE_DIR"},
	{"metrics-addr", "metrics.addr", "MEMCACHED_METRICS_ADDR"},
	{"log-level", "log.level", "MEMCACHED_LOG_LEVEL"},
	{"log-format", "log.format", "MEMCACHED_LOG_FORMAT"},
}

type serverConfig struct {
	addr          string
	maxConns      int
	idleTimeout   time.Duration
	packetSize    int
	queueDepth    int
	maxKeyLength  int
	maxLineLength int
	pipelining    bool
	shards        int
	seedPath      string
	sourceDir     string
	metricsAddr   string
	logLevel      string
	logFormat     string

	sources map[string]configSource

	dotenvPath   string
	dotenvLoaded bool

	configPath   string
	configLoaded bool
}

func newFlagSet(c *serverConfig) *flag.FlagSet {
	fs := flag.NewFlagSet("memcached", flag.ContinueOnError)
	fs.String("config", defaultConfigPath, "path to YAML config file")
	fs.StringVar(&c.addr, "addr", ":11211", "listen address")
	fs.IntVar(&c.maxConns, "max-conns", memcached.DefaultMaxConns, "maximum concurrent connections")
	fs.DurationVar(&c.idleTimeout, "idle-timeout", 0, "close connections idle for this long (0 to disable)")
	fs.IntVar(&c.packetSize, "packet-size", memcached.DefaultPacketSize, "size of each socket buffer")
	fs.IntVar(&c.queueDepth, "queue-depth", memcached.DefaultQueueDepth, "socket buffers per direction")
	fs.IntVar(&c.maxKeyLength, "max-key-length", protocol.MaxKeyLength, "maximum key length")
	fs.IntVar(&c.maxLineLength, "max-line-length", 0, "maximum request line length (0 derives it from max-key-length)")
	fs.BoolVar(&c.pipelining, "pipelining", false, "buffer one request line beyond the current one")
	fs.IntVar(&c.shards, "shards", store.DefaultShards, "store shard count")
	fs.StringVar(&c.seedPath, "seed", "", "YAML file of items to preload")
	fs.StringVar(&c.sourceDir, "source-dir", "", "serve misses from files in this directory")
	fs.StringVar(&c.metricsAddr, "metrics-addr", "", "Prometheus /metrics listen address (empty to disable)")
	fs.StringVar(&c.logLevel, "log-level", "info", "log level: debug, info, warn, error")
	fs.StringVar(&c.logFormat, "log-format", "text", "log format: text or json")
	return fs
}

// loadConfig resolves the configuration from args, the YAML file, the
// environment and the dotenv file at dotenvPath.
func loadConfig(args []string, dotenvPath string) (serverConfig, error) {
	c := serverConfig{sources: map[string]configSource{}}
	fs := newFlagSet(&c)
	fs.SetOutput(io.Discard)

	resolved, err := resolveYAML(args)
	if err != nil {
		return serverConfig{}, err
	}
	c.configPath = resolved.path
	c.configLoaded = resolved.loaded

	c.dotenvPath, c.dotenvLoaded = loadDotenv(dotenvPath)

	for _, s := range settings {
		c.sources[s.flag] = sourceDefault

		if v, ok := resolved.yc.getString(s.yamlPath); ok {
			if err := fs.Set(s.flag, v); err != nil {
				return serverConfig{}, fmt.Errorf("yaml %s: %w", s.yamlPath, err)
			}
			c.sources[s.flag] = sourceFile
		}

		if v, ok := os.LookupEnv(s.env); ok {
			if v == "" {
				return serverConfig{}, fmt.Errorf("env %s is empty", s.env)
			}
			if err := fs.Set(s.flag, v); err != nil {
				return serverConfig{}, fmt.Errorf("env %s: %w", s.env, err)
			}
			c.sources[s.flag] = sourceEnv
		}
	}

	if err := fs.Parse(args); err != nil {
		return serverConfig{}, err
	}
	fs.Visit(func(f *flag.Flag) {
		if _, ok := c.sources[f.Name]; ok {
			c.sources[f.Name] = sourceFlag
		}
	})

	if err := c.validate(); err != nil {
		return serverConfig{}, err
	}
	return c, nil
}

func (c serverConfig) validate() error {
	var errs []error
	if c.maxConns <= 0 {
		errs = append(errs, fmt.Errorf("max-conns must be positive, got %d", c.maxConns))
	}
	if c.maxKeyLength <= 0 {
		errs = append(errs, fmt.Errorf("max-key-length must be positive, got %d", c.maxKeyLength))
	}
	if c.maxLineLength < 0 {
		errs = append(errs, fmt.Errorf("max-line-length must not be negative, got %d", c.maxLineLength))
	}
	if c.maxLineLength > 0 && c.maxLineLength <= c.maxKeyLength+len("get \r\n") {
		errs = append(errs, fmt.Errorf("max-line-length %d cannot hold a %d byte key", c.maxLineLength, c.maxKeyLength))
	}
	if c.idleTimeout < 0 {
		errs = append(errs, errors.New("idle-timeout must not be negative"))
	}
	if _, err := parseLevel(c.logLevel); err != nil {
		errs = append(errs, err)
	}
	if c.logFormat != "text" && c.logFormat != "json" {
		errs = append(errs, fmt.Errorf("log-format must be text or json, got %q", c.logFormat))
	}
	return errors.Join(errs...)
}

func (c serverConfig) engineConfig(logger *slog.Logger) memcached.Config {
	return memcached.Config{
		MaxKeyLength:  c.maxKeyLength,
		MaxLineLength: c.maxLineLength,
		Pipelining:    c.pipelining,
		MaxConns:      int32(c.maxConns),
		PacketSize:    c.packetSize,
		QueueDepth:    c.queueDepth,
		IdleTimeout:   c.idleTimeout,
		Logger:        logger,
	}
}

// logSources logs where every setting came from.
func (c serverConfig) logSources(logger *slog.Logger) {
	names := make([]string, 0, len(c.sources))
	for name := range c.sources {
		names = append(names, name)
	}
	sort.Strings(names)

	attrs := make([]any, 0, 2*len(names)+4)
	attrs = append(attrs, "config", c.configPath, "config_loaded", c.configLoaded)
	if c.dotenvLoaded {
		attrs = append(attrs, "dotenv", c.dotenvPath)
	}
	for _, name := range names {
		attrs = append(attrs, name, string(c.sources[name]))
	}
	logger.Debug("memcached: configuration sources", attrs...)
}

type resolvedYAML struct {
	yc     *yamlConfig
	path   string
	loaded bool
}

func resolveYAML(args []string) (resolvedYAML, error) {
	configPath, explicit := parseConfigPath(args)
	if abs, err := filepath.Abs(configPath); err == nil {
		configPath = abs
	}

	yc, err := readYAMLConfigFile(configPath)
	if err == nil {
		return resolvedYAML{yc: yc, path: configPath, loaded: true}, nil
	}
	if errors.Is(err, os.ErrNotExist) && !explicit {
		// a missing default config is fine
		return resolvedYAML{path: configPath}, nil
	}
	return resolvedYAML{}, err
}

func parseConfigPath(args []string) (string, bool) {
	fs := flag.NewFlagSet("preconfig", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	config := fs.String("config", defaultConfigPath, "")
	// only -config matters here, errors are reported by the real parse
	for _, s := range settings {
		if s.flag == "pipelining" {
			fs.Bool(s.flag, false, "")
			continue
		}
		fs.String(s.flag, "", "")
	}
	_ = fs.Parse(args)

	explicit := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "config" {
			explicit = true
		}
	})
	return *config, explicit
}

func loadDotenv(path string) (string, bool) {
	if path == "" {
		return "", false
	}
	if err := godotenv.Load(path); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			slog.Warn("memcached: cannot load dotenv file", "path", path, "error", err)
		}
		return path, false
	}
	return path, true
}

// yamlConfig holds a parsed YAML document addressed by dotted paths like
// "server.addr".
type yamlConfig struct {
	data map[string]any
}

func readYAMLConfigFile(path string) (*yamlConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	data := make(map[string]any)
	if err := yaml.Unmarshal(b, &data); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &yamlConfig{data: data}, nil
}

func (yc *yamlConfig) get(path string) (any, bool) {
	if yc == nil || path == "" {
		return nil, false
	}

	var cur any = yc.data
	for _, p := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		if cur, ok = m[p]; !ok {
			return nil, false
		}
	}
	return cur, true
}

// getString returns the scalar at path in its flag syntax.
func (yc *yamlConfig) getString(path string) (string, bool) {
	v, ok := yc.get(path)
	if !ok || v == nil {
		return "", false
	}
	if s, ok := v.(string); ok {
		return s, true
	}
	return fmt.Sprint(v), true
}

type seedFile struct {
	Items []seedItem `yaml:"items"`
}

type seedItem struct {
	Key   string `yaml:"key"`
	Value string `yaml:"value"`
	Flags uint32 `yaml:"flags"`
}

// loadSeed reads the items of a seed file. Keys must be valid protocol keys.
func loadSeed(path string) ([]store.Item, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var seed seedFile
	if err := yaml.Unmarshal(b, &seed); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	items := make([]store.Item, 0, len(seed.Items))
	for i, it := range seed.Items {
		if !protocol.IsValidKey(it.Key) {
			return nil, fmt.Errorf("%s: item %d: invalid key %q", path, i, it.Key)
		}
		items = append(items, store.Item{Key: it.Key, Flags: it.Flags, Value: []byte(it.Value)})
	}
	return items, nil
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("log-level: %w", err)
	}
	return level, nil
}

func newLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	lvl, err := parseLevel(level)
	if err != nil {
		return nil, err
	}

	opts := &slog.HandlerOptions{Level: lvl}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}
