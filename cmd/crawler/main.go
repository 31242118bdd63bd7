package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/howeyc/gopass"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/ssh/terminal"

	"github.com/996BC/btccrawler/crawler"
	"github.com/996BC/btccrawler/db"
	"github.com/996BC/btccrawler/geo"
	"github.com/996BC/btccrawler/metrics"
	"github.com/996BC/btccrawler/p2p"
	"github.com/996BC/btccrawler/p2p/peer"
	"github.com/996BC/btccrawler/params"
	"github.com/996BC/btccrawler/rpc"
	"github.com/996BC/btccrawler/seed"
	"github.com/996BC/btccrawler/tracing"
	"github.com/996BC/btccrawler/utils"
)

func main() {
	if err := newRoot().Execute(); err != nil {
		log.Fatal(err)
	}
}

func newRoot() *cobra.Command {
	root := &cobra.Command{
		Use:           "crawler",
		Short:         "Bitcoin P2P network crawler",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newCrawlCmd())
	return root
}

func newCrawlCmd() *cobra.Command {
	var (
		cf           string
		seeds        string
		askRedisPass bool
		flagConf     = defaultConfig()
	)

	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Crawl the network from the seeds until the target count is discovered",
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, err := parseConfig(cf)
			if err != nil {
				return err
			}
			overlayFlags(cmd, conf, flagConf)
			if cmd.Flags().Changed("seed") {
				conf.Seeds = seed.ParseList(seeds)
			}
			if cmd.Flags().Changed("ask-redis-pass") {
				conf.Store.AskRedisPass = askRedisPass
			}
			if err := verifyConfig(conf); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runCrawl(ctx, conf)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&cf, "config", "c", "", "config file")
	f.StringVar(&flagConf.Network, "network", flagConf.Network, "mainnet|testnet3|regtest|simnet")
	f.StringVar(&seeds, "seed", "", `seed addresses, like "203.0.113.5:18333,198.51.100.7"`)
	f.BoolVar(&flagConf.DNSSeeds, "dns-seeds", false, "resolve the DNS seeds of the network")
	f.BoolVar(&flagConf.Bitnodes, "bitnodes", false, "use the latest bitnodes.io snapshot as seed source")
	f.StringVar(&flagConf.RPC.URL, "rpc-url", "", "bitcoind JSON-RPC url, its peers are used as seeds")
	f.StringVar(&flagConf.RPC.User, "rpc-user", "", "bitcoind JSON-RPC user")
	f.StringVar(&flagConf.RPC.Password, "rpc-pass", "", "bitcoind JSON-RPC password")
	f.BoolVar(&flagConf.RetryFailed, "retry-failed", false, "seed the failed records of previous crawls again")
	f.IntVar(&flagConf.TargetCount, "target", flagConf.TargetCount, "stop after this many distinct addresses")
	f.IntVar(&flagConf.Concurrency, "concurrency", flagConf.Concurrency, "contacts per iteration")
	f.IntVar(&flagConf.MaxIterations, "max-iterations", flagConf.MaxIterations, "iteration budget")
	f.DurationVar(&flagConf.BatchDelay.Duration, "delay", flagConf.BatchDelay.Duration, "pause between iterations")
	f.DurationVar(&flagConf.ConnectTimeout.Duration, "connect-timeout", flagConf.ConnectTimeout.Duration, "TCP connect timeout")
	f.DurationVar(&flagConf.ReadTimeout.Duration, "read-timeout", flagConf.ReadTimeout.Duration, "message read timeout")
	f.StringVar(&flagConf.Store.Type, "store", flagConf.Store.Type, "memory|badger|redis")
	f.StringVar(&flagConf.Store.Path, "db-path", "", "badger directory")
	f.StringVar(&flagConf.Store.RedisAddr, "redis-addr", "", "redis address, like localhost:6379")
	f.IntVar(&flagConf.Store.RedisDB, "redis-db", 0, "redis database")
	f.BoolVar(&askRedisPass, "ask-redis-pass", false, "prompt the redis password")
	f.StringVar(&flagConf.GeoIP, "geoip", "", "GeoLite2/DB-IP City mmdb file")
	f.IntVar(&flagConf.HTTPPort, "http-port", 0, "status server port on 127.0.0.1, 0 disables it")
	f.StringVarP(&flagConf.Output, "output", "o", "", "summary output file; stdout if empty")
	f.IntVar(&flagConf.LogLevel, "log-level", flagConf.LogLevel, "0 error, 1 warn, 2 info, 3 debug")
	f.StringVar(&flagConf.LogFile, "log-file", "", "rotated log file; stdout if empty")
	f.BoolVar(&flagConf.Trace, "trace", false, "print a trace span per contact")
	return cmd
}

// overlayFlags copies the explicitly set flags over the file configuration
func overlayFlags(cmd *cobra.Command, conf, flags *config) {
	changed := cmd.Flags().Changed
	overlays := []struct {
		name  string
		apply func()
	}{
		{"network", func() { conf.Network = flags.Network }},
		{"dns-seeds", func() { conf.DNSSeeds = flags.DNSSeeds }},
		{"bitnodes", func() { conf.Bitnodes = flags.Bitnodes }},
		{"rpc-url", func() { conf.RPC.URL = flags.RPC.URL }},
		{"rpc-user", func() { conf.RPC.User = flags.RPC.User }},
		{"rpc-pass", func() { conf.RPC.Password = flags.RPC.Password }},
		{"retry-failed", func() { conf.RetryFailed = flags.RetryFailed }},
		{"target", func() { conf.TargetCount = flags.TargetCount }},
		{"concurrency", func() { conf.Concurrency = flags.Concurrency }},
		{"max-iterations", func() { conf.MaxIterations = flags.MaxIterations }},
		{"delay", func() { conf.BatchDelay = flags.BatchDelay }},
		{"connect-timeout", func() { conf.ConnectTimeout = flags.ConnectTimeout }},
		{"read-timeout", func() { conf.ReadTimeout = flags.ReadTimeout }},
		{"store", func() { conf.Store.Type = flags.Store.Type }},
		{"db-path", func() { conf.Store.Path = flags.Store.Path }},
		{"redis-addr", func() { conf.Store.RedisAddr = flags.Store.RedisAddr }},
		{"redis-db", func() { conf.Store.RedisDB = flags.Store.RedisDB }},
		{"geoip", func() { conf.GeoIP = flags.GeoIP }},
		{"http-port", func() { conf.HTTPPort = flags.HTTPPort }},
		{"output", func() { conf.Output = flags.Output }},
		{"log-level", func() { conf.LogLevel = flags.LogLevel }},
		{"log-file", func() { conf.LogFile = flags.LogFile }},
		{"trace", func() { conf.Trace = flags.Trace }},
	}
	for _, o := range overlays {
		if changed(o.name) {
			o.apply()
		}
	}
}

func runCrawl(ctx context.Context, conf *config) error {
	if err := utils.InitLog(utils.LogConfig{Level: conf.LogLevel, File: conf.LogFile, JSON: conf.LogJSON}); err != nil {
		return err
	}
	defer utils.SyncLog()
	logger := utils.GetStdoutLog()

	tracer, shutdownTracing, err := tracing.Setup(conf.Trace)
	if err != nil {
		return err
	}
	defer shutdownTracing(context.Background())

	network, err := params.NetworkByName(conf.Network)
	if err != nil {
		return err
	}
	logger.Info("crawling %v\n", network)

	// peer store
	if conf.Store.AskRedisPass {
		if conf.Store.RedisPassword, err = askPassword("Input the redis password:"); err != nil {
			return err
		}
	}
	store, err := db.Open(db.Config{
		Type:          conf.Store.Type,
		Path:          conf.Store.Path,
		RedisAddr:     conf.Store.RedisAddr,
		RedisPassword: conf.Store.RedisPassword,
		RedisDB:       conf.Store.RedisDB,
	})
	if err != nil {
		return fmt.Errorf("open %s store failed:%v", conf.Store.Type, err)
	}
	defer store.Close()

	var peerStore crawler.PeerStore = store
	locator, err := geo.Open(conf.GeoIP)
	if err != nil {
		return err
	}
	defer locator.Close()
	if !locator.Degraded() {
		peerStore = geo.NewEnricher(store, locator)
	}

	// seeds
	seeds, err := collectSeeds(ctx, conf, network, store, nil)
	if err != nil {
		return err
	}

	// crawler
	p2pConf := p2p.DefaultConfig(network.MagicValue())
	p2pConf.ConnectTimeout = conf.ConnectTimeout.Duration
	p2pConf.ReadTimeout = conf.ReadTimeout.Duration
	p2pConf.Tracer = tracer
	contactor, err := p2p.NewContactor(p2pConf)
	if err != nil {
		return err
	}

	recorder := metrics.New()
	c, err := crawler.New(crawler.Config{
		Network:       network.Name,
		TargetCount:   conf.TargetCount,
		Concurrency:   conf.Concurrency,
		MaxIterations: conf.MaxIterations,
		BatchDelay:    conf.BatchDelay.Duration,
	}, contactor,
		crawler.WithStore(peerStore),
		crawler.WithReporter(db.Reporter(store)),
		crawler.WithObserver(recorder),
	)
	if err != nil {
		return err
	}

	// local http server
	if conf.HTTPPort != 0 {
		httpServer := rpc.NewServer(&rpc.Config{
			Port:     conf.HTTPPort,
			Progress: c,
			Peers:    store,
			Metrics:  recorder.Handler(),
		})
		if err := httpServer.Start(); err != nil {
			return fmt.Errorf("start http server failed:%v", err)
		}
		defer httpServer.Stop()
	}

	start := time.Now()
	summary, err := c.Run(ctx, seeds)
	if err != nil {
		return err
	}
	logger.Info("crawl stopped by %s after %v\n", summary.StopReason, time.Since(start).Round(time.Second))

	return writeSummary(summary, conf.Output)
}

// collectSeeds unions the configured sources. The network's DNS seeds join them when asked
// and otherwise back them up when they fail or find nothing usable.
// A nil resolver is the system one.
func collectSeeds(ctx context.Context, conf *config, network *params.Network, store db.Store,
	resolver seed.Resolver) ([]peer.Address, error) {

	var sources []seed.Source

	if len(conf.Seeds) != 0 {
		static, err := seed.NewStatic(network.DefaultPort, conf.Seeds...)
		if err != nil {
			return nil, err
		}
		sources = append(sources, static)
	}
	if len(conf.RPC.URL) != 0 {
		sources = append(sources, seed.NewRPC(seed.RPCOptions{
			URL:      conf.RPC.URL,
			User:     conf.RPC.User,
			Password: conf.RPC.Password,
		}))
	}
	if conf.Bitnodes {
		sources = append(sources, seed.NewBitnodes(conf.BitnodesURL, nil))
	}
	if conf.Store.Type != db.TypeMemory {
		sources = append(sources, seed.NewStore(store, seed.StoreOptions{IncludeFailed: conf.RetryFailed}))
	}

	dns := seed.NewDNS(seed.DNSOptions{
		Names:    network.DNSSeeds,
		Port:     network.DefaultPort,
		Resolver: resolver,
	})
	switch {
	case len(sources) == 0:
		return dns.InitialAddresses(ctx)
	case conf.DNSSeeds:
		return seed.Multi(append(sources, dns)...).InitialAddresses(ctx)
	default:
		return seed.Fallback(seed.Multi(sources...), dns).InitialAddresses(ctx)
	}
}

func askPassword(prompt string) (string, error) {
	if !terminal.IsTerminal(int(os.Stdin.Fd())) {
		return "", fmt.Errorf("stdin is not a terminal, set the redis password in the config file")
	}

	fmt.Print(prompt)
	pass, err := gopass.GetPasswdMasked()
	if err != nil {
		return "", fmt.Errorf("get password failed:%v", err)
	}
	return string(pass), nil
}

func writeSummary(summary *crawler.Summary, output string) error {
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')

	if len(output) == 0 {
		_, err = os.Stdout.Write(data)
		return err
	}
	return os.WriteFile(output, data, 0644)
}
