// Package main implements the unified segmentstore binary.
//
// It wires together the schema, flush, and read modules over a configured
// PersistentStore backend, and can additionally run a gRPC facade over them.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"os"

	grpclib "google.golang.org/grpc"

	segrpc "github.com/vaultds/segmentstore/internal/api/grpc"
	"github.com/vaultds/segmentstore/internal/config"
	"github.com/vaultds/segmentstore/internal/flush"
	"github.com/vaultds/segmentstore/internal/keycodec"
	"github.com/vaultds/segmentstore/internal/metastore"
	"github.com/vaultds/segmentstore/internal/read"
	"github.com/vaultds/segmentstore/internal/router"
	"github.com/vaultds/segmentstore/internal/server"
	"github.com/vaultds/segmentstore/internal/store"
	"github.com/vaultds/segmentstore/internal/wal"
	"github.com/vaultds/segmentstore/pkg/types"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	var (
		configFile  string
		dotEnvFile  string
		dataDir     string
		mode        string
		grpcAddr    string
		partition   string
		segment     string
		showVersion bool
	)

	flag.StringVar(&configFile, "config", "", "Path to configuration file (YAML or JSON)")
	flag.StringVar(&dotEnvFile, "env-file", ".env", "Path to a .env file to load before other configuration sources")
	flag.StringVar(&dataDir, "data-dir", "", "Base directory for all data files")
	flag.StringVar(&mode, "mode", "serve", "Run mode: serve, flush-demo, read-demo, schema")
	flag.StringVar(&grpcAddr, "grpc-addr", "", "gRPC server address")
	flag.StringVar(&partition, "partition", "default", "Partition id for flush-demo/read-demo modes")
	flag.StringVar(&segment, "segment", "default", "Segment id for flush-demo/read-demo modes")
	flag.BoolVar(&showVersion, "version", false, "Show version information")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "segmentstore - a columnar, partitioned, versioned storage engine\n\n")
		fmt.Fprintf(os.Stderr, "Usage: segmentstore [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  segmentstore -mode serve -data-dir /data/segmentstore\n")
		fmt.Fprintf(os.Stderr, "  segmentstore -mode flush-demo -partition p1 -segment s1\n")
		fmt.Fprintf(os.Stderr, "  segmentstore -mode read-demo -partition p1 -segment s1\n")
		fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
		fmt.Fprintf(os.Stderr, "  SEGMENTSTORE_DATA_DIR    Base directory for data files\n")
		fmt.Fprintf(os.Stderr, "  SEGMENTSTORE_STORE_TYPE  Storage backend (local, s3)\n")
		fmt.Fprintf(os.Stderr, "  SEGMENTSTORE_GRPC_ADDR   gRPC server address\n")
	}

	flag.Parse()

	if showVersion {
		fmt.Printf("segmentstore version %s (commit: %s)\n", version, commit)
		os.Exit(0)
	}

	cfg, err := loadConfig(configFile, dotEnvFile, dataDir, grpcAddr)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		log.Fatalf("failed to prepare data directories: %v", err)
	}
	printBanner(cfg, mode)

	persistentStore, err := openStore(cfg)
	if err != nil {
		log.Fatalf("failed to open persistent store: %v", err)
	}
	if err := persistentStore.Initialize(context.Background()); err != nil {
		log.Fatalf("failed to initialize persistent store: %v", err)
	}

	meta, err := metastore.Open(cfg.Metadata.DBPath)
	if err != nil {
		log.Fatalf("failed to open metadata store: %v", err)
	}
	defer meta.Close()

	switch mode {
	case "schema":
		runSchemaMode(meta)
	case "flush-demo":
		runFlushDemo(cfg, persistentStore, partition, segment)
	case "read-demo":
		runReadDemo(persistentStore, partition, segment)
	case "serve":
		runServer(cfg, persistentStore, meta)
	default:
		log.Fatalf("unknown mode: %s", mode)
	}
}

func loadConfig(configFile, dotEnvFile, dataDir, grpcAddr string) (*config.Config, error) {
	if err := config.LoadDotEnv(dotEnvFile); err != nil {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	var cfg *config.Config
	var err error
	if configFile != "" {
		cfg, err = config.LoadFromFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	} else {
		cfg = config.DefaultConfig()
	}

	config.LoadFromEnv(cfg)

	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	if grpcAddr != "" {
		cfg.GRPC.Addr = grpcAddr
	}

	cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func openStore(cfg *config.Config) (store.PersistentStore, error) {
	switch cfg.Store.Type {
	case "local":
		return store.NewLocalStore(cfg.Store.Path)
	case "s3":
		return store.NewS3Store(context.Background(), cfg.Store.S3.Bucket, cfg.Store.S3.Prefix, store.S3Config{
			Region:   cfg.Store.S3.Region,
			Endpoint: cfg.Store.S3.Endpoint,
		})
	default:
		return nil, fmt.Errorf("unsupported store type: %s", cfg.Store.Type)
	}
}

func printBanner(cfg *config.Config, mode string) {
	log.Printf("segmentstore starting")
	log.Printf("  mode:     %s", mode)
	log.Printf("  data dir: %s", cfg.DataDir)
	log.Printf("  store:    %s", cfg.Store.Type)
	log.Printf("  wal:      enabled=%v dir=%s", cfg.WAL.Enabled, cfg.WAL.Dir)
	if mode == "serve" {
		log.Printf("  grpc:     enabled=%v addr=%s", cfg.GRPC.Enabled, cfg.GRPC.Addr)
	}
}

func runSchemaMode(meta *metastore.Store) {
	ctx := context.Background()
	const dataset = "demo"
	if err := meta.NewDataset(ctx, dataset); err != nil {
		log.Fatalf("schema: failed to register dataset: %v", err)
	}
	if err := meta.InsertColumn(ctx, types.NewColumn("value", dataset, 1, types.ColumnString)); err != nil {
		log.Fatalf("schema: failed to insert column: %v", err)
	}
	effective, err := meta.GetSchema(ctx, dataset, 1)
	if err != nil {
		log.Fatalf("schema: failed to load effective schema: %v", err)
	}
	for name, col := range effective {
		log.Printf("schema: column %q type=%s version=%d", name, col.ColumnType, col.Version)
	}
}

func demoEncoder(_ string, values []interface{}) ([]byte, error) {
	var out []byte
	for _, v := range values {
		s, _ := v.(string)
		out = append(out, []byte(s+"|")...)
	}
	return out, nil
}

func demoDecoder(_ string, vector []byte, numRows int) ([]interface{}, error) {
	values := make([]interface{}, 0, numRows)
	start := 0
	for i, b := range vector {
		if b == '|' {
			values = append(values, string(vector[start:i]))
			start = i + 1
		}
	}
	for len(values) < numRows {
		values = append(values, "")
	}
	return values, nil
}

func runFlushDemo(cfg *config.Config, persistentStore store.PersistentStore, partition, segment string) {
	var stage *wal.WAL
	if cfg.WAL.Enabled {
		w, err := wal.New(cfg.WAL.Dir, cfg.WAL.SegmentMaxBytes)
		if err != nil {
			log.Fatalf("flush-demo: failed to open WAL: %v", err)
		}
		stage = w
	}

	flusher := flush.New(persistentStore, keycodec.String{}, stage)
	batch, err := flush.PrepareBatch(types.PartitionID(partition), types.SegmentID(segment), []flush.Row{
		{Key: []byte("k1"), Values: map[string]interface{}{"value": "hello"}},
		{Key: []byte("k2"), Values: map[string]interface{}{"value": "world"}},
	}, []string{"value"}, demoEncoder)
	if err != nil {
		log.Fatalf("flush-demo: failed to prepare batch: %v", err)
	}

	committed, err := flusher.Attempt(context.Background(), batch)
	if err != nil {
		log.Fatalf("flush-demo: attempt failed: %v", err)
	}
	log.Printf("flush-demo: committed=%v", committed)
}

func runReadDemo(persistentStore store.PersistentStore, partition, segment string) {
	ctx := context.Background()
	rows, errs := read.Read(ctx, persistentStore, keycodec.String{}, partition, segment, []string{"value"}, demoDecoder)
	for r := range rows {
		log.Printf("read-demo: key=%s values=%v", r.Key, r.Values)
	}
	if err := <-errs; err != nil {
		log.Fatalf("read-demo: %v", err)
	}
}

// grpcServerCloser adapts grpclib.Server.GracefulStop to io.Closer so it can
// be registered with a server.ShutdownManager alongside the metadata store.
type grpcServerCloser struct {
	server *grpclib.Server
}

func (c *grpcServerCloser) Close() error {
	c.server.GracefulStop()
	return nil
}

// logCommits subscribes to notifier with no filter and logs every
// ChunkCommitted notification, giving operators write-visibility feedback
// without polling the store.
func logCommits(notifier *router.Notifier) {
	ch := notifier.SubscribeAutoID()
	go func() {
		for notif := range ch {
			log.Printf("serve: chunk committed partition=%s segment=%s version=%d", notif.Partition, notif.Segment, notif.Version)
		}
	}()
}

func runServer(cfg *config.Config, persistentStore store.PersistentStore, meta *metastore.Store) {
	if !cfg.GRPC.Enabled {
		log.Fatalf("serve: gRPC facade is disabled in configuration")
	}

	var stage *wal.WAL
	if cfg.WAL.Enabled {
		w, err := wal.New(cfg.WAL.Dir, cfg.WAL.SegmentMaxBytes)
		if err != nil {
			log.Fatalf("serve: failed to open WAL: %v", err)
		}
		stage = w
	}

	const notifierBufferSize = 256
	notifier := router.NewNotifier(notifierBufferSize)
	flusher := flush.New(persistentStore, keycodec.String{}, stage).WithNotifier(notifier)
	logCommits(notifier)

	svc := segrpc.NewService(flusher, persistentStore, keycodec.String{}, demoEncoder, demoDecoder)
	grpcServer := segrpc.NewServer(svc)

	listener, err := net.Listen("tcp", cfg.GRPC.Addr)
	if err != nil {
		log.Fatalf("serve: failed to listen on %s: %v", cfg.GRPC.Addr, err)
	}

	shutdown := server.NewShutdownManager(server.DefaultShutdownConfig())
	shutdown.RegisterCloser("grpc-server", &grpcServerCloser{server: grpcServer})
	shutdown.RegisterCloser("metastore", meta)

	errCh := make(chan error, 1)
	go func() {
		log.Printf("serve: gRPC listening on %s", cfg.GRPC.Addr)
		if err := grpcServer.Serve(listener); err != nil {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	go func() {
		if err := shutdown.ListenForSignals(context.Background()); err != nil {
			log.Printf("serve: shutdown error: %v", err)
		}
	}()

	if err := <-errCh; err != nil {
		log.Printf("serve: gRPC server stopped: %v", err)
	}
}
