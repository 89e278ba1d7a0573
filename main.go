package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"io/ioutil"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/golang/glog"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mqy/wabiz/auth"
	"github.com/mqy/wabiz/bus"
	"github.com/mqy/wabiz/chatstore"
	"github.com/mqy/wabiz/engine"
	"github.com/mqy/wabiz/media"
	"github.com/mqy/wabiz/store"
	"github.com/mqy/wabiz/webhook"
	"github.com/mqy/wabiz/ws"
)

const (
	storeMySQL = "mysql"
	storeBolt  = "bolt"

	ingestSync  = "sync"
	ingestKafka = "kafka"

	webhookMaxBytes = 1 << 20
)

var (
	flagAddr    = flag.String("addr", "127.0.0.1:8000", "server address, ip:port")
	flagPidFile = flag.String("pid-file", "wabiz.pid", "pid file")

	flagStore    = flag.String("store", storeBolt, "chat store: mysql or bolt")
	flagMysqlDsn = flag.String("mysql-dsn", "root:@tcp(127.0.0.1:3306)/wabiz?parseTime=true&charset=utf8mb4&collation=utf8mb4_unicode_ci", "mysql server dsn")
	flagBoltPath = flag.String("bolt-path", "wabiz.db", "bbolt database file")

	flagChannel       = flag.String("channel", chatstore.Channel, "channel name stored with rooms and messages")
	flagPhoneNumberID = flag.String("phone-number-id", "", "accepted business phone number id, env WHATSAPP_PHONE_NUMBER_ID")
	flagVerifyToken   = flag.String("verify-token", "", "webhook verify token, env WHATSAPP_VERIFY_TOKEN")
	flagAppSecret     = flag.String("app-secret", "", "app secret to check X-Hub-Signature-256, env WHATSAPP_APP_SECRET")
	flagAccessToken   = flag.String("access-token", "", "graph API access token, env WHATSAPP_ACCESS_TOKEN")

	flagGraphURL     = flag.String("graph-url", media.DefaultGraphURL, "graph API base url")
	flagGraphVersion = flag.String("graph-version", media.DefaultGraphVersion, "graph API version")
	flagMediaDir     = flag.String("media-dir", ".", "root dir of downloaded media")
	flagMediaTimeout = flag.Duration("media-timeout", engine.DefaultMediaTimeout, "media download timeout")
	flagMediaRPS     = flag.Float64("media-rps", 10, "graph API requests per second, <= 0 for unlimited")

	flagIngest             = flag.String("ingest", ingestSync, "ingest mode: sync processes in the request, kafka queues envelopes")
	flagKafkaBrokers       = flag.String("kafka-brokers", "127.0.0.1:9092", "comma separated kafka brokers")
	flagKafkaEnvelopeTopic = flag.String("kafka-envelope-topic", "wabiz-envelopes", "kafka topic of queued webhook bodies")
	flagKafkaGroupID       = flag.String("kafka-group-id", "wabiz", "kafka consumer group of the envelope topic")
	flagKafkaEventsTopic   = flag.String("kafka-events-topic", "", "kafka topic to publish normalized events, empty to disable")

	flagAuthTokens     = flag.String("auth-tokens", "", "websocket subscribers, comma separated operator:token; empty trusts the x-uid cookie")
	flagDisableMetrics = flag.Bool("disable-metrics", false, "disable prometheus metrics")
)

func main() {
	// Secrets may come from a local .env file.
	_ = godotenv.Load(".env")
	flag.Parse()

	// NOTE: os.Exit() does not call defers.
	os.Exit(run())
}

func run() int {
	defer glog.Flush()

	applyEnv()
	if v := validateFlags(); v > 0 {
		return v
	}

	pid := os.Getpid()

	if err := savePid(*flagPidFile, pid); err != nil {
		return errorf("pid file: %v", err)
	}
	defer func() {
		_ = os.Remove(*flagPidFile)
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	chatStore, err := openStore(ctx)
	if err != nil {
		return errorf("store: %v", err)
	}
	defer chatStore.Close()

	blobStore, err := media.NewLocalStore(*flagMediaDir)
	if err != nil {
		return errorf("--media-dir: %v", err)
	}
	fetcher := media.NewGraphFetcher(media.GraphOptions{
		BaseURL:     *flagGraphURL,
		Version:     *flagGraphVersion,
		AccessToken: *flagAccessToken,
		RPS:         *flagMediaRPS,
		Store:       blobStore,
	})

	authClient, err := newAuthClient()
	if err != nil {
		return errorf("--auth-tokens: %v", err)
	}
	hub := ws.NewHub(authClient)

	kafkaBrokers := strings.Split(*flagKafkaBrokers, ",")

	broadcasters := engine.Fanout{hub}
	if *flagKafkaEventsTopic != "" {
		eventWriter := bus.NewWriter(kafkaBrokers, *flagKafkaEventsTopic)
		defer eventWriter.Close()
		broadcasters = append(broadcasters, bus.NewPublisher(eventWriter))
	}

	eng := engine.New(engine.Config{
		Channel:       *flagChannel,
		PhoneNumberID: *flagPhoneNumberID,
		MediaTimeout:  *flagMediaTimeout,
	}, chatStore, fetcher, broadcasters)

	stopNotifyChan := make(chan struct{}, 1)
	var queue webhook.Enqueuer
	if *flagIngest == ingestKafka {
		envelopeWriter := bus.NewWriter(kafkaBrokers, *flagKafkaEnvelopeTopic)
		defer envelopeWriter.Close()
		queue = bus.NewEnvelopeWriter(envelopeWriter, webhookMaxBytes)

		reader := bus.NewReader(kafkaBrokers, *flagKafkaEnvelopeTopic, *flagKafkaGroupID)
		go bus.NewConsumer(eng, reader, webhookMaxBytes).Run(ctx, stopNotifyChan)
	}

	mux := http.NewServeMux()
	if !*flagDisableMetrics {
		mux.Handle("/metrics", promhttp.HandlerFor(
			prometheus.DefaultGatherer,
			promhttp.HandlerOpts{},
		))
	}
	mux.Handle("/webhook", webhook.NewHandler(webhook.Config{
		VerifyToken:  *flagVerifyToken,
		AppSecret:    *flagAppSecret,
		MaxBodyBytes: webhookMaxBytes,
	}, eng, queue))
	mux.Handle("/ws", hub)

	server := &http.Server{
		Addr:              *flagAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		glog.Infof("http server listening on %s", *flagAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			glog.Errorf("http server error: %v", err)
		}
	}()

	glog.Infof("wabiz server is started, store: %s, ingest: %s", *flagStore, *flagIngest)
	glog.Infof("`CTRL+c` or `kill %d` to graceful stop", pid)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	sig := <-sigCh
	signal.Stop(sigCh)
	glog.Infof("received signal `%s` stopping", sig.String())

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		glog.Errorf("http server shutdown error: %v", err)
	}
	hub.Close()

	cancel()
	if *flagIngest == ingestKafka {
		<-stopNotifyChan
	}

	glog.Info("wabiz server exited")
	return 0
}

func openStore(ctx context.Context) (store.IChatStore, error) {
	switch *flagStore {
	case storeMySQL:
		db, err := sql.Open("mysql", *flagMysqlDsn)
		if err != nil {
			return nil, fmt.Errorf("sql.Open error, dsn: %s, err: %v", *flagMysqlDsn, err)
		}
		db.SetConnMaxLifetime(time.Minute * 3)
		db.SetMaxOpenConns(100)
		db.SetMaxIdleConns(10)

		s := store.NewMySQLStore(db)
		if err := s.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, err
		}
		return s, nil
	default:
		return store.NewBoltStore(*flagBoltPath)
	}
}

func newAuthClient() (auth.Client, error) {
	if *flagAuthTokens == "" {
		glog.Warning("--auth-tokens is empty, websocket subscribers are trusted by x-uid cookie")
		return &auth.MockClient{}, nil
	}
	return auth.NewTokenClient(*flagAuthTokens)
}

// applyEnv fills secrets not given by flags from the environment.
func applyEnv() {
	envs := []struct {
		flag *string
		env  string
	}{
		{flagAccessToken, "WHATSAPP_ACCESS_TOKEN"},
		{flagAppSecret, "WHATSAPP_APP_SECRET"},
		{flagVerifyToken, "WHATSAPP_VERIFY_TOKEN"},
		{flagPhoneNumberID, "WHATSAPP_PHONE_NUMBER_ID"},
	}
	for _, e := range envs {
		if *e.flag == "" {
			*e.flag = os.Getenv(e.env)
		}
	}
}

func validateFlags() int {
	if *flagAddr == "" {
		return errorf("--addr is required")
	}
	if err := validateAddr(*flagAddr); err != nil {
		return errorf("--addr: %v", err)
	}
	if *flagPidFile == "" {
		return errorf("--pid-file is required")
	}

	switch *flagStore {
	case storeMySQL:
		if *flagMysqlDsn == "" {
			return errorf("--mysql-dsn is required.")
		}
	case storeBolt:
		if *flagBoltPath == "" {
			return errorf("--bolt-path is required.")
		}
	default:
		return errorf("invalid --store `%s`, expect %s or %s", *flagStore, storeMySQL, storeBolt)
	}

	if *flagChannel == "" {
		return errorf("--channel is required")
	}
	if *flagPhoneNumberID == "" {
		return errorf("--phone-number-id is required")
	}
	if *flagVerifyToken == "" {
		return errorf("--verify-token is required")
	}
	if *flagAccessToken == "" {
		glog.Warning("--access-token is empty, media downloads will fail")
	}
	if *flagAppSecret == "" {
		glog.Warning("--app-secret is empty, webhook signatures are not checked")
	}

	if *flagMediaDir == "" {
		return errorf("--media-dir is required")
	}
	if *flagMediaTimeout <= 0 {
		return errorf("--media-timeout must be positive")
	}

	switch *flagIngest {
	case ingestSync:
	case ingestKafka:
		if *flagKafkaEnvelopeTopic == "" || *flagKafkaGroupID == "" {
			return errorf("--kafka-envelope-topic and --kafka-group-id are required by --ingest=kafka")
		}
	default:
		return errorf("invalid --ingest `%s`, expect %s or %s", *flagIngest, ingestSync, ingestKafka)
	}

	if (*flagIngest == ingestKafka || *flagKafkaEventsTopic != "") && len(*flagKafkaBrokers) == 0 {
		return errorf("--kafka-brokers is required.")
	}

	return 0
}

func validateAddr(s string) error {
	ips, _, err := net.SplitHostPort(s)
	if err != nil {
		return fmt.Errorf("error split host port from `%s`: %v", s, err)
	}
	ip := net.ParseIP(ips)
	if ip == nil {
		return fmt.Errorf("error parse IP from host `%s`", ips)
	}
	return nil
}

func errorf(fmt string, args ...interface{}) int {
	glog.Errorf(fmt, args...)
	return 1
}

func savePid(name string, pid int) error {
	if _, err := os.Stat(name); err == nil {
		// Ok, see, if we have a stale lockfile here
		content, err := ioutil.ReadFile(name)
		if err != nil {
			return err
		}
		if len(content) > 0 {
			oldPid, err := strconv.Atoi(string(content))
			if err != nil {
				return err
			}

			proc, err := os.FindProcess(oldPid)
			if err != nil {
				return err
			}
			defer proc.Release()

			if err := proc.Signal(syscall.Signal(0)); err == nil {
				return fmt.Errorf("pid file: exists with pid: %d, the process is running", oldPid)
			} else {
				glog.Infof("pid file exists with pid: %d, but is not running", oldPid)
			}
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("pid file: stat error: %v", err)
	}

	if err := ioutil.WriteFile(name, []byte(strconv.Itoa(pid)), 0600); err != nil {
		return fmt.Errorf("pid file: write error: %v", err)
	}
	glog.Infof("pid file: write pid done")
	return nil
}
