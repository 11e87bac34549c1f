package cmd

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/luma/hoxconform/internal/env"
	"github.com/luma/hoxconform/server"
	"github.com/luma/hoxconform/storage"
	"github.com/luma/hoxconform/transport"
)

var (
	// The host to listen on
	host string

	// The port to listen for http requests on
	httpPort int

	// The port to listen for tcp clients on
	port int

	// Log every request and reply
	trace bool

	announce bool
)

func init() {
	flags := ServeCmd.PersistentFlags()

	flags.IntVarP(&port, "port", "p", 0, "The port to listen client connections on, overrides HOX_PORT")
	flags.IntVar(&httpPort, "http-port", 0, "The port to listen to HTTP requests on, overrides HOX_HTTP_PORT")
	flags.StringVarP(&host, "host", "a", "", "The host to listen on, overrides HOX_HOST")
	flags.BoolVar(&trace, "trace", false, "Log every request and reply")
	flags.BoolVar(&announce, "announce-tables", false, "Follow NEW replies with an I_TABLE event, overrides HOX_ANNOUNCE_TABLES")
}

var ServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start up the reference HOX server",
	Long: `Start up the reference HOX server

An in-memory server that speaks the HOX wire protocol, for running the
conformance scenarios without a real deployment. Tables can be inspected
over HTTP at /tables.

Usage
	hoxconform serve --host 0.0.0.0 --port 8000

`,
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		ctx, signalStop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer signalStop()

		conf, err := env.LoadConfig(ctx)
		if err != nil {
			return err
		}

		applyServeFlags(conf)

		log, err := env.MakeLogger(conf.LogLevel)
		if err != nil {
			return err
		}
		defer log.Sync()

		fileLimit, err := setFileLimit()
		if err != nil {
			return err
		}

		log.Info("Set file limit", zap.Uint64("fileLimit", fileLimit))

		store := storage.NewInmemoryStore()
		defer store.Close()

		lobby := server.NewLobby(server.Options{
			Store:             store,
			AnnounceNewTables: conf.AnnounceTables,
			Log:               log.Named("lobby"),
		})

		router := setupRouter(conf.DebugHTTP, log)

		// Ping test
		router.GET("/ping", func(c *gin.Context) {
			c.String(http.StatusOK, "pong")
		})

		router.GET("/tables", func(c *gin.Context) {
			values, err := store.Backup()
			if err != nil {
				c.AbortWithError(http.StatusInternalServerError, err)
				return
			}

			c.Data(http.StatusOK, "application/json", values)
		})

		router.GET("/players", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"players": lobby.Players()})
		})

		s := &http.Server{
			Addr:    net.JoinHostPort(conf.Host, strconv.Itoa(conf.HTTPPort)),
			Handler: router,
		}

		// Initializing the server in a goroutine so that
		// it won't block the graceful shutdown handling below
		go func() {
			if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("Http server errored", zap.Error(err))
			}
		}()

		tcp := transport.NewTCP(transport.Options{
			Host:      conf.Host,
			Port:      conf.Port,
			Reuseport: true,
			Trace:     trace,
			Handler:   lobby,
			Log:       log.Named("transport"),
		})

		if err := tcp.Start(ctx); err != nil {
			return err
		}

		log.Info("Listening",
			zap.Any("config", conf),
			zap.String("host", conf.Host),
			zap.Stringer("addr", tcp.Addr()),
			zap.Int("httpPort", conf.HTTPPort))

		// Listen for the interrupt signal.
		<-ctx.Done()

		// Restore default behavior on the interrupt signal and notify user of shutdown.
		signalStop()
		log.Info("Shutting down gracefully, press Ctrl+C again to force")

		// The context is used to inform the server it has 5 seconds to finish
		// the request it is currently handling
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.SetKeepAlivesEnabled(false)

		if err := s.Shutdown(ctx); err != nil {
			log.Error("Http server forced to shutdown", zap.Error(err))
		}

		if err := tcp.Close(); err != nil {
			log.Error("TCP server forced to shutdown", zap.Error(err))
		}

		log.Info("Exiting")
		return nil
	},
}

func applyServeFlags(conf *env.Config) {
	if host != "" {
		conf.Host = host
	}

	if port != 0 {
		conf.Port = port
	}

	if httpPort != 0 {
		conf.HTTPPort = httpPort
	}

	if announce {
		conf.AnnounceTables = true
	}
}

func setupRouter(debugHTTP bool, log *zap.Logger) *gin.Engine {
	gin.DisableConsoleColor()
	if !debugHTTP {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	// Logs all requests, like a combined access and error log, in UTC
	r.Use(ginzap.GinzapWithConfig(log, &ginzap.Config{
		TimeFormat: time.RFC3339,
		UTC:        true,
		SkipPaths:  []string{"/ping"},
	}))

	// Logs all panic to error log
	//   - stack means whether output the stack info.
	r.Use(ginzap.RecoveryWithZap(log, true))

	return r
}

func setFileLimit() (uint64, error) {
	var rLimit syscall.Rlimit

	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &rLimit); err != nil {
		return 0, err
	}

	rLimit.Cur = rLimit.Max
	if err := syscall.Setrlimit(syscall.RLIMIT_NOFILE, &rLimit); err != nil {
		return 0, err
	}

	return rLimit.Cur, nil
}
