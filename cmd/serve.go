package cmd

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"time"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	reuseport "github.com/kavu/go_reuseport"
	"github.com/spf13/cobra"
	"github.com/tidwall/sjson"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/luma/maestro/heos"
	"github.com/luma/maestro/protocol"
)

var (
	// The host to listen for http requests on
	listenHost string

	// The port to listen for http requests on
	httpPort string
)

func init() {
	flags := ServeCmd.PersistentFlags()

	flags.StringVar(&listenHost, "listen", "0.0.0.0", "The host to listen for HTTP requests on")
	flags.StringVar(&httpPort, "http-port", "8090", "The port to listen for HTTP requests on")
}

var ServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Expose a device over an HTTP bridge",
	Long: `Expose a device over an HTTP bridge

Usage
	maestro serve --host 10.0.1.12

`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, signalStop := signal.NotifyContext(context.Background(), os.Interrupt, os.Kill)
		defer signalStop()

		c, log, err := makeClient(ctx)
		if err != nil {
			return err
		}

		if err := c.Connect(ctx); err != nil {
			return err
		}

		router := setupRouter(debug, log)

		// Ping test
		router.GET("/ping", func(gc *gin.Context) {
			gc.String(http.StatusOK, "pong")
		})

		router.GET("/players", func(gc *gin.Context) {
			players, err := c.GetPlayers(gc.Request.Context())
			if err != nil {
				gc.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
				return
			}

			gc.JSON(http.StatusOK, players)
		})

		router.POST("/command/*name", func(gc *gin.Context) {
			command := protocol.Command(gc.Param("name")[1:])

			params := make(map[string]string)
			for key, values := range gc.Request.URL.Query() {
				params[key] = values[len(values)-1]
			}

			env, err := c.Submit(gc.Request.Context(), command, params)
			if err != nil {
				gc.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
				return
			}

			gc.Data(http.StatusOK, "application/json", replyDocument(env, log))
		})

		router.GET("/events", func(gc *gin.Context) {
			lines := make(chan string, 64)

			unsubscribe := c.On(heos.AnyEvent, func(event string, message map[string]string) {
				line, jerr := eventLine(event, message)
				if jerr != nil {
					log.Warn("Failed to encode event", zap.Error(jerr))
					return
				}

				select {
				case lines <- line:
				default:
					// A stalled consumer drops events rather than
					// blocking the hub.
				}
			})
			defer unsubscribe()

			gc.Stream(func(w io.Writer) bool {
				select {
				case line := <-lines:
					_, werr := io.WriteString(w, line+"\n")
					return werr == nil

				case <-gc.Request.Context().Done():
					return false
				}
			})
		})

		ln, err := reuseport.Listen("tcp", net.JoinHostPort(listenHost, httpPort))
		if err != nil {
			return err
		}

		s := &http.Server{Handler: router}

		// Serve in a goroutine so it won't block the graceful shutdown
		// handling below
		go func() {
			if err := s.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("Http server errored", zap.Error(err))
			}
		}()

		log.Info("Bridge listening",
			zap.String("listen", listenHost),
			zap.String("httpPort", httpPort))

		// Listen for the interrupt signal.
		<-ctx.Done()

		signalStop()
		log.Info("Shutting down gracefully, press Ctrl+C again to force")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.SetKeepAlivesEnabled(false)

		var closeErr error
		if err := s.Shutdown(shutdownCtx); err != nil {
			closeErr = multierr.Append(closeErr, err)
		}
		if err := c.Close(); err != nil {
			closeErr = multierr.Append(closeErr, err)
		}

		return closeErr
	},
}

// replyDocument composes the HTTP response body for a routed device reply.
func replyDocument(env *protocol.Envelope, log *zap.Logger) []byte {
	doc := []byte(`{}`)
	doc, _ = sjson.SetBytes(doc, "command", env.Command)
	doc, _ = sjson.SetBytes(doc, "result", env.Result)

	for key, value := range env.Message {
		var err error
		if doc, err = sjson.SetBytes(doc, "message."+key, value); err != nil {
			log.Warn("Failed to encode reply message", zap.Error(err))
		}
	}

	if env.Payload != nil {
		doc, _ = sjson.SetRawBytes(doc, "payload", env.Payload)
	}

	return doc
}

func setupRouter(debugHTTP bool, log *zap.Logger) *gin.Engine {
	gin.DisableConsoleColor()
	if !debugHTTP {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	// Add a ginzap middleware, which:
	//   - Logs all requests, like a combined access and error log.
	//   - Logs to stdout.
	//   - RFC3339 with UTC time format.
	r.Use(ginzap.Ginzap(log, time.RFC3339, true))

	// Logs all panic to error log
	//   - stack means whether output the stack info.
	r.Use(ginzap.RecoveryWithZap(log, true))

	return r
}
