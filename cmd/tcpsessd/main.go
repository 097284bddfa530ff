// Command tcpsessd is the demo echo server, reproducing GameServer from
// _examples/original_source/src/main.cpp: it accepts connections and
// echoes every received message back to its sender.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/sangteak/tcpsess/internal/config"
	"github.com/sangteak/tcpsess/internal/logging"

	session "github.com/sangteak/tcpsess"
)

var cmd struct {
	ConfigPath string
	Workers    int
}

var rootCmd = &cobra.Command{
	Use:   "tcpsessd",
	Short: "length-prefixed TCP echo server",
	RunE: func(_ *cobra.Command, _ []string) error {
		return run(cmd.ConfigPath, cmd.Workers)
	},
}

func init() {
	rootCmd.Flags().StringVarP(&cmd.ConfigPath, "config", "c", "", "path to a YAML configuration file (optional, defaults used if absent)")
	rootCmd.Flags().IntVarP(&cmd.Workers, "workers", "w", 2, "number of I/O worker goroutines")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Printf("ERROR: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string, workers int) error {
	log, _, err := logging.Init(&logging.Config{Level: zapcore.DebugLevel})
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer log.Sync()

	cfg := config.DefaultConfig()
	if configPath != "" {
		cfg, err = config.LoadConfig(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
	}

	controller := session.NewController(workers)
	controller.AttachLogging(logging.NewAdapter(log))
	controller.AttachConfiguration(config.NewProvider(cfg))
	controller.AttachService(&echoService{log: log, controller: controller})

	if !controller.Accept() {
		return fmt.Errorf("failed to start accept loop on %s:%d", cfg.Address.Host, cfg.Address.Port)
	}
	log.Infof("listening on %s:%d", cfg.Address.Host, cfg.Address.Port)

	ctx := context.Background()
	wg, ctx := errgroup.WithContext(ctx)
	wg.Go(func() error {
		<-ctx.Done()
		return nil
	})
	wg.Go(func() error {
		err := waitInterrupted(ctx)
		log.Infof("caught signal: %v", err)
		controller.Stop()
		return err
	})

	return wg.Wait()
}

// echoService implements session.Service: every message received is
// echoed back to its sender with a freshly built WriteBuffer, exactly as
// GameServer::OnMessage does in src/main.cpp.
type echoService struct {
	log interface {
		Infof(string, ...any)
	}
	controller *session.Controller
}

func (s *echoService) OnConnected(sid session.SID) {
	s.log.Infof("OnConnected sid=%d", sid)
}

func (s *echoService) OnMessage(sid session.SID, data []byte) {
	s.log.Infof("OnMessage sid=%d message=%q", sid, data)

	wb := session.NewWriteBuffer()
	wb.Put(data)
	wb.Commit()
	s.controller.WriteBuffer(sid, wb)
}

func (s *echoService) OnError(sid session.SID, err error) {
	s.log.Infof("OnError sid=%d err=%v", sid, err)
}

func (s *echoService) OnClose(sid session.SID, err error) {
	s.log.Infof("OnClose sid=%d err=%v", sid, err)
}

func waitInterrupted(ctx context.Context) error {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	select {
	case v := <-ch:
		return fmt.Errorf("signal: %v", v)
	case <-ctx.Done():
		return ctx.Err()
	}
}
