// Command tcpsessc is the demo client, reproducing GameClient from
// _examples/original_source/src/main.cpp: it connects, sends "Hello" once
// on OnConnected, and logs whatever comes back.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/sangteak/tcpsess/internal/config"
	"github.com/sangteak/tcpsess/internal/logging"

	session "github.com/sangteak/tcpsess"
)

var cmd struct {
	ConfigPath string
	Message    string
}

var rootCmd = &cobra.Command{
	Use:   "tcpsessc",
	Short: "length-prefixed TCP demo client",
	RunE: func(_ *cobra.Command, _ []string) error {
		return run(cmd.ConfigPath, cmd.Message)
	},
}

func init() {
	rootCmd.Flags().StringVarP(&cmd.ConfigPath, "config", "c", "", "path to a YAML configuration file (optional, defaults used if absent)")
	rootCmd.Flags().StringVarP(&cmd.Message, "message", "m", "Hello", "message to send once connected")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Printf("ERROR: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, message string) error {
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

	controller := session.NewController(1)
	controller.AttachLogging(logging.NewAdapter(log))
	controller.AttachConfiguration(config.NewProvider(cfg))
	controller.AttachService(&echoClient{log: log, message: message, controller: controller})

	sid := controller.Connect()
	if sid == 0 {
		return fmt.Errorf("failed to start connect to %s:%d", cfg.Address.Host, cfg.Address.Port)
	}

	for !controller.IsState(sid, session.StateConnected) && !controller.IsState(sid, session.StateClosed) {
		time.Sleep(50 * time.Millisecond)
	}

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

// echoClient implements session.Service: sends message once on connect
// and logs whatever the server echoes back, mirroring GameClient.
type echoClient struct {
	log interface {
		Infof(string, ...any)
	}
	message    string
	controller *session.Controller
}

func (c *echoClient) OnConnected(sid session.SID) {
	c.log.Infof("OnConnected sid=%d", sid)
	if c.controller != nil {
		c.controller.Write(sid, []byte(c.message))
	}
}

func (c *echoClient) OnMessage(sid session.SID, data []byte) {
	c.log.Infof("OnMessage sid=%d message=%q", sid, data)
}

func (c *echoClient) OnError(sid session.SID, err error) {
	c.log.Infof("OnError sid=%d err=%v", sid, err)
}

func (c *echoClient) OnClose(sid session.SID, err error) {
	c.log.Infof("OnClose sid=%d err=%v", sid, err)
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
