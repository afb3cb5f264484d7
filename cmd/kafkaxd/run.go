package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/shawntao1011/kafkax/kafkax"
)

func newRunCmd(v *viper.Viper, loggerPtr **zap.Logger, instanceID string) *cobra.Command {
	var bindings []string
	var decodeThreads int
	var drainBatch int

	cmd := &cobra.Command{
		Use:   "run [topics...]",
		Short: "Subscribe and drain decoded events until interrupted",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, topics []string) error {
			logger := (*loggerPtr).With(zap.String("instance_id", instanceID))
			defer func() { _ = logger.Sync() }()

			cfg := kafkax.DefaultConfig()
			if decodeThreads > 0 {
				cfg.DecodeThreads = decodeThreads
			}

			kafkaCfg := kafkax.DefaultKafkaConfig()
			kafkaCfg.BootstrapServers = v.GetString("bootstrap.servers")
			kafkaCfg.GroupID = v.GetString("group.id")

			core, err := kafkax.New(cfg, kafkaCfg, kafkax.WithLogger(logger))
			if err != nil {
				return fmt.Errorf("kafkaxd: build core: %w", err)
			}

			for _, b := range bindings {
				topic, soPath, symbol, err := parseBinding(b)
				if err != nil {
					return err
				}
				if err := core.BindTopic(topic, soPath, symbol); err != nil {
					return fmt.Errorf("kafkaxd: bind %s: %w", topic, err)
				}
			}

			if err := core.Subscribe(topics); err != nil {
				return fmt.Errorf("kafkaxd: subscribe: %w", err)
			}
			defer func() {
				if err := core.Stop(); err != nil {
					logger.Warn("kafkaxd: stop reported errors", zap.Error(err))
				}
			}()

			sigC := make(chan os.Signal, 1)
			signal.Notify(sigC, os.Interrupt, syscall.SIGTERM)

			fd := core.NotifyFD()
			pollFds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}

			for {
				select {
				case <-sigC:
					logger.Info("kafkaxd: shutting down")
					return nil
				default:
				}

				n, err := unix.Poll(pollFds, 250)
				if err != nil && err != unix.EINTR {
					return fmt.Errorf("kafkaxd: poll notify fd: %w", err)
				}
				if n <= 0 {
					continue
				}

				// drain the eventfd counter itself before draining events,
				// per the host protocol: read(2) on an eventfd clears it to
				// 0 and is what makes the descriptor non-readable again
				// until the next fire.
				var counter [8]byte
				if _, err := unix.Read(fd, counter[:]); err != nil && err != unix.EAGAIN {
					return fmt.Errorf("kafkaxd: read notify fd: %w", err)
				}

				events := core.Drain(drainBatch)
				for _, ev := range events {
					if ev.Kind == kafkax.KindError {
						logger.Warn("kafkaxd: decode error",
							zap.String("topic", ev.Topic),
							zap.String("error", ev.ErrMsgString()))
						continue
					}
					logger.Info("kafkaxd: event",
						zap.String("topic", ev.Topic),
						zap.String("decoder", ev.Decoder),
						zap.Int("bytes", len(ev.Bytes)))
				}
			}
		},
	}

	cmd.Flags().StringArrayVar(&bindings, "bind", nil, "topic=so_path:symbol decoder binding, repeatable")
	cmd.Flags().IntVar(&decodeThreads, "decode-threads", 0, "override DefaultConfig().DecodeThreads")
	cmd.Flags().IntVar(&drainBatch, "drain-batch", 256, "max events drained per notify wakeup")
	return cmd
}

func parseBinding(spec string) (topic, soPath, symbol string, err error) {
	parts := strings.SplitN(spec, "=", 2)
	if len(parts) != 2 {
		return "", "", "", fmt.Errorf("kafkaxd: invalid --bind %q, want topic=so_path:symbol", spec)
	}
	rest := strings.SplitN(parts[1], ":", 2)
	if len(rest) != 2 {
		return "", "", "", fmt.Errorf("kafkaxd: invalid --bind %q, want topic=so_path:symbol", spec)
	}
	return parts[0], rest[0], rest[1], nil
}
