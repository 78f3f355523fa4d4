package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	pyroscope "github.com/grafana/pyroscope-go"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"

	"twsgo"
	"twsgo/internal/config"
	"twsgo/internal/conn"
	"twsgo/internal/schema"
	"twsgo/internal/store"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:          "trader",
		Short:        "Trading gateway client",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "config file path")
	root.AddCommand(watchCmd(), buyCmd(), timeCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch SYMBOL [SYMBOL...]",
		Short: "Stream quotes for one or more symbols",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, cleanup, err := buildClient()
			if err != nil {
				return err
			}
			defer cleanup()

			ctx := cmd.Context()
			ids := make([]schema.RequestID, 0, len(args))
			for _, symbol := range args {
				id, err := client.Subscribe(ctx, schema.Stock(symbol), 0)
				if err != nil {
					return err
				}
				ids = append(ids, id)
				logs.Infof("subscribed %s as %d", symbol, id)
			}

			ticker := time.NewTicker(time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-sys.Shutdown():
					return nil
				case <-ticker.C:
					for _, id := range ids {
						quotes, err := client.PopQuotes(id)
						if err != nil {
							continue
						}
						for _, q := range quotes {
							fmt.Printf("%s bid %s ask %s last %s\n",
								q.Symbol, q.BidPrice, q.AskPrice, q.LastPrice)
						}
					}
				}
			}
		},
	}
}

func buyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "buy SYMBOL QTY PRICE",
		Short: "Place a limit buy and wait for the terminal state",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			qty, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("bad quantity %q: %w", args[1], err)
			}
			price, err := decimal.NewFromString(args[2])
			if err != nil {
				return fmt.Errorf("bad price %q: %w", args[2], err)
			}

			client, cleanup, err := buildClient()
			if err != nil {
				return err
			}
			defer cleanup()

			id, err := client.PlaceOrder(schema.Order{
				Contract:   schema.Stock(args[0]),
				Action:     schema.ActionBuy,
				Type:       schema.OrderTypeLimit,
				Quantity:   decimal.NewFromInt(qty),
				LimitPrice: price,
				TIF:        schema.TIFDay,
			}, false)
			if err != nil {
				return err
			}
			logs.Infof("order %d placed", id)

			status, err := client.AwaitOrder(cmd.Context(), id)
			if err != nil {
				return err
			}
			fmt.Printf("order %d %s filled=%s avg=%s\n",
				id, status.Status, status.Filled, status.AvgFillPrice)
			return nil
		},
	}
}

func timeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "time",
		Short: "Print the gateway's clock",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, cleanup, err := buildClient()
			if err != nil {
				return err
			}
			defer cleanup()

			ts, err := client.ReqCurrentTime(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Println(ts.Format(time.RFC3339))
			return nil
		},
	}
}

// buildClient loads config, wires the optional activity store and
// profiler, connects and returns a teardown func.
func buildClient() (*twsgo.Client, func(), error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}

	var profiler *pyroscope.Profiler
	if cfg.Profiling.Enabled {
		profiler, err = pyroscope.Start(pyroscope.Config{
			ApplicationName: "twsgo/trader",
			ServerAddress:   cfg.Profiling.ServerAddress,
			ProfileTypes: []pyroscope.ProfileType{
				pyroscope.ProfileCPU,
				pyroscope.ProfileAllocObjects,
				pyroscope.ProfileAllocSpace,
				pyroscope.ProfileInuseObjects,
				pyroscope.ProfileInuseSpace,
			},
		})
		if err != nil {
			return nil, nil, fmt.Errorf("pyroscope start: %w", err)
		}
	}

	var activity *store.Store
	if cfg.Store.Enabled {
		activity, err = store.Open(store.Config{
			Host:     cfg.Store.Host,
			Port:     cfg.Store.Port,
			User:     cfg.Store.User,
			Password: cfg.Store.Password,
			Database: cfg.Store.Database,
			SSLMode:  cfg.Store.SSLMode,
		})
		if err != nil {
			return nil, nil, err
		}
	}

	client, err := twsgo.New(twsgo.Config{
		Host:                 cfg.Gateway.Host,
		Port:                 cfg.Gateway.Port,
		ClientID:             schema.ClientID(cfg.Gateway.ClientID),
		ConnectTimeout:       cfg.Session.ConnectTimeout,
		RequestTimeout:       cfg.Session.RequestTimeout,
		HeartbeatEvery:       cfg.Session.HeartbeatEvery,
		Backoff:              conn.DefaultBackoff(),
		MaxReconnectAttempts: cfg.Session.MaxReconnectAttempts,
		RateLimit:            cfg.Session.RateLimit,
		QuoteBufferCapacity:  cfg.Stream.BufferCapacity,
		ReconnectEvery:       cfg.Stream.ReconnectEvery,
		Store:                activity,
	})
	if err != nil {
		activity.Close()
		return nil, nil, err
	}
	if err := client.Connect(context.Background()); err != nil {
		activity.Close()
		return nil, nil, err
	}

	cleanup := func() {
		client.Disconnect()
		activity.Close()
		if profiler != nil {
			profiler.Stop()
		}
	}
	return client, cleanup, nil
}
