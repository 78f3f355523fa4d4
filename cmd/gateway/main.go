package main

import (
	"flag"
	"os"
	"time"

	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"

	"twsgo/internal/gatewaysim"
	"twsgo/internal/schema"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:4002", "listen address")
	tickInterval := flag.Duration("tick-interval", 250*time.Millisecond, "periodic tick feed interval (0=off)")
	tickBurst := flag.Int("tick-burst", 3, "immediate ticks per new subscription")
	fillDelay := flag.Duration("fill-delay", 0, "delay before transmitted orders fill")
	nextOrderID := flag.Int64("next-order-id", 1, "first valid order id announced to clients")
	flag.Parse()

	g, err := gatewaysim.Start(*addr, gatewaysim.Config{
		NextOrderID:  schema.OrderID(*nextOrderID),
		TickInterval: *tickInterval,
		TickBurst:    *tickBurst,
		FillDelay:    *fillDelay,
	})
	if err != nil {
		logs.Errorf("start gateway: %+v", err)
		os.Exit(1)
	}
	logs.Infof("simulated gateway listening on %s", g.Addr())

	<-sys.Shutdown()
	g.Close()
	logs.Info("gateway stopped")
}
