/*
 * MIT License
 *
 * Copyright (c) 2020 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

// Command parceld is a demo parcel port: it wires the tcp reference handler
// to a Port, drives background progress from a single 10ms ticker loop, and
// shuts down cleanly on SIGINT/SIGTERM.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/hpcparcel/transport/config"
	"github.com/hpcparcel/transport/handler"
	"github.com/hpcparcel/transport/handler/tcp"
	"github.com/hpcparcel/transport/logger"
	"github.com/hpcparcel/transport/port"
)

func main() {
	var (
		configFile = pflag.String("config", "", "path to a YAML/JSON/TOML config file (optional)")
		logLevel   = pflag.String("log-level", "info", "log level: trace, debug, info, warn, error")
	)
	pflag.Int("max-connections", 64, "global connection cache capacity")
	pflag.Int("max-connections-per-locality", 4, "per-locality connection cache capacity")
	pflag.Int("max-background-threads", 2, "background worker slots")
	pflag.Parse()

	log := logger.New("parceld", hclog.LevelFromString(*logLevel))

	v := viper.New()
	if err := v.BindPFlag("parcel.max_background_threads", pflag.Lookup("max-background-threads")); err != nil {
		log.Error("bind flag failed", nil, "err", err)
		os.Exit(1)
	}
	if err := v.BindPFlag("parcel.tcp.max_connections", pflag.Lookup("max-connections")); err != nil {
		log.Error("bind flag failed", nil, "err", err)
		os.Exit(1)
	}
	if err := v.BindPFlag("parcel.tcp.max_connections_per_locality", pflag.Lookup("max-connections-per-locality")); err != nil {
		log.Error("bind flag failed", nil, "err", err)
		os.Exit(1)
	}

	if *configFile != "" {
		v.SetConfigFile(*configFile)
		if err := v.ReadInConfig(); err != nil {
			log.Error("reading config file failed", nil, "err", err, "file", *configFile)
			os.Exit(1)
		}
	}

	loader := config.New(v, "tcp")
	cfg, err := loader.Load()
	if err != nil {
		log.Error("config validation failed", nil, "err", err)
		os.Exit(1)
	}

	h := tcp.New(log.Named("tcp"))
	tcpCfg := cfg.Handlers["tcp"]

	p := port.New(port.Config{
		Handler:                   h,
		MaxConnections:            tcpCfg.MaxConnections,
		MaxConnectionsPerLocality: tcpCfg.MaxConnectionsPerLocality,
		MaxBackgroundThreads:      cfg.MaxBackgroundThreads,
		Logger:                    log,
	})

	if err := p.Run(); err != nil {
		log.Error("port failed to start", nil, "err", err)
		os.Exit(1)
	}
	log.Info("parceld started", nil, "uptime_at", time.Now().Format(time.RFC3339))

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			log.Info("shutting down", nil)
			if err := p.Stop(true); err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(1)
			}
			return
		case <-ticker.C:
			p.BackgroundTick(handler.ModePending)
		}
	}
}
