// stlink: Host driver and tooling for USB in-circuit debug probes
// Copyright (C) 2026  Guillermo Perry
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/gousb"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"stlink/internal/config"
	"stlink/internal/probe"
)

// server wraps a probe session behind a mutex: gin's default router handles
// requests on a worker goroutine per request, and only one in-flight USB
// transfer is safe against this probe at a time.
type server struct {
	mu   sync.Mutex
	sess *probe.Session
}

func (s *server) status(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	version := s.sess.Version()
	stats := s.sess.Stats()

	cpuPct, _ := cpu.Percent(0, false)
	vm, _ := mem.VirtualMemory()

	c.JSON(http.StatusOK, gin.H{
		"version": gin.H{
			"generation": version.Gen,
			"jtag_rev":   version.JTAG,
			"swim_rev":   version.SWIM,
			"api_level":  version.APILevel,
		},
		"stats": gin.H{
			"commands_sent":    stats.CommandsSent,
			"bytes_out":        stats.BytesOut,
			"bytes_in":         stats.BytesIn,
			"transport_errors": stats.TransportErrors,
			"retries":          stats.Retries,
		},
		"host": gin.H{
			"cpu_percent":        firstOrZero(cpuPct),
			"mem_used_percent":   vm.UsedPercent,
			"mem_available_bytes": vm.Available,
		},
	})
}

func firstOrZero(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	return v[0]
}

func (s *server) reset(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	if err := s.sess.ResetSys(ctx); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"reset": "ok"})
}

func main() {
	addr := flag.String("addr", ":8787", "listen address for the status server")
	flag.Parse()

	cfg, err := config.LoadProbeConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	opts := probe.DefaultOptions()
	if cfg.TimeoutMS > 0 {
		opts.Timeout = time.Duration(cfg.TimeoutMS) * time.Millisecond
	}
	if cfg.VID != 0 {
		opts.VID = gousb.ID(cfg.VID)
	}
	if cfg.PID != 0 {
		opts.PID = gousb.ID(cfg.PID)
	}
	opts.ConnectUnderReset = cfg.ConnectUnderReset
	if cfg.Mode == "jtag" {
		opts.Mode = probe.DebugSubModeJTAG
	} else {
		opts.Mode = probe.DebugSubModeSWD
	}

	ctx, cancel := context.WithTimeout(context.Background(), opts.Timeout)
	defer cancel()

	sess, err := probe.Open(ctx, opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open probe: %v\n", err)
		os.Exit(1)
	}
	defer sess.Close()

	srv := &server{sess: sess}

	r := gin.Default()
	r.GET("/status", srv.status)
	r.POST("/reset", srv.reset)

	if err := r.Run(*addr); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}
