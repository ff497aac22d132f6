// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Command weatherd serves a small weather API from a single-threaded,
// non-blocking event loop.
//
// Usage:
//
//	weatherd [flags]
//
// Try:
//
//	curl 'http://localhost:8080/weather?city=Stockholm'
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"

	weatherd "github.com/joeycumines/go-weatherd"
	"github.com/joeycumines/go-weatherd/internal/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	opts := NewOptions()
	fs := pflag.NewFlagSet("weatherd", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	opts.AddFlags(fs)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		return 2
	}
	if err := opts.Complete(); err != nil {
		_, _ = fmt.Fprintln(stderr, err)
		return 2
	}
	if err := opts.Validate(); err != nil {
		_, _ = fmt.Fprintln(stderr, err)
		return 2
	}

	logger, err := logging.New(stderr, opts.logFormat, opts.logLevel)
	if err != nil {
		_, _ = fmt.Fprintln(stderr, err)
		return 1
	}

	if err := serve(ctx, opts, logger, stdout); err != nil && !errors.Is(err, context.Canceled) {
		logger.Err().
			Err(err).
			Log("server failed")
		return 1
	}
	return 0
}

func serve(ctx context.Context, opts *Options, logger *weatherd.Logger, stdout io.Writer) (err error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics, err := weatherd.NewMetrics(reg)
	if err != nil {
		return err
	}

	rt, err := weatherd.NewRuntime(append(opts.runtimeOptions(),
		weatherd.WithLogger(logger),
		weatherd.WithMetrics(metrics),
	)...)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, rt.Close()) }()

	app, err := weatherd.NewWeatherServer(rt, opts.weatherOptions()...)
	if err != nil {
		return err
	}
	srv, err := weatherd.NewHTTPServer(rt, app, opts.httpOptions()...)
	if err != nil {
		return err
	}
	ln, err := weatherd.NewListener(rt, srv, opts.listenerOptions()...)
	if err != nil {
		return err
	}
	if err := ln.Listen(opts.Addr); err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, ln.Close())
		srv.Shutdown()
		app.Shutdown()
	}()

	if opts.MetricsAddr != "" {
		ms := &http.Server{
			Addr:              opts.MetricsAddr,
			Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := ms.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Err().
					Str("addr", opts.MetricsAddr).
					Err(err).
					Log("metrics server failed")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = ms.Shutdown(shutdownCtx)
		}()
	}

	_, _ = fmt.Fprintf(stdout, "weatherd listening on %s\n", ln.Addr())
	_, _ = fmt.Fprintf(stdout, "try: curl 'http://%s/weather?city=Stockholm'\n", ln.Addr())

	err = rt.Run(ctx)

	logger.Info().Log("shutting down")
	return err
}
