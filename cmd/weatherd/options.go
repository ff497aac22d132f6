// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package main

import (
	"fmt"
	"time"

	"github.com/joeycumines/logiface"
	"github.com/spf13/pflag"

	weatherd "github.com/joeycumines/go-weatherd"
	"github.com/joeycumines/go-weatherd/internal/logging"
)

const (
	DefaultAddr      = ":8080"
	DefaultLogLevel  = "info"
	DefaultLogFormat = string(logging.FormatJSON)
)

// Options contains the command-line configuration for weatherd.
type Options struct {
	//
	// Server.
	//
	Addr            string        // TCP address to listen on.
	PollTimeout     time.Duration // Upper bound on a single blocking wait.
	HTTPPoolSize    int           // Number of transport connection slots.
	WeatherPoolSize int           // Number of application slots.
	IdleTimeout     time.Duration // Request read timeout, 0 to disable.
	AcceptRate      int           // Accepted connections per second per peer, 0 to disable.
	Reject503       bool          // Write a 503 before closing connections the pool has no room for.
	//
	// Diagnostics.
	//
	LogLevel    string // Log level name.
	LogFormat   string // Log backend.
	MetricsAddr string // Address for the Prometheus endpoint, empty to disable.

	// set by Complete
	logLevel  logiface.Level
	logFormat logging.Format
}

// NewOptions returns a new Options struct initialized with default values.
func NewOptions() *Options {
	return &Options{
		Addr:            DefaultAddr,
		PollTimeout:     weatherd.DefaultPollTimeout,
		HTTPPoolSize:    weatherd.DefaultHTTPPoolSize,
		WeatherPoolSize: weatherd.DefaultWeatherPoolSize,
		LogLevel:        DefaultLogLevel,
		LogFormat:       DefaultLogFormat,
	}
}

// AddFlags binds the Options fields to command-line flags on the given FlagSet.
func (opts *Options) AddFlags(fs *pflag.FlagSet) {
	if fs == nil {
		fs = pflag.CommandLine
	}

	fs.StringVar(&opts.Addr, "addr", opts.Addr,
		"The host:port to listen on. An empty host listens on all IPv4 interfaces.")
	fs.DurationVar(&opts.PollTimeout, "poll-timeout", opts.PollTimeout,
		"The maximum time a single wait for readiness may block.")
	fs.IntVar(&opts.HTTPPoolSize, "http-pool-size", opts.HTTPPoolSize,
		fmt.Sprintf("The number of concurrent connections, at most %d.", weatherd.MaxFDs-2))
	fs.IntVar(&opts.WeatherPoolSize, "weather-pool-size", opts.WeatherPoolSize,
		"The number of concurrent weather requests.")
	fs.DurationVar(&opts.IdleTimeout, "idle-timeout", opts.IdleTimeout,
		"Answer 408 to connections that have not sent a complete request within this time. Zero disables it.")
	fs.IntVar(&opts.AcceptRate, "accept-rate", opts.AcceptRate,
		"The maximum connections accepted per second from a single peer. Zero disables it.")
	fs.BoolVar(&opts.Reject503, "reject-503", opts.Reject503,
		"Attempt to send a 503 to connections refused because every slot is in use, instead of closing them silently.")
	fs.StringVar(&opts.LogLevel, "log-level", opts.LogLevel,
		"The log level, one of trace, debug, info, notice, warning, error, off, or 0-3.")
	fs.StringVar(&opts.LogFormat, "log-format", opts.LogFormat,
		"The log format, one of json, console, text.")
	fs.StringVar(&opts.MetricsAddr, "metrics-addr", opts.MetricsAddr,
		"The host:port to serve Prometheus metrics on. Empty disables it.")
}

// Complete performs post-processing of parsed command-line arguments.
func (opts *Options) Complete() error {
	level, err := logging.ParseLevel(opts.LogLevel)
	if err != nil {
		return fmt.Errorf("invalid value %q for flag %q: %w", opts.LogLevel, "log-level", err)
	}
	format, err := logging.ParseFormat(opts.LogFormat)
	if err != nil {
		return fmt.Errorf("invalid value %q for flag %q: %w", opts.LogFormat, "log-format", err)
	}
	opts.logLevel = level
	opts.logFormat = format
	return nil
}

// Validate checks the Options for invalid or conflicting values.
func (opts *Options) Validate() error {
	if opts.Addr == "" {
		return fmt.Errorf("invalid value %q for flag %q: must not be empty", opts.Addr, "addr")
	}
	if opts.PollTimeout < 0 {
		return fmt.Errorf("invalid value %s for flag %q: must be >= 0", opts.PollTimeout, "poll-timeout")
	}
	if opts.HTTPPoolSize < 1 || opts.HTTPPoolSize > weatherd.MaxFDs-2 {
		return fmt.Errorf("invalid value %d for flag %q: must be between 1 and %d", opts.HTTPPoolSize, "http-pool-size", weatherd.MaxFDs-2)
	}
	if opts.WeatherPoolSize < 1 {
		return fmt.Errorf("invalid value %d for flag %q: must be >= 1", opts.WeatherPoolSize, "weather-pool-size")
	}
	if opts.IdleTimeout < 0 {
		return fmt.Errorf("invalid value %s for flag %q: must be >= 0", opts.IdleTimeout, "idle-timeout")
	}
	if opts.AcceptRate < 0 {
		return fmt.Errorf("invalid value %d for flag %q: must be >= 0", opts.AcceptRate, "accept-rate")
	}
	if opts.MetricsAddr != "" && opts.MetricsAddr == opts.Addr {
		return fmt.Errorf("address conflict: addr and metrics-addr (%s) must be different", opts.Addr)
	}
	return nil
}

// runtimeOptions converts the options for weatherd.NewRuntime.
func (opts *Options) runtimeOptions() []weatherd.RuntimeOption {
	return []weatherd.RuntimeOption{
		weatherd.WithPollTimeout(opts.PollTimeout),
	}
}

func (opts *Options) listenerOptions() []weatherd.ListenerOption {
	var r []weatherd.ListenerOption
	if opts.AcceptRate > 0 {
		r = append(r, weatherd.WithAcceptRateLimit(map[time.Duration]int{time.Second: opts.AcceptRate}))
	}
	if opts.Reject503 {
		r = append(r, weatherd.WithRejectResponse(weatherd.UnavailableResponse()))
	}
	return r
}

func (opts *Options) httpOptions() []weatherd.HTTPOption {
	return []weatherd.HTTPOption{
		weatherd.WithHTTPPoolSize(opts.HTTPPoolSize),
		weatherd.WithIdleTimeout(opts.IdleTimeout),
	}
}

func (opts *Options) weatherOptions() []weatherd.WeatherOption {
	return []weatherd.WeatherOption{
		weatherd.WithWeatherPoolSize(opts.WeatherPoolSize),
	}
}
