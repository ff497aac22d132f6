// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package weatherd

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"
)

// Defaults, mirroring the fixed sizes of the wire buffers.
const (
	DefaultPollTimeout     = 10 * time.Second
	DefaultBacklog         = 32
	DefaultHTTPPoolSize    = 32
	DefaultWeatherPoolSize = 32
	DefaultCity            = "Stockholm"
)

// ErrInvalidOption is wrapped by every option validation failure.
var ErrInvalidOption = errors.New("weatherd: invalid option")

// runtimeOptions holds configuration options for Runtime creation.
type runtimeOptions struct {
	logger      *Logger
	metrics     *Metrics
	io          FDIO
	pollTimeout time.Duration
}

// listenerOptions holds configuration options for Listener creation.
type listenerOptions struct {
	acceptRates    map[time.Duration]int
	rejectResponse []byte
	backlog        int
}

// httpOptions holds configuration options for HTTPServer creation.
type httpOptions struct {
	poolSize    int
	idleTimeout time.Duration
}

// weatherOptions holds configuration options for WeatherServer creation.
type weatherOptions struct {
	responder   Responder
	defaultCity string
	poolSize    int
}

// --- Runtime Options ---

// RuntimeOption configures a Runtime instance.
type RuntimeOption interface {
	applyRuntime(*runtimeOptions) error
}

type runtimeOptionImpl struct {
	applyRuntimeFunc func(*runtimeOptions) error
}

func (r *runtimeOptionImpl) applyRuntime(opts *runtimeOptions) error {
	return r.applyRuntimeFunc(opts)
}

// WithPollTimeout sets the upper bound on how long a tick blocks waiting for
// readiness. Defaults to DefaultPollTimeout.
func WithPollTimeout(d time.Duration) RuntimeOption {
	return &runtimeOptionImpl{func(opts *runtimeOptions) error {
		if d < 0 {
			return fmt.Errorf("%w: negative poll timeout %s", ErrInvalidOption, d)
		}
		opts.pollTimeout = d
		return nil
	}}
}

// WithLogger attaches a structured logger. A nil logger disables logging.
func WithLogger(logger *Logger) RuntimeOption {
	return &runtimeOptionImpl{func(opts *runtimeOptions) error {
		opts.logger = logger
		return nil
	}}
}

// WithMetrics attaches Prometheus collectors, see NewMetrics.
func WithMetrics(m *Metrics) RuntimeOption {
	return &runtimeOptionImpl{func(opts *runtimeOptions) error {
		opts.metrics = m
		return nil
	}}
}

// WithFDIO replaces the raw descriptor I/O used by every layer.
func WithFDIO(io FDIO) RuntimeOption {
	return &runtimeOptionImpl{func(opts *runtimeOptions) error {
		opts.io = io
		return nil
	}}
}

func resolveRuntimeOptions(opts []RuntimeOption) (*runtimeOptions, error) {
	cfg := &runtimeOptions{
		pollTimeout: DefaultPollTimeout,
		io:          unixIO{},
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyRuntime(cfg); err != nil {
			return nil, err
		}
	}
	if cfg.io == nil {
		cfg.io = unixIO{}
	}
	return cfg, nil
}

// --- Listener Options ---

// ListenerOption configures a Listener instance.
type ListenerOption interface {
	applyListener(*listenerOptions) error
}

type listenerOptionImpl struct {
	applyListenerFunc func(*listenerOptions) error
}

func (l *listenerOptionImpl) applyListener(opts *listenerOptions) error {
	return l.applyListenerFunc(opts)
}

// WithBacklog sets the listen(2) backlog.
func WithBacklog(n int) ListenerOption {
	return &listenerOptionImpl{func(opts *listenerOptions) error {
		if n <= 0 {
			return fmt.Errorf("%w: backlog must be positive, got %d", ErrInvalidOption, n)
		}
		opts.backlog = n
		return nil
	}}
}

// WithAcceptRateLimit limits accepted connections per peer address, using
// sliding windows (see catrate.NewLimiter for the rules rates must follow).
// Connections over the limit are closed without a response.
func WithAcceptRateLimit(rates map[time.Duration]int) ListenerOption {
	return &listenerOptionImpl{func(opts *listenerOptions) error {
		if err := validateRates(rates); err != nil {
			return err
		}
		opts.acceptRates = maps.Clone(rates)
		return nil
	}}
}

// validateRates applies catrate's rules, since catrate.NewLimiter panics on
// rates it considers irrelevant: ordered by window, counts must increase and
// the effective rate must decrease.
func validateRates(rates map[time.Duration]int) error {
	windows := slices.Sorted(maps.Keys(rates))
	for i, d := range windows {
		n := rates[d]
		if d <= 0 || n <= 0 {
			return fmt.Errorf("%w: accept rate %d per %s", ErrInvalidOption, n, d)
		}
		if i == 0 {
			continue
		}
		prev := windows[i-1]
		if rates[prev] >= n {
			return fmt.Errorf("%w: accept rate %d per %s must exceed %d per %s", ErrInvalidOption, n, d, rates[prev], prev)
		}
		if float64(n)/float64(d) >= float64(rates[prev])/float64(prev) {
			return fmt.Errorf("%w: accept rate %d per %s is not stricter than %d per %s", ErrInvalidOption, n, d, rates[prev], prev)
		}
	}
	return nil
}

// WithRejectResponse makes the listener attempt a single non-blocking write of
// b before closing a connection that the HTTP pool had no room for. The
// default is to close without writing anything.
func WithRejectResponse(b []byte) ListenerOption {
	return &listenerOptionImpl{func(opts *listenerOptions) error {
		opts.rejectResponse = b
		return nil
	}}
}

func resolveListenerOptions(opts []ListenerOption) (*listenerOptions, error) {
	cfg := &listenerOptions{
		backlog: DefaultBacklog,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyListener(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// --- HTTP Options ---

// HTTPOption configures an HTTPServer instance.
type HTTPOption interface {
	applyHTTP(*httpOptions) error
}

type httpOptionImpl struct {
	applyHTTPFunc func(*httpOptions) error
}

func (h *httpOptionImpl) applyHTTP(opts *httpOptions) error {
	return h.applyHTTPFunc(opts)
}

// WithHTTPPoolSize sets the number of transport connection slots. Together
// with the listener and the wake descriptor it must fit within MaxFDs.
func WithHTTPPoolSize(n int) HTTPOption {
	return &httpOptionImpl{func(opts *httpOptions) error {
		if n <= 0 || n > MaxFDs-2 {
			return fmt.Errorf("%w: http pool size %d not in [1, %d]", ErrInvalidOption, n, MaxFDs-2)
		}
		opts.poolSize = n
		return nil
	}}
}

// WithIdleTimeout closes connections that have not finished sending their
// request within d, with a 408 response. Zero disables it.
func WithIdleTimeout(d time.Duration) HTTPOption {
	return &httpOptionImpl{func(opts *httpOptions) error {
		if d < 0 {
			return fmt.Errorf("%w: negative idle timeout %s", ErrInvalidOption, d)
		}
		opts.idleTimeout = d
		return nil
	}}
}

func resolveHTTPOptions(opts []HTTPOption) (*httpOptions, error) {
	cfg := &httpOptions{
		poolSize: DefaultHTTPPoolSize,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyHTTP(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// --- Weather Options ---

// WeatherOption configures a WeatherServer instance.
type WeatherOption interface {
	applyWeather(*weatherOptions) error
}

type weatherOptionImpl struct {
	applyWeatherFunc func(*weatherOptions) error
}

func (w *weatherOptionImpl) applyWeather(opts *weatherOptions) error {
	return w.applyWeatherFunc(opts)
}

// WithWeatherPoolSize sets the number of application slots.
func WithWeatherPoolSize(n int) WeatherOption {
	return &weatherOptionImpl{func(opts *weatherOptions) error {
		if n <= 0 {
			return fmt.Errorf("%w: weather pool size must be positive, got %d", ErrInvalidOption, n)
		}
		opts.poolSize = n
		return nil
	}}
}

// WithResponder replaces the TemplateResponder.
func WithResponder(r Responder) WeatherOption {
	return &weatherOptionImpl{func(opts *weatherOptions) error {
		if r == nil {
			return fmt.Errorf("%w: nil responder", ErrInvalidOption)
		}
		opts.responder = r
		return nil
	}}
}

// WithDefaultCity sets the city used when a request carries none. The value
// is sanitized like any other city.
func WithDefaultCity(city string) WeatherOption {
	return &weatherOptionImpl{func(opts *weatherOptions) error {
		if city == "" || len(city) > CitySize-1 {
			return fmt.Errorf("%w: default city length %d not in [1, %d]", ErrInvalidOption, len(city), CitySize-1)
		}
		opts.defaultCity = city
		return nil
	}}
}

func resolveWeatherOptions(opts []WeatherOption) (*weatherOptions, error) {
	cfg := &weatherOptions{
		poolSize:    DefaultWeatherPoolSize,
		defaultCity: DefaultCity,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyWeather(cfg); err != nil {
			return nil, err
		}
	}
	if cfg.responder == nil {
		cfg.responder = TemplateResponder{}
	}
	return cfg, nil
}
