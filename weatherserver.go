// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

//go:build unix

package weatherd

// WeatherServer is a fixed-size pool of weather request slots. It implements
// [Application].
type WeatherServer struct {
	rt          *Runtime
	responder   Responder
	logger      *Logger
	conns       []WeatherConn
	free        freeList
	defaultCity [CitySize]byte
	defaultLen  int
	active      int
}

var _ Application = (*WeatherServer)(nil)

// NewWeatherServer creates the pool.
func NewWeatherServer(rt *Runtime, opts ...WeatherOption) (*WeatherServer, error) {
	cfg, err := resolveWeatherOptions(opts)
	if err != nil {
		return nil, err
	}
	s := &WeatherServer{
		rt:        rt,
		responder: cfg.responder,
		logger:    componentLogger(rt.logger, "weather"),
		conns:     make([]WeatherConn, cfg.poolSize),
		free:      newFreeList(cfg.poolSize),
	}
	s.defaultLen = sanitizeCity(s.defaultCity[:], []byte(cfg.defaultCity))
	for i := range s.conns {
		c := &s.conns[i]
		c.server = s
		c.index = i
		c.item = rt.sched.NewItem("weather", c.step)
		_ = rt.sched.OnEvict(c.item, c.evicted)
	}
	return s, nil
}

// Dispatch implements Application. The returned Exchange is the slot
// serving the request.
func (s *WeatherServer) Dispatch(req *Request, sink ResponseSink) (Exchange, error) {
	i := s.free.alloc()
	if i < 0 {
		return nil, ErrPoolExhausted
	}
	c := &s.conns[i]

	c.route = classifyRoute(req.Path())
	c.cityLen = extractCity(c.city[:], req.Query())
	if c.cityLen == 0 {
		c.cityLen = copy(c.city[:], s.defaultCity[:s.defaultLen])
	}

	if err := s.rt.sched.Register(c.item); err != nil {
		c.reset()
		s.free.release(i)
		return nil, err
	}
	c.sink = sink
	c.state = WeatherProcessing
	s.rt.sched.Notify()

	s.active++
	s.rt.metrics.setActive(PoolWeather, s.active)

	s.logger.Debug().
		Str("route", c.route.String()).
		Int("slot", i).
		Log("request dispatched")

	return c, nil
}

// Active returns the number of in-use slots.
func (s *WeatherServer) Active() int { return s.active }

// Cap returns the number of slots.
func (s *WeatherServer) Cap() int { return len(s.conns) }

// Conn returns slot i, for inspection.
func (s *WeatherServer) Conn(i int) *WeatherConn { return &s.conns[i] }

// Shutdown releases every in-use slot, without delivering responses. Sinks
// must have been detached already, see HTTPServer.Shutdown.
func (s *WeatherServer) Shutdown() {
	for i := range s.conns {
		if s.free.inUse[i] {
			s.conns[i].Detach()
			s.conns[i].release()
		}
	}
}

func (s *WeatherServer) released() {
	if s.active > 0 {
		s.active--
	}
	s.rt.metrics.setActive(PoolWeather, s.active)
}
