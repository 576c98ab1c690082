package monitor

import "context"

// SystemSource reports platform-wide counts the engine cannot observe from
// request traffic. The host system supplies the implementation.
type SystemSource interface {
	ActiveDriverCount(ctx context.Context) (int, error)
	ActiveDatabaseConnections(ctx context.Context) (int, error)
}

// StaticSource returns fixed values. It stands in when no database is
// configured.
type StaticSource struct {
	Drivers     int
	Connections int
}

// DefaultStaticSource is used when Options.System is nil.
var DefaultStaticSource = StaticSource{Drivers: 42, Connections: 10}

func (s StaticSource) ActiveDriverCount(_ context.Context) (int, error) {
	return s.Drivers, nil
}

func (s StaticSource) ActiveDatabaseConnections(_ context.Context) (int, error) {
	return s.Connections, nil
}
