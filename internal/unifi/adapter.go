package unifi

import (
	"context"
	"fmt"
	"net"
	"sort"
	"strconv"
)

// Adapter is the per-subsystem policy: which streaming endpoint to open and
// how to turn its frames into events. The set of adapters is closed; they are
// created from the static table below.
type Adapter interface {
	// Name is the subsystem name used to tag every emitted event.
	Name() string

	// URL returns the streaming endpoint.
	URL() string

	handleText(ctx context.Context, s frameSink, frame any) error
	handleBinary(ctx context.Context, s frameSink, data []byte) error
}

// frameSink is the part of a streaming session an adapter may use.
type frameSink interface {
	emit(ctx context.Context, event string, payload any) error
	debug(msg string, keysAndValues ...any)
}

// endpoint is what adapters need to build their URLs.
type endpoint struct {
	host         string
	port         int
	site         string
	lastUpdateID string
}

// authority returns host, or host:port when the port is not 443.
func (e endpoint) authority() string {
	if e.port == 0 || e.port == defaultPort {
		return e.host
	}
	return net.JoinHostPort(e.host, strconv.Itoa(e.port))
}

// Subsystem names with a built-in adapter.
const (
	SubsystemNetwork = "network"
	SubsystemAccess  = "access"
	SubsystemProtect = "protect"
)

var adapterTable = map[string]func(endpoint) Adapter{
	SubsystemNetwork: func(e endpoint) Adapter { return &networkAdapter{ep: e} },
	SubsystemAccess:  func(e endpoint) Adapter { return &accessAdapter{ep: e} },
	SubsystemProtect: func(e endpoint) Adapter { return &protectAdapter{ep: e} },
}

// Subsystems returns the names of all built-in adapters, sorted.
func Subsystems() []string {
	names := make([]string, 0, len(adapterTable))
	for name := range adapterTable {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func newAdapter(name string, ep endpoint) (Adapter, error) {
	build, ok := adapterTable[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSubsystem, name)
	}
	return build(ep), nil
}
