package unifi

import (
	"context"
	"fmt"
)

// networkIgnored lists message types that carry bulk state sync rather than
// discrete events.
var networkIgnored = map[string]struct{}{
	"sta:sync":      {},
	"device:sync":   {},
	"device:update": {},
}

// networkAdapter streams the site event feed of the network application.
//
// Frames look like {"meta":{"message":"events"},"data":[{"key":"EVT_..."}, ...]}.
// Each entry of an "events" frame is emitted under its "key".
type networkAdapter struct {
	ep endpoint
}

func (a *networkAdapter) Name() string { return SubsystemNetwork }

func (a *networkAdapter) URL() string {
	return fmt.Sprintf("wss://%s/proxy/network/wss/s/%s/events", a.ep.authority(), a.ep.site)
}

func (a *networkAdapter) handleText(ctx context.Context, s frameSink, frame any) error {
	msg, ok := frame.(map[string]any)
	if !ok {
		return fmt.Errorf("%w: network frame is %T, want object", ErrMalformedFrame, frame)
	}
	meta, ok := msg["meta"].(map[string]any)
	if !ok {
		return fmt.Errorf("%w: network frame has no meta", ErrMalformedFrame)
	}
	kind, ok := meta["message"].(string)
	if !ok {
		return fmt.Errorf("%w: network frame has no meta.message", ErrMalformedFrame)
	}

	if _, ignored := networkIgnored[kind]; ignored {
		return nil
	}

	data, ok := msg["data"].([]any)
	if !ok {
		return fmt.Errorf("%w: network %q frame has no data list", ErrMalformedFrame, kind)
	}

	if kind != "events" {
		s.debug("network message ignored", "message", kind, "entries", len(data))
		return nil
	}

	for i, raw := range data {
		entry, ok := raw.(map[string]any)
		if !ok {
			return fmt.Errorf("%w: network event %d is %T, want object", ErrMalformedFrame, i, raw)
		}
		key, ok := entry["key"].(string)
		if !ok || key == "" {
			return fmt.Errorf("%w: network event %d has no key", ErrMalformedFrame, i)
		}
		if err := s.emit(ctx, key, entry); err != nil {
			return err
		}
	}
	return nil
}

func (a *networkAdapter) handleBinary(_ context.Context, s frameSink, data []byte) error {
	s.debug("unsupported binary frame", "bytes", len(data))
	return nil
}
