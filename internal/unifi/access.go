package unifi

import (
	"context"
	"fmt"
)

const accessLogsAdd = "access.logs.add"

// accessAdapter streams door and reader notifications.
// Only access log entries are emitted; the whole frame is the payload.
type accessAdapter struct {
	ep endpoint
}

func (a *accessAdapter) Name() string { return SubsystemAccess }

func (a *accessAdapter) URL() string {
	return fmt.Sprintf("wss://%s/proxy/access/ulp-go/api/v2/ws/notification", a.ep.authority())
}

func (a *accessAdapter) handleText(ctx context.Context, s frameSink, frame any) error {
	msg, ok := frame.(map[string]any)
	if !ok {
		s.debug("unknown access frame", "frame", frame)
		return nil
	}

	event, _ := msg["event"].(string)
	if event != accessLogsAdd {
		s.debug("unknown access event", "event", event)
		return nil
	}

	return s.emit(ctx, event, msg)
}

func (a *accessAdapter) handleBinary(_ context.Context, s frameSink, data []byte) error {
	s.debug("unsupported binary frame", "bytes", len(data))
	return nil
}
