package unifi

import (
	"context"
	"fmt"
	"net/url"
)

// protectAdapter opens the video update stream.
//
// Updates arrive as binary frames in a format that has not been decoded yet,
// so every frame is logged as unsupported and dropped. The adapter still
// keeps the stream open and reports its lifecycle events.
type protectAdapter struct {
	ep endpoint
}

func (a *protectAdapter) Name() string { return SubsystemProtect }

func (a *protectAdapter) URL() string {
	base := fmt.Sprintf("wss://%s/proxy/protect/ws/updates", a.ep.authority())
	if a.ep.lastUpdateID == "" {
		return base
	}
	return base + "?lastUpdateId=" + url.QueryEscape(a.ep.lastUpdateID)
}

func (a *protectAdapter) handleText(_ context.Context, s frameSink, frame any) error {
	s.debug("unsupported protect text frame", "frame", frame)
	return nil
}

func (a *protectAdapter) handleBinary(_ context.Context, s frameSink, data []byte) error {
	s.debug("unsupported protect binary frame", "bytes", len(data))
	return nil
}
