package router

import (
	"encoding/json"

	"github.com/batalabs/surfbridge/internal/protocol"
)

func screenshotTools() []RouterTool {
	return []RouterTool{
		viewportScreenshotTool(),
		regionScreenshotTool(),
		fullPageScreenshotTool(),
		screenshotFetchTool(),
	}
}

func captureAndCache(rc *RequestContext, params map[string]any) (*ScreenshotEntry, error) {
	raw, err := cdpCall(rc, "Page.captureScreenshot", params)
	if err != nil {
		return nil, err
	}
	var shot struct {
		Data string `json:"data"`
	}
	if err := json.Unmarshal(raw, &shot); err != nil {
		return nil, protocol.Wrap(protocol.ErrTarget, "decode screenshot", err)
	}
	return rc.CacheScreenshot([]byte(shot.Data), "image/png")
}

func screenshotResult(args map[string]any, entry *ScreenshotEntry) Result {
	if argBool(args, "inline", true) {
		return Result{Images: []ResultImage{{Data: string(entry.Bytes), MimeType: entry.MimeType, CacheID: entry.ID}}}
	}
	return Result{Text: entry.ID}
}

func viewportScreenshotTool() RouterTool {
	return RouterTool{
		Name:         "screenshot.viewport",
		Capabilities: CapDebugger,
		Handler: func(rc *RequestContext, tabID int, args map[string]any) (Result, error) {
			entry, err := captureAndCache(rc, map[string]any{"format": "png"})
			if err != nil {
				return Result{}, err
			}
			return screenshotResult(args, entry), nil
		},
	}
}

func regionScreenshotTool() RouterTool {
	return RouterTool{
		Name:         "screenshot.region",
		Capabilities: CapDebugger,
		Handler: func(rc *RequestContext, tabID int, args map[string]any) (Result, error) {
			clip := map[string]any{
				"x": argInt(args, "x", 0), "y": argInt(args, "y", 0),
				"width": argInt(args, "width", 0), "height": argInt(args, "height", 0),
				"scale": 1,
			}
			entry, err := captureAndCache(rc, map[string]any{"format": "png", "clip": clip})
			if err != nil {
				return Result{}, err
			}
			return screenshotResult(args, entry), nil
		},
	}
}

func fullPageScreenshotTool() RouterTool {
	return RouterTool{
		Name:         "screenshot.fullpage",
		Capabilities: CapDebugger,
		Handler: func(rc *RequestContext, tabID int, args map[string]any) (Result, error) {
			entry, err := captureAndCache(rc, map[string]any{"format": "png", "captureBeyondViewport": true})
			if err != nil {
				return Result{}, err
			}
			return screenshotResult(args, entry), nil
		},
	}
}

func screenshotFetchTool() RouterTool {
	return RouterTool{
		Name:         "screenshot.fetch",
		Capabilities: CapEither,
		Handler: func(rc *RequestContext, tabID int, args map[string]any) (Result, error) {
			id, err := requireString(args, "id")
			if err != nil {
				return Result{}, err
			}
			entry, ok := rc.router.screenshot.get(id)
			if !ok {
				return Result{}, protocol.NewError(protocol.ErrTarget, "unknown screenshot id "+id)
			}
			return Result{Images: []ResultImage{{Data: string(entry.Bytes), MimeType: entry.MimeType}}}, nil
		},
	}
}
