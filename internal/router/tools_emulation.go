package router

import "strconv"

func emulationTools() []RouterTool {
	return []RouterTool{
		emulateNetworkTool(),
		emulateCPUTool(),
		emulateGeolocationTool(),
	}
}

// networkProfiles mirrors common devtools throttling presets.
var networkProfiles = map[string]struct {
	downloadBps int
	uploadBps   int
	latencyMs   int
}{
	"offline":     {0, 0, 0},
	"slow3g":      {500 * 1024 / 8, 500 * 1024 / 8, 400},
	"fast3g":      {1677721 / 8, 750 * 1024 / 8, 150},
	"no-throttle": {-1, -1, 0},
}

func emulateNetworkTool() RouterTool {
	return RouterTool{
		Name:         "emulate.network",
		Capabilities: CapDebugger,
		Handler: func(rc *RequestContext, tabID int, args map[string]any) (Result, error) {
			profileName, err := requireString(args, "profile")
			if err != nil {
				return Result{}, err
			}
			profile, ok := networkProfiles[profileName]
			if !ok {
				profile = networkProfiles["no-throttle"]
			}
			params := map[string]any{
				"offline":            profileName == "offline",
				"latency":            profile.latencyMs,
				"downloadThroughput": profile.downloadBps,
				"uploadThroughput":   profile.uploadBps,
			}
			if _, err := cdpCall(rc, "Network.emulateNetworkConditions", params); err != nil {
				return Result{}, err
			}
			return textResult("network emulation set to " + profileName)
		},
	}
}

func emulateCPUTool() RouterTool {
	return RouterTool{
		Name:         "emulate.cpu",
		Capabilities: CapDebugger,
		Handler: func(rc *RequestContext, tabID int, args map[string]any) (Result, error) {
			rate := argInt(args, "slowdown", 1)
			if rate < 1 {
				rate = 1
			}
			if _, err := cdpCall(rc, "Emulation.setCPUThrottlingRate", map[string]any{"rate": rate}); err != nil {
				return Result{}, err
			}
			return textResult("cpu throttling set to " + strconv.Itoa(rate) + "x")
		},
	}
}

func emulateGeolocationTool() RouterTool {
	return RouterTool{
		Name:         "emulate.geolocation",
		Capabilities: CapDebugger,
		Handler: func(rc *RequestContext, tabID int, args map[string]any) (Result, error) {
			lat, _ := args["lat"].(float64)
			lon, _ := args["lon"].(float64)
			if _, err := cdpCall(rc, "Emulation.setGeolocationOverride", map[string]any{
				"latitude": lat, "longitude": lon, "accuracy": 1,
			}); err != nil {
				return Result{}, err
			}
			return textResult("geolocation overridden")
		},
	}
}
