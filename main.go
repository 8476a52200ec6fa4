// surfbridge CLI entry point
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime/debug"
	"strconv"
	"syscall"
	"time"

	"github.com/batalabs/surfbridge/internal/capture"
	"github.com/batalabs/surfbridge/internal/codec"
	"github.com/batalabs/surfbridge/internal/config"
	"github.com/batalabs/surfbridge/internal/daemon"
	"github.com/batalabs/surfbridge/internal/protocol"
	"github.com/batalabs/surfbridge/internal/router"
	"github.com/batalabs/surfbridge/internal/service"
	"github.com/batalabs/surfbridge/internal/workflow"
)

var version = "dev"

func init() {
	if version != "dev" {
		return
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		version = info.Main.Version
	}
}

func main() {
	versionFlag := flag.Bool("version", false, "Print version and exit")
	workflowFlag := flag.String("workflow", "", "Run a workflow step document (JSON file) against the daemon and exit")
	dryRunFlag := flag.Bool("dry-run", false, "With -workflow, print the resolved step plan without issuing any requests")
	serviceCmd := flag.String("service", "", "Service management: install|uninstall|status|start|stop")
	qrFlag := flag.Bool("qr", false, "Print a pairing QR code for the configured socket and auth token, then exit")
	flag.Parse()

	if *versionFlag {
		fmt.Printf("surfbridge %s\n", version)
		return
	}

	prefs := config.LoadPreferences()

	if *qrFlag {
		socketPath := prefs.SocketPath
		if socketPath == "" {
			socketPath = config.DefaultSocketPath()
		}
		ascii, err := daemon.GenerateQRCodeASCII(socketPath, prefs.DaemonAuthToken)
		if err != nil {
			fmt.Fprintf(os.Stderr, "qr: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(ascii)
		return
	}

	if *serviceCmd != "" {
		if err := service.HandleCommand(*serviceCmd); err != nil {
			fmt.Fprintf(os.Stderr, "service: %v\n", err)
			os.Exit(1)
		}
		return
	}

	logger := config.NewLogger()
	defer logger.Close()

	if *workflowFlag != "" {
		if err := runWorkflow(*workflowFlag, prefs, *dryRunFlag); err != nil {
			fmt.Fprintf(os.Stderr, "workflow failed: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := runDaemon(prefs, logger); err != nil {
		fmt.Fprintf(os.Stderr, "surfbridge failed: %v\n", err)
		os.Exit(1)
	}
}

// runWorkflow dials a running daemon's socket and runs the step document at
// path against it, per spec.md §4.E: the workflow engine is a client of the
// daemon, never an in-process shortcut.
func runWorkflow(path string, prefs config.Preferences, dryRun bool) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading workflow file: %w", err)
	}
	var steps []workflow.Step
	if err := json.Unmarshal(b, &steps); err != nil {
		return fmt.Errorf("parsing workflow file: %w", err)
	}

	socketPath := prefs.SocketPath
	if socketPath == "" {
		socketPath = config.DefaultSocketPath()
	}

	client, err := workflow.DialSocket(socketPath)
	if err != nil {
		return err
	}
	defer client.Close()

	eng := workflow.NewEngine(client.Issue,
		workflow.WithDryRun(dryRun),
		workflow.WithFailurePolicy(workflow.PolicyStop),
	)
	result, err := eng.Run(steps)
	if err != nil {
		return err
	}
	for _, e := range result.Errors {
		fmt.Fprintf(os.Stderr, "step error: %v\n", e)
	}
	return nil
}

// runDaemon boots the bridge daemon described in spec.md §4.C: a local
// socket multiplexer whose upstream side is ordinarily the browser
// extension's framed stdio, speaking to the extension router in-process
// here rather than over a real subprocess pipe. The two io.Pipe pairs give
// daemon.Server its usual stdin/stdout interface unmodified while an
// adapter goroutine dispatches each framed upstream request straight to the
// router, skipping a round trip through an actual extension process.
func runDaemon(prefs config.Preferences, logger *config.Logger) error {
	store, err := openCaptureStore(prefs, logger)
	if err != nil {
		return err
	}

	if prefs.CaptureAutoClean {
		sched := capture.NewCleanupScheduler(store, time.Hour)
		sched.Start()
		defer sched.Stop()
	}

	r := router.NewRouter(router.WithLogger(logger), router.WithCaptureStore(store))
	r.RegisterGroup(router.AllTools())

	srv := buildServer(prefs, logger)

	// reqR/reqW carries framed upstream requests out of the daemon;
	// repR/repW carries framed replies back in. Start treats reqW/repR as
	// its stdout/stdin, exactly as it would with a real extension process.
	reqR, reqW := io.Pipe()
	repR, repW := io.Pipe()
	bridgeWriter := codec.NewWriter(repW)
	go runBridgeAdapter(r, reqR, bridgeWriter, logger)

	if err := daemon.WriteLockfile(srv.SocketPath(), prefs.DaemonAuthToken); err != nil {
		logger.Printf("daemon: write lockfile: %v", err)
	}
	defer daemon.RemoveLockfile()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	go func() {
		<-ctx.Done()
		logger.Printf("daemon: shutting down")
		srv.Shutdown()
	}()

	if err := srv.Start(repR, reqW); err != nil {
		return fmt.Errorf("daemon: %w", err)
	}
	return nil
}

func openCaptureStore(prefs config.Preferences, logger *config.Logger) (*capture.Store, error) {
	dir := prefs.CaptureDir
	if dir == "" {
		dir = config.DefaultCapturePath()
	}
	opts := []capture.Option{capture.WithLogger(logger)}
	if prefs.CaptureTTLHours > 0 {
		opts = append(opts, capture.WithTTL(time.Duration(prefs.CaptureTTLHours)*time.Hour))
	}
	if prefs.CaptureMaxBytes > 0 {
		opts = append(opts, capture.WithMaxBytes(prefs.CaptureMaxBytes))
	}
	return capture.Open(dir, opts...)
}

func buildServer(prefs config.Preferences, logger *config.Logger) *daemon.Server {
	socketPath := prefs.SocketPath
	if socketPath == "" {
		socketPath = config.DefaultSocketPath()
	}
	opts := []daemon.Option{daemon.WithLogger(logger)}
	if mode, err := strconv.ParseUint(prefs.SocketMode, 8, 32); err == nil && prefs.SocketMode != "" {
		opts = append(opts, daemon.WithSocketMode(os.FileMode(mode)))
	}
	if prefs.DefaultToolTimeoutSeconds > 0 {
		opts = append(opts, daemon.WithDefaultTimeout(time.Duration(prefs.DefaultToolTimeoutSeconds)*time.Second))
	}
	for tool, secs := range prefs.ToolTimeoutOverrides {
		opts = append(opts, daemon.WithToolTimeout(tool, time.Duration(secs)*time.Second))
	}
	return daemon.NewServer(socketPath, opts...)
}

// runBridgeAdapter reads framed tool requests off upstreamR (as the daemon's
// "extension" would write them) and dispatches each to the router
// concurrently, since individual CDP round trips can be slow and must not
// block other in-flight requests. Replies are written back through a single
// shared codec.Writer, which is safe for concurrent use.
func runBridgeAdapter(r *router.Router, upstreamR io.Reader, out *codec.Writer, logger *config.Logger) {
	reader := codec.NewReader(upstreamR)
	for {
		payload, err := reader.ReadMessage()
		if err != nil {
			if err != io.EOF {
				logger.Printf("bridge: read upstream request: %v", err)
			}
			return
		}
		var req protocol.ToolRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			logger.Printf("bridge: decode upstream request: %v", err)
			continue
		}
		go func(req protocol.ToolRequest) {
			reply := r.Dispatch(req)
			b, err := json.Marshal(reply)
			if err != nil {
				logger.Printf("bridge: encode reply: %v", err)
				return
			}
			if err := out.WriteMessage(b); err != nil {
				logger.Printf("bridge: write reply: %v", err)
			}
		}(req)
	}
}
