package workflow

import (
	"bufio"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/batalabs/surfbridge/internal/protocol"
)

func TestSocketClientRoundTrip(t *testing.T) {
	dir := t.TempDir()
	sockPath := filepath.Join(dir, "surfbridge.sock")

	ln, err := net.Listen("unix", sockPath)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		scanner := bufio.NewScanner(conn)
		for scanner.Scan() {
			var req protocol.ToolRequest
			if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
				continue
			}
			reply := protocol.NewResultReply(req.ID, protocol.TextPart("echo:"+req.Params.Tool))
			b, _ := json.Marshal(reply)
			b = append(b, '\n')
			conn.Write(b)
		}
	}()

	client, err := DialSocket(sockPath)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()

	reply := client.Issue(protocol.ToolRequest{
		Type:   protocol.MessageToolRequest,
		Method: "execute_tool",
		ID:     "r1",
		Params: protocol.ToolParams{Tool: "page.url"},
	})
	if reply.IsError() {
		t.Fatalf("unexpected error reply: %+v", reply.Error)
	}
	if reply.Result.Content[0].Text != "echo:page.url" {
		t.Fatalf("unexpected reply: %+v", reply.Result)
	}
}

func TestSocketClientDialFailureIsTransportError(t *testing.T) {
	_, err := DialSocket(filepath.Join(os.TempDir(), "surfbridge-does-not-exist.sock"))
	if err == nil {
		t.Fatal("expected a dial error")
	}
	perr, ok := protocol.AsError(err)
	if !ok || perr.Kind != protocol.ErrTransport {
		t.Fatalf("expected a transport error, got %v", err)
	}
}
