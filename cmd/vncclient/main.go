package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sepandy/react-vnc-lib/internal/eventbus"
	"github.com/sepandy/react-vnc-lib/internal/transport"
	"github.com/sepandy/react-vnc-lib/internal/version"
	"github.com/sepandy/react-vnc-lib/pkg/vnc"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "version" {
		fmt.Printf("vncclient %s (%s)\n", version.Version, version.Commit)
		os.Exit(0)
	}

	fs := flag.NewFlagSet("vncclient", flag.ExitOnError)
	addr := fs.String("addr", "127.0.0.1:5900", "host:port of the RFB server")
	password := fs.String("password", "", "VNC Authentication password (if the server requires it)")
	viewOnly := fs.Bool("view-only", false, "never send input events")
	debug := fs.Bool("debug", false, "emit protocol trace to stderr")
	timeout := fs.Duration("timeout", 10*time.Second, "connect deadline")
	fs.Parse(os.Args[1:])

	opts := vnc.SessionOptions{
		Endpoint:       "ws://" + *addr,
		Password:       *password,
		ViewOnly:       *viewOnly,
		ConnectTimeout: *timeout,
		Debug:          *debug,
	}

	s := vnc.NewSession(transport.TCPDialer{}, opts)
	defer s.Close()

	unsub := s.Subscribe(func(e vnc.Event) {
		printEvent(e)
	})
	defer unsub()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := s.Connect(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "connect: %v\n", err)
		os.Exit(1)
	}

	<-ctx.Done()
	s.Disconnect()
}

func printEvent(e vnc.Event) {
	switch e.Kind {
	case eventbus.Connecting:
		fmt.Println("connecting...")
	case eventbus.Connected:
		fmt.Println("connected")
	case eventbus.Disconnected:
		fmt.Println("disconnected")
	case eventbus.Error:
		fmt.Fprintf(os.Stderr, "error: %s\n", e.Message)
	case eventbus.FramebufferUpdate:
		fmt.Printf("framebuffer update: %d bytes\n", len(e.Payload))
	case eventbus.ServerCutText:
		fmt.Printf("server cut text: %d bytes\n", len(e.Payload))
	case eventbus.Bell:
		fmt.Println("bell")
	case eventbus.Resize:
		fmt.Printf("resize: %dx%d\n", e.Width, e.Height)
	}
}
