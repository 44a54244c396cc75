package commands

import (
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	netpkg "github.com/marmos91/asyncnet/net"
	"github.com/marmos91/asyncnet/pkg/config"
)

const handlerIdleTimeout = 30 * time.Second

// echoHandler is the demo ProtocolHandler netctl serve drives: it echoes
// back whatever it receives, and closes when the peer closes or when a
// send does not complete within handlerIdleTimeout. A receive that sees
// no data for handlerIdleTimeout is simply re-armed.
type echoHandler struct {
	pending []byte
	closed  bool
}

func (h *echoHandler) GetOperation() netpkg.HandlerOperation {
	if h.closed {
		return netpkg.HandlerOperation{Close: true}
	}
	if len(h.pending) > 0 {
		data := h.pending
		h.pending = nil
		return netpkg.HandlerOperation{DataToSend: data, TimeToWait: handlerIdleTimeout}
	}
	return netpkg.HandlerOperation{TimeToWait: handlerIdleTimeout}
}

func (h *echoHandler) AdvanceTime(time.Duration) {}

func (h *echoHandler) HandleData(data []byte) {
	h.pending = append(h.pending, data...)
}

func (h *echoHandler) HandleSendTimeout([]byte) {
	h.closed = true
}

func (h *echoHandler) HandleConnectionClose() {
	h.closed = true
}

var (
	serveListen  string
	serveNetwork string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run an echo server over the internal or TCP network stack",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath, nil)
		if err != nil {
			return err
		}
		if serveListen != "" {
			cfg.ListenName = serveListen
		}

		logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

		var stack netpkg.NetworkStack
		if serveNetwork == "internal" {
			stack = netpkg.NewInternalNetworkStack()
		} else {
			stack = netpkg.NewTCPNetworkStack()
		}

		name := netpkg.ParseName(cfg.ListenName, "0")
		listener, err := stack.Listen(name, 16)
		if err != nil {
			return err
		}

		factory := netpkg.ProtocolHandlerFactoryFunc(func() netpkg.ProtocolHandler {
			return &echoHandler{}
		})

		server := netpkg.NewServer(listener, factory, logger, nil)
		server.SetLogName(name.String())
		logger.Info("serving", slog.String("listen", name.String()), slog.String("network", serveNetwork))
		server.Run()
		return nil
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveListen, "listen", "", "override the configured listen address")
	serveCmd.Flags().StringVar(&serveNetwork, "network", "tcp", "network stack to use: tcp or internal")
}
