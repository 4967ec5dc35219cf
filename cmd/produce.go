package cmd

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/babelcloud/holocast/config"
	"github.com/babelcloud/holocast/internal/channel"
	"github.com/babelcloud/holocast/internal/gpu"
	"github.com/babelcloud/holocast/internal/session"
	"github.com/babelcloud/holocast/internal/util"
	"github.com/fatih/color"
	"github.com/pires/go-proxyproto"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

// SessionPath is where the websocket transport accepts consumers.
const SessionPath = "/session"

type produceOptions struct {
	listen        string
	transport     string
	backend       string
	proxyProtocol bool
}

func NewProduceCommand() *cobra.Command {
	opts := &produceOptions{}

	cmd := &cobra.Command{
		Use:   "produce",
		Short: "Serve content to consumers",
		Long: `Listen for consumers, render the content each one negotiates and capture it
into a shared surface the consumer can open.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProduce(cmd.Context(), opts)
		},
		Example: `  # Serve consumers over websocket on the default address
  holocast produce

  # Serve over smux on a custom address
  holocast produce --transport smux --listen 127.0.0.1:30000`,
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.listen, "listen", "l", config.GetListenAddr(), "Address to listen on")
	flags.StringVarP(&opts.transport, "transport", "t", config.GetTransport(), "Message transport (websocket or smux)")
	flags.StringVar(&opts.backend, "surface-backend", config.GetRemoteSurfaceBackend(), "Shared surface backend (shm or memory)")
	flags.BoolVar(&opts.proxyProtocol, "proxy-protocol", config.GetProxyProtocol(), "Read a PROXY protocol header on each connection and log the client it names")

	return cmd
}

func runProduce(ctx context.Context, opts *produceOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	ns, err := openNamespace(opts.backend)
	if err != nil {
		return err
	}
	dev := gpu.NewDevice("producer", ns, gpu.DefaultCapabilities())
	srv := &producerServer{cfg: producerConfig(dev), keeper: session.NewKeeper()}

	ln, err := listen(opts.listen, opts.proxyProtocol)
	if err != nil {
		return err
	}

	color.Green("holocast producer listening on %s (%s)", ln.Addr(), opts.transport)
	switch opts.transport {
	case "websocket":
		return srv.serveWebSocket(ctx, ln)
	case "smux":
		return srv.serveSmux(ctx, ln)
	}
	ln.Close()
	return errors.Errorf("unknown transport %q (websocket or smux)", opts.transport)
}

// listen opens the producer listener. Behind a proxy, connections report
// the client address from their PROXY protocol header.
func listen(addr string, proxyProtocol bool) (net.Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to listen on %s", addr)
	}
	if !proxyProtocol {
		return ln, nil
	}
	return &proxyproto.Listener{
		Listener:          ln,
		ReadHeaderTimeout: 10 * time.Second,
	}, nil
}

type producerServer struct {
	cfg    session.ProducerConfig
	keeper *session.Keeper
	wg     sync.WaitGroup
}

// serve runs one producer for t until the connection or ctx ends.
func (s *producerServer) serve(ctx context.Context, t channel.Transport, remote string) {
	logger := util.GetLogger().With("remote", remote)
	p := session.NewProducer(s.cfg, s.keeper, t)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case err := <-p.Errors():
				logger.Error("session failed", "error", err)
			}
		}
	}()

	logger.Info("consumer connected", "sessions", s.keeper.IDs())
	err := p.Run(ctx)
	logger.Info("consumer disconnected", "error", err, "sessions", s.keeper.IDs())
}

func (s *producerServer) serveWebSocket(ctx context.Context, ln net.Listener) error {
	mux := http.NewServeMux()
	mux.HandleFunc(SessionPath, func(w http.ResponseWriter, r *http.Request) {
		t, err := channel.Upgrade(w, r)
		if err != nil {
			util.GetLogger().Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
			return
		}
		s.serve(ctx, t, r.RemoteAddr)
	})

	httpServer := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			httpServer.Close()
		}
	}()

	if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "producer server failed")
	}
	return nil
}

func (s *producerServer) serveSmux(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		ln.Close()
	}()
	defer s.wg.Wait()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Wrap(err, "failed to accept consumer")
		}
		s.wg.Go(func() {
			t, err := channel.AcceptSmux(conn)
			if err != nil {
				util.GetLogger().Warn("smux handshake failed", "remote", conn.RemoteAddr().String(), "error", err)
				conn.Close()
				return
			}
			s.serve(ctx, t, conn.RemoteAddr().String())
		})
	}
}
