package cmd

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/babelcloud/holocast/config"
	"github.com/babelcloud/holocast/internal/channel"
	"github.com/babelcloud/holocast/internal/gpu"
	"github.com/babelcloud/holocast/internal/session"
	"github.com/babelcloud/holocast/internal/util"
	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func NewRunCommand() *cobra.Command {
	opts := &presentOptions{}
	var link string

	cmd := &cobra.Command{
		Use:   "run [source]",
		Short: "Run producer and consumer in one process",
		Long: `Start a producer and a consumer in this process, connected by an in-memory
pipe or a loopback WebRTC data channel, and present source.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			source, err := presentSource(args, opts)
			if err != nil {
				return err
			}
			return runLocal(cmd.Context(), source, link, opts)
		},
		Example: `  # Present a page over a WebRTC data channel
  holocast run https://example.com --link webrtc`,
	}

	opts.addFlags(cmd)
	flags := cmd.Flags()
	flags.StringVar(&link, "link", "pipe", "How producer and consumer are connected (pipe or webrtc)")
	flags.StringVar(&opts.backend, "surface-backend", config.GetSurfaceBackend(), "Shared surface backend (memory or shm)")

	return cmd
}

// localLink connects the two ends of an in-process session.
func localLink(ctx context.Context, link string) (producer, consumer channel.Transport, closeFn func(), err error) {
	switch link {
	case "pipe":
		a, b := net.Pipe()
		return channel.NewStreamTransport(a), channel.NewStreamTransport(b), func() {}, nil
	case "webrtc":
		ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		pair, err := channel.NewLoopbackPair(ctx)
		if err != nil {
			return nil, nil, nil, err
		}
		return pair.Answerer, pair.Offerer, func() { pair.Close() }, nil
	}
	return nil, nil, nil, errors.Errorf("unknown link %q (pipe or webrtc)", link)
}

func runLocal(ctx context.Context, source, link string, opts *presentOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	ns, err := openNamespace(opts.backend)
	if err != nil {
		return err
	}
	pt, ct, closeLink, err := localLink(ctx, link)
	if err != nil {
		return err
	}
	defer closeLink()

	producerDev := gpu.NewDevice("producer", ns, gpu.DefaultCapabilities())
	consumerDev := gpu.NewDevice("consumer", ns, gpu.DefaultCapabilities())

	p := session.NewProducer(producerConfig(producerDev), session.NewKeeper(), pt)
	c := session.NewConsumer(consumerConfig(consumerDev), ct)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		if err := p.Run(ctx); err != nil {
			util.GetLogger().Debug("producer ended", "error", err)
		}
	}()
	go func() {
		if err := c.Run(ctx); err != nil {
			util.GetLogger().Debug("consumer ended", "error", err)
		}
	}()
	go func() {
		select {
		case <-ctx.Done():
		case err := <-p.Errors():
			color.Red("producer: %v", err)
		}
	}()

	color.Green("running in-process over %s", link)
	return present(ctx, c, source, opts)
}
