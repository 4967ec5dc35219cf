package cmd

import (
	"context"
	"fmt"
	"image"
	"image/png"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/babelcloud/holocast/config"
	"github.com/babelcloud/holocast/internal/channel"
	"github.com/babelcloud/holocast/internal/gpu"
	"github.com/babelcloud/holocast/internal/session"
	"github.com/babelcloud/holocast/internal/surface"
	"github.com/babelcloud/holocast/internal/util"
	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

type presentOptions struct {
	connect   string
	transport string
	backend   string
	width     int
	height    int
	fps       int
	duration  time.Duration
	out       string
	uri       string
}

func (o *presentOptions) addFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.IntVar(&o.width, "width", 512, "Surface width in pixels")
	flags.IntVar(&o.height, "height", 512, "Surface height in pixels")
	flags.IntVar(&o.fps, "fps", config.GetDefaultFPS(), "Target capture frame rate")
	flags.DurationVarP(&o.duration, "duration", "d", 5*time.Second, "How long to present (0 runs until interrupted)")
	flags.StringVarP(&o.out, "output", "o", "", "Write the last presented frame to this PNG file")
	flags.StringVar(&o.uri, "uri", "", "Negotiate with a holocast:? URI instead of a source and size flags")
}

// presentSource takes the source from args unless a negotiation URI is
// given; exactly one of the two is required.
func presentSource(args []string, opts *presentOptions) (string, error) {
	switch {
	case opts.uri != "" && len(args) > 0:
		return "", errors.New("pass either a source or --uri, not both")
	case opts.uri != "":
		return "", nil
	case len(args) == 1:
		return args[0], nil
	}
	return "", errors.New("a source or --uri is required")
}

func NewPresentCommand() *cobra.Command {
	opts := &presentOptions{}

	cmd := &cobra.Command{
		Use:   "present [source]",
		Short: "Connect to a producer and present its content",
		Long: `Negotiate a session for source with a running producer, open the shared
surface it captures into and present it on a quad, reporting the producer's
achieved frame rate.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			source, err := presentSource(args, opts)
			if err != nil {
				return err
			}
			return runPresent(cmd.Context(), source, opts)
		},
		Example: `  # Present a page for ten seconds and save the last frame
  holocast present https://example.com -d 10s -o frame.png

  # Negotiate exactly what a host application asked for
  holocast present --uri 'holocast:?id=1&apptype=viewer&sharedtexture=t1&width=512&height=512&source=https%3A%2F%2Fexample.com&fps=60'`,
	}

	opts.addFlags(cmd)
	flags := cmd.Flags()
	flags.StringVarP(&opts.connect, "connect", "c", config.GetListenAddr(), "Producer address")
	flags.StringVarP(&opts.transport, "transport", "t", config.GetTransport(), "Message transport (websocket or smux)")
	flags.StringVar(&opts.backend, "surface-backend", config.GetRemoteSurfaceBackend(), "Shared surface backend (shm or memory)")

	return cmd
}

func dialProducer(ctx context.Context, opts *presentOptions) (channel.Transport, error) {
	switch opts.transport {
	case "websocket":
		return channel.DialWebSocket(ctx, "ws://"+opts.connect+SessionPath)
	case "smux":
		var d net.Dialer
		conn, err := d.DialContext(ctx, "tcp", opts.connect)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to connect to %s", opts.connect)
		}
		t, err := channel.DialSmux(conn)
		if err != nil {
			conn.Close()
			return nil, err
		}
		return t, nil
	}
	return nil, errors.Errorf("unknown transport %q (websocket or smux)", opts.transport)
}

func runPresent(ctx context.Context, source string, opts *presentOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	ns, err := openNamespace(opts.backend)
	if err != nil {
		return err
	}
	t, err := dialProducer(ctx, opts)
	if err != nil {
		return err
	}

	dev := gpu.NewDevice("consumer", ns, gpu.DefaultCapabilities())
	c := session.NewConsumer(consumerConfig(dev), t)
	go func() {
		if err := c.Run(ctx); err != nil {
			util.GetLogger().Warn("connection to producer ended", "error", err)
		}
	}()
	defer c.Close()

	return present(ctx, c, source, opts)
}

// negotiate starts the session from the URI when one is set, otherwise
// from source and the size flags.
func negotiate(ctx context.Context, c *session.Consumer, source string, opts *presentOptions) error {
	if opts.uri != "" {
		return c.NegotiateURI(ctx, opts.uri)
	}
	return c.Negotiate(ctx, source, opts.width, opts.height, opts.fps)
}

// present negotiates and drives the frame loop until the duration elapses,
// ctx ends or the producer stops the session.
func present(ctx context.Context, c *session.Consumer, source string, opts *presentOptions) error {
	if err := negotiate(ctx, c, source, opts); err != nil {
		return err
	}
	p := c.Params()
	fmt.Printf("Presenting %s at %dx%d, stereo path %s\n",
		color.CyanString(p.Source), p.Width, p.Height, c.Presenter().StereoPath())

	var deadline <-chan time.Time
	if opts.duration > 0 {
		deadline = time.After(opts.duration)
	}

	const frameInterval = time.Second / 60
	ticker := time.NewTicker(frameInterval)
	defer ticker.Stop()

	frames := 0
	for {
		select {
		case <-ctx.Done():
			return finishPresent(c, frames, opts.out)
		case <-deadline:
			return finishPresent(c, frames, opts.out)
		case fb := <-c.Feedback():
			fmt.Printf("producer fps %s\n", color.GreenString("%d", fb.FPS))
		case st := <-c.Stopped():
			return errors.Errorf("producer stopped session %s: %s", st.ID, st.Reason)
		case <-ticker.C:
			if _, err := c.Frame(frameInterval, nil); err != nil {
				if !errors.Is(err, surface.ErrSurfaceUnavailable) {
					return err
				}
				color.Yellow("surface became unavailable, renegotiating")
				cur := c.Params()
				if err := c.Resize(ctx, cur.Width, cur.Height); err != nil {
					return err
				}
				continue
			}
			frames++
		}
	}
}

func finishPresent(c *session.Consumer, frames int, out string) error {
	fmt.Printf("Presented %d frames\n", frames)
	if out == "" {
		return nil
	}
	img, err := c.Snapshot()
	if err != nil {
		return errors.Wrap(err, "no frame to write")
	}
	if err := writePNG(out, img); err != nil {
		return err
	}
	fmt.Printf("Last frame written to %s\n", color.CyanString(out))
	return nil
}

func writePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "failed to create %s", path)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		return errors.Wrapf(err, "failed to encode %s", path)
	}
	return nil
}
