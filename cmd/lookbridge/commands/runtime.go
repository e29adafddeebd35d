package commands

import (
	"context"
	"sync"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/viper"
	"github.com/teranos/lookbridge/am"
	"github.com/teranos/lookbridge/deeplook"
	"github.com/teranos/lookbridge/errors"
	"github.com/teranos/lookbridge/eventloop"
	"github.com/teranos/lookbridge/host"
	"github.com/teranos/lookbridge/metrics"
	"github.com/teranos/lookbridge/plugin"
	"github.com/teranos/lookbridge/segmentation"
	"github.com/teranos/lookbridge/version"
	"go.uber.org/zap"
)

// connectPollInterval is how often waitConnected asks the extensions
const connectPollInterval = 50 * time.Millisecond

// runtime is one running bridge: the loop, the headless host and the
// registered extensions
type runtime struct {
	loop         *eventloop.Loop
	host         *host.Host
	registry     *plugin.Registry
	deepLook     *deeplook.Extension
	segmentation *segmentation.Extension
	logger       *zap.SugaredLogger

	stopLoop context.CancelFunc
	loopDone chan error
	stopOnce sync.Once

	shutdownOnce sync.Once
	shutdownErr  error
}

// runtimeOptions tune startRuntime for tests and one-shot commands
type runtimeOptions struct {
	viper    *viper.Viper
	recorder *metrics.Registry
	// only, when set, limits the bridge to one extension
	only string
}

// startRuntime builds the host from cfg and initializes every enabled extension
func startRuntime(ctx context.Context, cfg *am.Config, opts runtimeOptions, log *zap.SugaredLogger) (*runtime, error) {
	if opts.recorder == nil {
		opts.recorder = metrics.Get()
	}
	if opts.viper == nil {
		opts.viper = am.GetViper()
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	loop := eventloop.New(log.Named("loop"), eventloop.DefaultQueueSize)
	rt := &runtime{
		loop:     loop,
		registry: plugin.NewRegistry(version.APIVersion),
		logger:   log,
		stopLoop: cancel,
		loopDone: make(chan error, 1),
	}
	rt.registry.SetRecorder(opts.recorder)
	go func() {
		rt.loopDone <- loop.Run(loopCtx)
	}()

	h, err := host.New(cfg.ToHost(), opts.viper, loop, opts.recorder, log.Named("host"))
	if err != nil {
		rt.stop()
		return nil, errors.Wrap(err, "failed to create host")
	}
	h.Notifier().OnShow = renderNotification
	rt.host = h

	if cfg.DeepLook.Enabled && opts.only != segmentation.Name {
		dl, err := cfg.ToDeepLook()
		if err != nil {
			rt.stop()
			return nil, err
		}
		rt.deepLook = deeplook.New(deeplook.WithConfig(dl), deeplook.WithRecorder(opts.recorder))
		if err := rt.registry.Register(rt.deepLook); err != nil {
			rt.stop()
			return nil, err
		}
	}
	if cfg.Segmentation.Enabled && opts.only != deeplook.Name {
		rt.segmentation = segmentation.New(
			segmentation.WithConfig(cfg.ToSegmentation()),
			segmentation.WithRecorder(opts.recorder),
		)
		if err := rt.registry.Register(rt.segmentation); err != nil {
			rt.stop()
			return nil, err
		}
	}
	if len(rt.registry.List()) == 0 {
		rt.stop()
		return nil, errors.New("no extension is enabled")
	}

	if err := rt.registry.InitializeAll(ctx, h); err != nil {
		rt.shutdown(context.Background())
		return nil, err
	}
	return rt, nil
}

// reconfigure applies a reloaded configuration to the running extensions
func (rt *runtime) reconfigure(ctx context.Context, cfg *am.Config) error {
	if rt.deepLook != nil {
		dl, err := cfg.ToDeepLook()
		if err != nil {
			return err
		}
		if err := rt.deepLook.Reconfigure(ctx, dl); err != nil {
			return errors.Wrap(err, "deeplook")
		}
	}
	if rt.segmentation != nil {
		if err := rt.segmentation.Reconfigure(ctx, cfg.ToSegmentation()); err != nil {
			return errors.Wrap(err, "segmentation")
		}
	}
	rt.logger.Infow("Configuration reloaded")
	return nil
}

// waitConnected polls the isConnected command of ext until it reports true
func (rt *runtime) waitConnected(ctx context.Context, ext string) error {
	command := connectedCommand(ext)
	if command == "" {
		return errors.NewNotFoundError("extension %s", ext)
	}

	ticker := time.NewTicker(connectPollInterval)
	defer ticker.Stop()
	for {
		out, err := rt.registry.RunCommand(ctx, command, nil)
		if ctx.Err() != nil {
			return errors.Wrapf(errors.ErrNotConnected, "%s did not connect", ext)
		}
		if err != nil {
			return err
		}
		if connected, _ := out.(bool); connected {
			return nil
		}
		select {
		case <-ctx.Done():
		case <-ticker.C:
		}
	}
}

func connectedCommand(ext string) string {
	switch ext {
	case deeplook.Name:
		return deeplook.CommandIsConnected
	case segmentation.Name:
		return segmentation.CommandIsConnected
	}
	return ""
}

// shutdown stops the extensions and then the loop. Calling it again is safe.
func (rt *runtime) shutdown(ctx context.Context) error {
	rt.shutdownOnce.Do(func() {
		rt.shutdownErr = rt.registry.ShutdownAll(ctx)
		rt.stop()
	})
	return rt.shutdownErr
}

func (rt *runtime) stop() {
	rt.stopOnce.Do(func() {
		rt.stopLoop()
		<-rt.loopDone
	})
}

// renderNotification prints what a viewer would show as a toast
func renderNotification(n plugin.Notification) {
	switch n.Type {
	case plugin.NotificationError:
		pterm.Error.Printfln("%s: %s", n.Title, n.Message)
	case plugin.NotificationWarning:
		pterm.Warning.Printfln("%s: %s", n.Title, n.Message)
	case plugin.NotificationSuccess:
		pterm.Success.Printfln("%s: %s", n.Title, n.Message)
	default:
		pterm.Info.Printfln("%s: %s", n.Title, n.Message)
	}
}
