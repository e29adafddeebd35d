package commands

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/gorilla/websocket"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"github.com/teranos/lookbridge/companion"
	"github.com/teranos/lookbridge/deeplook"
	"github.com/teranos/lookbridge/errors"
	"github.com/teranos/lookbridge/logger"
	"github.com/teranos/lookbridge/segmentation"
)

var (
	mockVariant string
	mockAddr    string
	mockResult  string
	mockSession []float64
)

// MockCmd serves a fake companion
var MockCmd = &cobra.Command{
	Use:   "mock",
	Short: "Serve a fake companion for local testing",
	Long: `Serve a fake DLPrecise (tag variant) or AI server (json variant).

Every frame received from the bridge is printed. The json variant also
serves /processSeries and /downloadSegmentation on the same port.

Examples:
  lookbridge mock --variant tag --session 120,80   # Play one measuring session
  lookbridge mock --variant json --result seg.dcm  # Hand out seg.dcm as the result`,
	RunE: runMock,
}

func init() {
	MockCmd.Flags().StringVar(&mockVariant, "variant", "tag", "Protocol variant: tag or json")
	MockCmd.Flags().StringVar(&mockAddr, "addr", "", "Listen address (default 127.0.0.1 on the variant's port)")
	MockCmd.Flags().StringVar(&mockResult, "result", "", "File served by /downloadSegmentation (json variant)")
	MockCmd.Flags().Float64SliceVar(&mockSession, "session", nil, "Canvas point x,y to measure once the bridge connects (tag variant)")
}

func runMock(cmd *cobra.Command, args []string) error {
	log := logger.ComponentLogger("mock")
	srv, err := companion.New(mockVariant, log)
	if err != nil {
		return err
	}
	if len(mockSession) != 0 && len(mockSession) != 2 {
		return errors.NewInvalidRequestError("--session takes x,y")
	}

	if mockVariant == "json" {
		result := []byte("lookbridge mock segmentation")
		if mockResult != "" {
			if result, err = os.ReadFile(mockResult); err != nil {
				return errors.Wrapf(err, "failed to read %s", mockResult)
			}
		}
		srv.Mount(companion.NewSegmentation(result, log.Named("http")))
	}

	addr := mockAddr
	if addr == "" {
		addr = defaultMockAddr(mockVariant)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.ListenAndServe(ctx, addr)
	}()
	pterm.Info.Printfln("Fake %s companion on %s (Ctrl+C to stop)", mockVariant, addr)

	go func() {
		if err := printFrames(ctx, srv); err != nil && ctx.Err() == nil {
			pterm.Error.Println(err)
		}
	}()

	return <-errChan
}

// printFrames reports connections and frames until ctx ends
func printFrames(ctx context.Context, srv *companion.Server) error {
	if err := srv.WaitConnected(ctx); err != nil {
		return err
	}
	pterm.Success.Println("Bridge connected")

	if len(mockSession) == 2 {
		res, err := srv.RunSession(ctx, mockSession[0], mockSession[1])
		if err != nil {
			return errors.Wrap(err, "session failed")
		}
		pterm.Success.Printfln("Session done: acquire ack %v, measurement %v, release ack %v",
			res.AcquireAck, res.Measurement, res.ReleaseAck)
	}

	for {
		frame, err := srv.Next(ctx)
		if err != nil {
			return err
		}
		pterm.Info.Println(describeFrame(frame))
	}
}

func describeFrame(f companion.Frame) string {
	if f.Type == websocket.TextMessage {
		return fmt.Sprintf("text %s", f.Data)
	}
	if r, err := f.Reply(); err == nil {
		return fmt.Sprintf("binary %v", r)
	}
	return fmt.Sprintf("binary %d bytes", len(f.Data))
}

func defaultMockAddr(variant string) string {
	port := deeplook.DefaultPort
	if variant == "json" {
		port = segmentation.DefaultPort
	}
	return net.JoinHostPort("127.0.0.1", strconv.Itoa(port))
}
