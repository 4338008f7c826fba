package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/banshee-data/scanlog/internal/api"
	"github.com/banshee-data/scanlog/internal/fsutil"
	"github.com/banshee-data/scanlog/internal/lms"
	"github.com/banshee-data/scanlog/internal/logconvert"
	"github.com/banshee-data/scanlog/internal/logparse"
	"github.com/banshee-data/scanlog/internal/serialdev"
	"github.com/banshee-data/scanlog/internal/sessionlog"
	"github.com/banshee-data/scanlog/internal/timeutil"
)

func newAcquireCmd(a *app) *cobra.Command {
	var (
		baud int
		sf   sinkFlags
	)
	cmd := &cobra.Command{
		Use:   "acquire",
		Short: "Record a scanner on a serial port and publish its scans",
		Long: `acquire initializes the scanner, polls it on a dedicated thread and
publishes every scan to the configured sinks. The session is journaled
under <logs-root>/<date>/<time>.log in the raw log format, so it can be
converted like any other session. Status is served on --listen under
/api/ and /debug/.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			port := stringFlag(cmd, "port", a.cfg.GetSerialPort())
			if !cmd.Flags().Changed("baud") {
				baud = a.cfg.GetBaudRate()
			}

			opts := a.cfg.PortOptions()
			opts.BaudRate = baud
			dev, err := serialdev.Open(port, opts)
			if err != nil {
				return err
			}
			log.Printf("[Acquire] opened %s at %d baud", port, baud)

			return runAcquisition(cmd.Context(), acquisitionOptions{
				Device:   dev,
				Source:   port,
				Baud:     baud,
				Sensor:   stringFlag(cmd, "sensor", a.cfg.GetSensorComponent()),
				LogsRoot: stringFlag(cmd, "logs-root", a.cfg.GetLogsRoot()),
				Marker:   a.cfg.GetStartMarker(),
				Broadcast: lms.BroadcasterOptions{
					Quantum: a.cfg.GetPollQuantum(),
					Window:  a.cfg.GetWindowInterval(),
				},
				Sinks:  a.sinkDefaults(cmd, sf),
				Listen: stringFlag(cmd, "listen", a.cfg.GetListenAddr()),
			})
		},
	}
	cmd.Flags().StringP("port", "p", "/dev/ttyUSB0", "Serial port of the scanner")
	cmd.Flags().IntVarP(&baud, "baud", "b", lms.DefaultBaud, "Baud rate (9600, 19200 or 38400)")
	cmd.Flags().String("listen", ":8081", "HTTP listen address (empty disables)")
	cmd.Flags().String("logs-root", "logs", "Directory receiving the session journal")
	cmd.Flags().String("sensor", logconvert.DefaultSensorComponent, "Component name of scanner records in the journal")
	addSinkFlags(cmd, &sf)
	return cmd
}

// acquisitionOptions describes one live capture.
type acquisitionOptions struct {
	Device    lms.Device
	Source    string
	Baud      int
	Sensor    string
	LogsRoot  string
	Marker    logparse.StartMarker
	Broadcast lms.BroadcasterOptions
	Sinks     sinkFlags
	// Listen is the HTTP address; empty runs without a server.
	Listen string

	Clock timeutil.Clock
	FS    fsutil.FileSystem
}

// runAcquisition drives device → worker → broadcaster → sinks until ctx is
// done or the device stops. Queued scans are still delivered after ctx is
// cancelled.
func runAcquisition(ctx context.Context, o acquisitionOptions) error {
	if o.Clock == nil {
		o.Clock = timeutil.RealClock{}
	}
	if o.FS == nil {
		o.FS = fsutil.OSFileSystem{}
	}

	journal, closer, path, err := sessionlog.Create(o.FS, o.LogsRoot, o.Clock)
	if err != nil {
		o.Device.Uninitialize()
		return err
	}
	defer closer.Close()
	journal.MarkStart(o.Marker)
	log.Printf("[Acquire] journaling session to %s", path)

	sensor := journal.Component(o.Sensor)
	worker := lms.NewWorker(o.Device, lms.WorkerOptions{Baud: o.Baud, Clock: o.Clock, Journal: sensor})
	o.Broadcast.Clock = o.Clock
	o.Broadcast.Journal = sensor
	hub := lms.NewHub()
	bc := lms.NewBroadcaster(worker, hub, o.Broadcast)

	worker.Start(ctx)
	if err := worker.WaitInitialized(ctx); err != nil {
		worker.Stop()
		<-worker.Done()
		return fmt.Errorf("initialize scanner: %w", err)
	}
	info, _ := worker.Info()
	log.Printf("[Acquire] scanner ready: %.0f degrees at %.2f degree steps, %.2f Hz nominal",
		info.ScanAngle, info.ScanResolution, info.UpdateRate)

	started := float64(o.Clock.Now().UnixNano()) / 1e9
	out, err := attachSinks(ctx, hub, o.Sinks, o.Source, started, info, nil)
	if err != nil {
		worker.Stop()
		<-worker.Done()
		return err
	}
	defer out.Close()

	var wg sync.WaitGroup
	httpCtx, stopHTTP := context.WithCancel(context.Background())
	defer stopHTTP()
	if o.Listen != "" {
		mux := http.NewServeMux()
		api.NewServer(bc, worker, out.history()).Register(mux)
		if out.store != nil {
			if err := out.store.AttachAdminRoutes(mux); err != nil {
				log.Printf("[Acquire] admin routes: %v", err)
			}
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			serveHTTP(httpCtx, o.Listen, api.LoggingMiddleware(mux))
		}()
	}

	// the broadcaster drains the queue after cancellation and returns once
	// the worker is inactive
	if err := bc.Run(context.WithoutCancel(ctx)); err != nil {
		log.Printf("[Acquire] broadcaster: %v", err)
	}
	if err := worker.Err(); err != nil {
		log.Printf("[Acquire] worker: %v", err)
	}
	stats := bc.Stats()
	log.Printf("[Acquire] delivered %d scans, %.2f scans/s average", stats.Delivered, stats.AvgRate)

	stopHTTP()
	wg.Wait()
	return journal.Err()
}

func serveHTTP(ctx context.Context, addr string, h http.Handler) {
	server := &http.Server{
		Addr:    addr,
		Handler: h,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("[Acquire] HTTP server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("shutting down HTTP server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
		if err := server.Close(); err != nil {
			log.Printf("HTTP server force close error: %v", err)
		}
	}
	log.Printf("HTTP server routine stopped")
}
