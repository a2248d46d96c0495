package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"sync"
	"text/tabwriter"
	"time"

	"go.uber.org/zap"

	"github.com/banshee-data/tfluna/internal/db"
	"github.com/banshee-data/tfluna/internal/luna"
	"github.com/banshee-data/tfluna/internal/metrics"
	"github.com/banshee-data/tfluna/internal/serialmux"
	"github.com/banshee-data/tfluna/internal/units"
)

// withSensor opens the sensor, applies setup, runs Monitor in the
// background and calls fn. The sensor is closed when fn returns.
func (a *app) withSensor(ctx context.Context, setup func(sensor), fn func(context.Context, sensor) error) error {
	s, err := a.sensor()
	if err != nil {
		return err
	}
	if setup != nil {
		setup(s)
	}
	return a.runSensor(ctx, s, fn)
}

// tagFirmware stores the device firmware on the session. Failures are only
// logged; recording goes ahead without the tag.
func (a *app) tagFirmware(ctx context.Context, s sensor, store *db.DB, sessionID string) {
	v, err := s.GetVersion(ctx)
	if err != nil {
		a.log.Warn("firmware query failed", zap.Error(err))
		return
	}
	if err := store.SetSessionFirmware(sessionID, v.String()); err != nil {
		a.log.Warn("failed to store firmware version", zap.String("session", sessionID), zap.Error(err))
	}
}

func (a *app) runSensor(ctx context.Context, s sensor, fn func(context.Context, sensor) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg         sync.WaitGroup
		monitorErr error
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		// a dead port must not leave fn waiting on a command
		defer cancel()
		if err := s.Monitor(ctx); err != nil && !errors.Is(err, context.Canceled) {
			monitorErr = err
		}
		a.log.Debug("monitor routine terminated")
	}()

	err := fn(ctx, s)
	cancel()
	if cerr := s.Close(); cerr != nil {
		a.log.Warn("closing sensor", zap.Error(cerr))
	}
	wg.Wait()

	if monitorErr != nil {
		return errors.Join(err, fmt.Errorf("monitor: %w", monitorErr))
	}
	return err
}

func (a *app) handleStream(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("stream", flag.ExitOnError)
	record := fs.Bool("record", false, "Store frames and command cycles in the database")
	count := fs.Int("count", 0, "Stop after this many frames (0 streams until interrupted)")
	fahrenheit := fs.Bool("fahrenheit", false, "Print temperatures in Fahrenheit")
	unit := fs.String("units", units.CM, "Distance units: "+units.GetValidUnitsString())
	fs.Parse(args)

	if !units.IsValid(*unit) {
		return fmt.Errorf("%w: invalid units %q, expected one of %s", errUsage, *unit, units.GetValidUnitsString())
	}

	var (
		store   *db.DB
		session db.Session
	)
	if *record {
		var err error
		store, err = db.NewDB(a.cfg.DB.Path)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer store.Close()
		session, err = store.CreateSession(a.cfg.Serial.Port, a.cfg.Serial.BaudRate)
		if err != nil {
			return err
		}
		a.log.Info("recording session", zap.String("session", session.ID), zap.String("db", a.cfg.DB.Path))
	}

	setup := func(s sensor) {
		if store != nil {
			s.OnCommand(serialmux.CommandRecorder(store, session.ID))
		}
	}

	return a.withSensor(ctx, setup, func(ctx context.Context, s sensor) error {
		id, c := s.Subscribe()
		defer s.Unsubscribe(id)

		if store != nil {
			if v, err := s.GetVersion(ctx); err != nil {
				a.log.Warn("firmware query failed", zap.Error(err))
			} else if err := store.SetSessionFirmware(session.ID, v.String()); err != nil {
				return err
			}
		}

		for n := 0; *count == 0 || n < *count; n++ {
			select {
			case <-ctx.Done():
				return nil
			case r, ok := <-c:
				if !ok {
					return nil
				}
				fmt.Fprintln(a.out, formatReading(r, *unit, *fahrenheit))
				if store != nil {
					if err := serialmux.HandleReading(store, session.ID, r); err != nil {
						return err
					}
				}
			}
		}
		return nil
	})
}

func formatReading(r luna.Reading, unit string, fahrenheit bool) string {
	if unit == units.CM && !fahrenheit {
		return r.String()
	}
	temp, scale := r.Frame.TemperatureCelsius(), "C"
	if fahrenheit {
		temp, scale = r.Frame.TemperatureFahrenheit(), "F"
	}
	return fmt.Sprintf("distance=%.*f%s strength=%d temp=%.2f%s checksum=%02X/%02X status=%s",
		units.Precision(unit), units.ConvertDistance(float64(r.Frame.Distance), unit), unit,
		r.Frame.Strength, temp, scale, r.Frame.Checksum, r.Expected, r.Status)
}

func (a *app) handleVersion(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("version", flag.ExitOnError)
	fs.Parse(args)

	return a.withSensor(ctx, nil, func(ctx context.Context, s sensor) error {
		v, err := s.GetVersion(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "firmware %s\n", v)
		return nil
	})
}

func (a *app) handleSetFreq(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("set-freq", flag.ExitOnError)
	hz := fs.Int("hz", -1, "Output rate in Hz (0 selects trigger mode)")
	fs.Parse(args)

	if *hz < 0 || *hz > 0xFFFF {
		return fmt.Errorf("%w: set-freq needs --hz between 0 and 65535", errUsage)
	}
	return a.withSensor(ctx, nil, func(ctx context.Context, s sensor) error {
		if err := s.SetSampleFrequency(ctx, uint16(*hz)); err != nil {
			return err
		}
		fmt.Fprintf(a.out, "sample frequency set to %d Hz\n", *hz)
		return nil
	})
}

func (a *app) handleSetDivisor(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("set-divisor", flag.ExitOnError)
	divisor := fs.Int("divisor", -1, fmt.Sprintf("Output rate divisor of %d Hz, %d-%d (0 selects trigger mode)",
		luna.BaseSampleFrequency, luna.MinSampleDivisor, luna.MaxSampleDivisor))
	fs.Parse(args)

	if *divisor < 0 || *divisor > 0xFFFF {
		return fmt.Errorf("%w: set-divisor needs --divisor", errUsage)
	}
	return a.withSensor(ctx, nil, func(ctx context.Context, s sensor) error {
		var freq uint16
		err := s.Do(ctx, func(c *luna.Client) error {
			if err := c.SetSampleDivisor(uint16(*divisor)); err != nil {
				return err
			}
			freq = c.SampleFrequency()
			return nil
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "sample frequency set to %d Hz\n", freq)
		return nil
	})
}

func (a *app) handleTrigger(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("trigger", flag.ExitOnError)
	fs.Parse(args)

	return a.withSensor(ctx, nil, func(ctx context.Context, s sensor) error {
		if err := s.Do(ctx, (*luna.Client).SetTriggerMode); err != nil {
			return err
		}
		fmt.Fprintln(a.out, "trigger mode enabled")
		return nil
	})
}

func (a *app) handleReset(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("reset", flag.ExitOnError)
	fs.Parse(args)

	return a.withSensor(ctx, nil, func(ctx context.Context, s sensor) error {
		if err := s.Do(ctx, (*luna.Client).SoftReset); err != nil {
			return err
		}
		fmt.Fprintln(a.out, "sensor reset")
		return nil
	})
}

func (a *app) handleServe(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	listen := fs.String("listen", a.cfg.HTTP.Listen, "Listen address")
	record := fs.Bool("record", false, "Store frames and command cycles in the database")
	disableSensor := fs.Bool("disable-sensor", false, "Run without a sensor (stored sessions and SQL console only)")
	fs.Parse(args)

	store, err := db.NewDB(a.cfg.DB.Path)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer store.Close()

	var s sensor
	if *disableSensor {
		s = serialmux.NewDisabledSerialMux()
	} else if s, err = a.sensor(); err != nil {
		return err
	}

	mux := http.NewServeMux()
	if a.cfg.Metrics.Enable {
		reg := metrics.NewRegistry()
		s.UseMetrics(metrics.NewLunaMetrics(reg))
		mux.Handle("/metrics", metrics.Handler(reg))
	}

	var session db.Session
	if *record && !*disableSensor {
		if session, err = store.CreateSession(a.cfg.Serial.Port, a.cfg.Serial.BaudRate); err != nil {
			return err
		}
		s.OnCommand(serialmux.CommandRecorder(store, session.ID))
		a.log.Info("recording session", zap.String("session", session.ID))
	}

	s.AttachAdminRoutes(mux)
	if err := store.AttachAdminRoutes(mux); err != nil {
		return err
	}

	return a.runSensor(ctx, s, func(ctx context.Context, s sensor) error {
		var wg sync.WaitGroup

		if session.ID != "" {
			wg.Add(1)
			go func() {
				defer wg.Done()
				a.tagFirmware(ctx, s, store, session.ID)
				if err := serialmux.RecordReadings(ctx, s, store, session.ID); err != nil {
					a.log.Error("recording stopped", zap.Error(err))
				}
				a.log.Debug("record routine terminated")
			}()
		}

		h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			a.log.Debug("got request", zap.String("path", r.URL.Path))
			mux.ServeHTTP(w, r)
		})
		server := &http.Server{
			Addr:    *listen,
			Handler: h,
		}

		serveErr := make(chan error, 1)
		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				serveErr <- err
			}
			close(serveErr)
		}()
		a.log.Info("serving", zap.String("listen", *listen))

		// Wait for context cancellation to shut down server
		var err error
		select {
		case <-ctx.Done():
		case err = <-serveErr:
		}
		a.log.Info("shutting down HTTP server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if serr := server.Shutdown(shutdownCtx); serr != nil {
			a.log.Warn("HTTP server shutdown error", zap.Error(serr))
			// Force close the server if graceful shutdown fails
			server.Close()
		}

		wg.Wait()
		a.log.Info("graceful shutdown complete")
		return err
	})
}

func (a *app) handleSessions(args []string) error {
	fs := flag.NewFlagSet("sessions", flag.ExitOnError)
	limit := fs.Int("limit", 20, "Number of sessions to list")
	fs.Parse(args)

	store, err := db.NewDB(a.cfg.DB.Path)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer store.Close()

	sessions, err := store.Sessions(*limit)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SESSION\tSTARTED\tPORT\tBAUD\tFIRMWARE")
	for _, s := range sessions {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", s.ID, s.StartedAt.Format(time.RFC3339), s.Port, s.BaudRate, s.Firmware)
	}
	return tw.Flush()
}

func (a *app) handleStats(args []string) error {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	sessionID := fs.String("session", "", "Session id (default latest)")
	unit := fs.String("units", units.CM, "Distance units: "+units.GetValidUnitsString())
	fs.Parse(args)

	if !units.IsValid(*unit) {
		return fmt.Errorf("%w: invalid units %q, expected one of %s", errUsage, *unit, units.GetValidUnitsString())
	}

	store, err := db.NewDB(a.cfg.DB.Path)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer store.Close()

	if *sessionID == "" {
		latest, err := store.Sessions(1)
		if err != nil {
			return err
		}
		if len(latest) == 0 {
			return errors.New("no recorded sessions")
		}
		*sessionID = latest[0].ID
	}

	st, err := store.SessionStats(*sessionID)
	if err != nil {
		return err
	}
	fmt.Fprint(a.out, formatStats(st, *unit))
	return nil
}

func formatStats(st db.SessionStats, unit string) string {
	p := units.Precision(unit)
	d := func(cm float64) float64 { return units.ConvertDistance(cm, unit) }
	return fmt.Sprintf(`session:          %s
frames:           %d
checksum errors:  %d (%.2f%%)
distance mean:    %.*f %s
distance stddev:  %.*f %s
distance median:  %.*f %s
distance range:   %.*f-%.*f %s
strength mean:    %.0f
temperature mean: %.2f C
`,
		st.SessionID, st.Frames, st.ChecksumErrors, st.ErrorRate()*100,
		p+1, d(st.MeanDistanceCM), unit,
		p+1, d(st.StdDevDistanceCM), unit,
		p+1, d(st.MedianDistanceCM), unit,
		p, d(st.MinDistanceCM), p, d(st.MaxDistanceCM), unit,
		st.MeanStrength, st.MeanTemperatureC)
}
