package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/arloliu/go-gsender/controller"
	"github.com/arloliu/go-gsender/logger"
)

const metricsNamespace = "gsender"

// session is a connected controller plus its optional metrics server.
type session struct {
	ctrl    *controller.Controller
	metrics *http.Server
}

// openSession connects and waits until the handshake completed.
func (a *app) openSession(ctx context.Context) (*session, error) {
	tcfg, err := a.cfg.transportConfig()
	if err != nil {
		return nil, err
	}

	fw, err := newFirmware(a.cfg.Firmware)
	if err != nil {
		return nil, err
	}

	ctrl, err := controller.New(fw,
		controller.WithLogger(logger.GetLogger()),
		controller.WithStatusPollInterval(a.cfg.PollInterval),
	)
	if err != nil {
		return nil, err
	}

	s := &session{ctrl: ctrl}
	if a.cfg.MetricsAddr != "" {
		s.metrics = serveMetrics(a.cfg.MetricsAddr, ctrl, tcfg.Port(), fw.Name())
	}

	if err := ctrl.Connect(ctx, tcfg); err != nil {
		s.close()
		return nil, err
	}

	// the handshake has no timeout of its own
	waitCtx, cancel := context.WithTimeout(ctx, tcfg.ConnectTimeout()+5*time.Second)
	defer cancel()

	if err := ctrl.WaitForState(waitCtx, controller.Idle); err != nil {
		s.close()
		return nil, fmt.Errorf("waiting for %s identification: %w", fw.Name(), err)
	}

	logger.Info("controller ready", "firmware", ctrl.FirmwareVersion(), "capabilities", ctrl.Capabilities().String())

	return s, nil
}

func (s *session) close() {
	if err := s.ctrl.Disconnect(); err != nil {
		logger.Warn("disconnect", "error", err)
	}

	if s.metrics != nil {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = s.metrics.Shutdown(ctx)
	}
}

func serveMetrics(addr string, ctrl *controller.Controller, port, fw string) *http.Server {
	reg := prometheus.NewRegistry()
	reg.MustRegister(ctrl.Metrics().Collectors(metricsNamespace, prometheus.Labels{"port": port, "firmware": fw})...)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{EnableOpenMetrics: true}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", "addr", addr, "error", err)
		}
	}()
	logger.Info("serving metrics", "addr", addr)

	return srv
}
