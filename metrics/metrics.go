// Package metrics exposes bridge counters to Prometheus.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/eddielth/vbox-mqtt/config"
	"github.com/eddielth/vbox-mqtt/logger"
)

// Result label values
const (
	ResultOK      = "ok"
	ResultFailed  = "failed"
	ResultTimeout = "timeout"
	ResultIgnored = "ignored"
	ResultSkipped = "skipped"
)

const namespace = "vbox_mqtt"

// Registry holds every collector served on the metrics endpoint
var Registry = prometheus.NewRegistry()

var (
	cliCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cli_calls_total",
		Help:      "VBoxManage invocations by result.",
	}, []string{"result"})

	commands = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "commands_total",
		Help:      "Commands received on the command topic by action and result.",
	}, []string{"action", "result"})

	publishes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "publishes_total",
		Help:      "MQTT publishes by result.",
	}, []string{"result"})

	vmState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "vm_state",
		Help:      "1 for the current normalized state of each VM, 0 otherwise.",
	}, []string{"vm", "state"})
)

func init() {
	Registry.MustRegister(
		cliCalls,
		commands,
		publishes,
		vmState,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// CLICall counts one VBoxManage invocation
func CLICall(result string) {
	cliCalls.WithLabelValues(result).Inc()
}

// Command counts one inbound command
func Command(action, result string) {
	commands.WithLabelValues(action, result).Inc()
}

// Publish counts one publish attempt
func Publish(err error) {
	if err != nil {
		publishes.WithLabelValues(ResultFailed).Inc()
		return
	}
	publishes.WithLabelValues(ResultOK).Inc()
}

// PublishSkipped counts a publish dropped because the broker is offline
func PublishSkipped() {
	publishes.WithLabelValues(ResultSkipped).Inc()
}

// SetVMState marks state as current for vm and clears the others in states
func SetVMState(vm, state string, states []string) {
	for _, s := range states {
		v := 0.0
		if s == state {
			v = 1
		}
		vmState.WithLabelValues(vm, s).Set(v)
	}
}

// ForgetVM drops every state series of a VM that is gone or filtered out
func ForgetVM(vm string) {
	vmState.DeletePartialMatch(prometheus.Labels{"vm": vm})
}

// Handler serves the registry
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{Registry: Registry})
}

// Serve runs the metrics endpoint until ctx is cancelled. It returns
// immediately when no listen address is configured.
func Serve(ctx context.Context, cfg config.MetricsConfig) error {
	if cfg.Listen == "" {
		return nil
	}

	path := cfg.Path
	if path == "" {
		path = "/metrics"
	}

	mux := http.NewServeMux()
	mux.Handle(path, Handler())
	server := &http.Server{
		Addr:              cfg.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	logger.Info("serving metrics on %s%s", cfg.Listen, path)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
