// Package dashboard exposes a CostHandler's live state over HTTP, for
// operators who want to poke at an in-progress placement run from a
// browser instead of reading log output.
package dashboard

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"runtime/pprof"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/google/pprof/profile"
	"github.com/pkg/browser"
	"github.com/shirou/gopsutil/process"
	"github.com/syifan/goseth"

	"github.com/RonZ13/vtr-noc-placer/noc/placement"
)

// Dashboard serves read-only introspection endpoints for a CostHandler.
// Grounded on monitoring.Monitor, trimmed to the handful of endpoints
// that make sense for an offline cost engine with no engine to pause or
// continue.
type Dashboard struct {
	handler    *placement.CostHandler
	portNumber int
	profileFor time.Duration
}

// New creates a Dashboard that serves state from handler.
func New(handler *placement.CostHandler) *Dashboard {
	return &Dashboard{handler: handler, profileFor: time.Second}
}

// WithPortNumber sets the TCP port the dashboard listens on. Ports below
// 1000 are refused and a random port is assigned instead, matching
// Monitor.WithPortNumber.
func (d *Dashboard) WithPortNumber(portNumber int) *Dashboard {
	if portNumber < 1000 {
		fmt.Fprintf(os.Stderr,
			"port %d is not allowed for the dashboard server, using a random port instead\n", portNumber)
		portNumber = 0
	}

	d.portNumber = portNumber

	return d
}

// WithProfileDuration sets how long the /api/profile endpoint samples
// the CPU profile for before returning it.
func (d *Dashboard) WithProfileDuration(dur time.Duration) *Dashboard {
	d.profileFor = dur

	return d
}

// StartServer starts the dashboard as a background HTTP server and opens
// it in the default browser. Grounded on Monitor.StartServer.
func (d *Dashboard) StartServer() error {
	r := mux.NewRouter()
	r.HandleFunc("/api/state", d.state)
	r.HandleFunc("/api/congestion", d.congestion)
	r.HandleFunc("/api/resource", d.resource)
	r.HandleFunc("/api/profile", d.profile)

	actualPort := ":0"
	if d.portNumber >= 1000 {
		actualPort = ":" + strconv.Itoa(d.portNumber)
	}

	listener, err := net.Listen("tcp", actualPort)
	if err != nil {
		return fmt.Errorf("noc dashboard: listening on %s: %w", actualPort, err)
	}

	url := fmt.Sprintf("http://localhost:%d", listener.Addr().(*net.TCPAddr).Port)
	fmt.Fprintf(os.Stderr, "noc dashboard serving at %s\n", url)

	go func() {
		if err := http.Serve(listener, r); err != nil {
			fmt.Fprintf(os.Stderr, "noc dashboard: server stopped: %v\n", err)
		}
	}()

	if err := browser.OpenURL(url); err != nil {
		fmt.Fprintf(os.Stderr, "noc dashboard: could not open browser: %v\n", err)
	}

	return nil
}

// state reports the current committed cost terms, serialized with goseth
// the way Monitor.listComponentDetails serializes a component.
func (d *Dashboard) state(w http.ResponseWriter, _ *http.Request) {
	terms := d.handler.CommittedCostTerms()

	serializer := goseth.NewSerializer()
	serializer.SetRoot(&terms)
	serializer.SetMaxDepth(1)

	if err := serializer.Serialize(w); err != nil {
		dieOnErr(w, err)
	}
}

// congestion reports the n most bandwidth-congested links, descending,
// plus the handler's aggregate congestion ratio. n comes from the "top"
// query parameter and defaults to the number of links currently over
// their committed congestion threshold.
func (d *Dashboard) congestion(w http.ResponseWriter, r *http.Request) {
	n := d.handler.CongestedLinkCount()

	if raw := r.URL.Query().Get("top"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			n = parsed
		}
	}

	rsp := struct {
		CongestedLinks []placement.LinkID `json:"congested_links"`
		Ratio          float64            `json:"total_congestion_bandwidth_ratio"`
	}{
		CongestedLinks: d.handler.CongestedLinks(n),
		Ratio:          d.handler.TotalCongestionBandwidthRatio(),
	}

	bytes, err := json.Marshal(rsp)
	if err != nil {
		dieOnErr(w, err)
		return
	}

	if _, err := w.Write(bytes); err != nil {
		dieOnErr(w, err)
	}
}

type resourceRsp struct {
	CPUPercent float64 `json:"cpu_percent"`
	MemorySize uint64  `json:"memory_size"`
}

// resource reports the CPU and memory usage of the current process,
// grounded on Monitor.listResources.
func (d *Dashboard) resource(w http.ResponseWriter, _ *http.Request) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		dieOnErr(w, err)
		return
	}

	cpuPercent, err := proc.CPUPercent()
	if err != nil {
		dieOnErr(w, err)
		return
	}

	memoryInfo, err := proc.MemoryInfo()
	if err != nil {
		dieOnErr(w, err)
		return
	}

	rsp := resourceRsp{CPUPercent: cpuPercent, MemorySize: memoryInfo.RSS}

	bytes, err := json.Marshal(rsp)
	if err != nil {
		dieOnErr(w, err)
		return
	}

	if _, err := w.Write(bytes); err != nil {
		dieOnErr(w, err)
	}
}

// profile captures a CPU profile of the running process and returns it
// as JSON, grounded on Monitor.collectProfile.
func (d *Dashboard) profile(w http.ResponseWriter, _ *http.Request) {
	buf := bytes.NewBuffer(nil)

	if err := pprof.StartCPUProfile(buf); err != nil {
		dieOnErr(w, err)
		return
	}

	time.Sleep(d.profileFor)
	pprof.StopCPUProfile()

	prof, err := profile.ParseData(buf.Bytes())
	if err != nil {
		dieOnErr(w, err)
		return
	}

	bytes, err := json.Marshal(prof)
	if err != nil {
		dieOnErr(w, err)
		return
	}

	if _, err := w.Write(bytes); err != nil {
		dieOnErr(w, err)
	}
}

func dieOnErr(w http.ResponseWriter, err error) {
	w.WriteHeader(http.StatusInternalServerError)
	fmt.Fprintf(w, "error: %v", err)
}
