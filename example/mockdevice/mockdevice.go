// Package mockdevice serves a fake embedded device for the examples and
// manual testing of the CLI.
//
// The device answers GET or POST /status.xml with its current state and
// accepts form-encoded commands on POST /cmd:
//
//	CMD=STATUS            reply with the status document
//	CMD=SET&CDS=4         change the CDS value, then reply
//	ZONE=2&CMD=STATUS     reply with one zone's document
//
// Responses are slow by a configurable random delay and a configurable
// fraction of them fail with HTTP 500, so callers see both timeouts and
// the ordinary ready path.
package mockdevice

import (
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"
)

const maxCommandBytes = 4 << 10

// Options tune the device's misbehaviour. The zero value answers at once
// and never fails.
type Options struct {
	MinLatency time.Duration
	MaxLatency time.Duration

	// FailureRate is the fraction of requests answered with HTTP 500.
	FailureRate float64

	// Zones is the number of zones the device reports. Defaults to 3.
	Zones int

	Logger *slog.Logger
}

// Device is the fake device state.
type Device struct {
	opts Options

	mu    sync.Mutex
	cds   int
	temp  float64
	zones []int
	rng   *rand.Rand
}

type statusDoc struct {
	XMLName xml.Name `xml:"status"`
	CDS     int      `xml:"CDS"`
	Temp    string   `xml:"TEMP"`
	Zones   []zone   `xml:"zones>zone"`
}

type zone struct {
	ID    int `xml:"ZONE"`
	Level int `xml:"LEVEL"`
}

type zoneDoc struct {
	XMLName xml.Name `xml:"zone"`
	ID      int      `xml:"ZONE"`
	Level   int      `xml:"LEVEL"`
}

// New creates a Device.
func New(opts Options) *Device {
	if opts.Zones <= 0 {
		opts.Zones = 3
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Device{
		opts:  opts,
		cds:   3,
		temp:  21.5,
		zones: make([]int, opts.Zones),
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Handler returns the device's HTTP routes.
func (d *Device) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/status.xml", d.handleStatus)
	mux.HandleFunc("POST /cmd", d.handleCommand)
	return mux
}

// CDS returns the current CDS value.
func (d *Device) CDS() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cds
}

func (d *Device) handleStatus(w http.ResponseWriter, r *http.Request) {
	if !d.misbehave(w) {
		return
	}
	d.writeXML(w, d.status())
}

func (d *Device) handleCommand(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxCommandBytes))
	if err != nil {
		http.Error(w, "command too large", http.StatusRequestEntityTooLarge)
		return
	}
	values, err := url.ParseQuery(string(raw))
	if err != nil {
		http.Error(w, "malformed command", http.StatusBadRequest)
		return
	}

	if !d.misbehave(w) {
		return
	}

	switch values.Get("CMD") {
	case "", "STATUS":
	case "SET":
		if err := d.apply(values); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	default:
		http.Error(w, "unknown command", http.StatusBadRequest)
		return
	}

	if z := values.Get("ZONE"); z != "" {
		doc, err := d.zone(z)
		if err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		d.writeXML(w, doc)
		return
	}
	d.writeXML(w, d.status())
}

// misbehave sleeps and maybe fails the request. It returns false when the
// response has already been written.
func (d *Device) misbehave(w http.ResponseWriter) bool {
	d.mu.Lock()
	delay := d.opts.MinLatency
	if spread := d.opts.MaxLatency - d.opts.MinLatency; spread > 0 {
		delay += time.Duration(d.rng.Int63n(int64(spread)))
	}
	fail := d.opts.FailureRate > 0 && d.rng.Float64() < d.opts.FailureRate
	d.mu.Unlock()

	time.Sleep(delay)
	if fail {
		http.Error(w, "device busy", http.StatusInternalServerError)
		return false
	}
	return true
}

func (d *Device) apply(values url.Values) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if v := values.Get("CDS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid CDS %q", v)
		}
		d.opts.Logger.Info("cds changed", "from", d.cds, "to", n)
		d.cds = n
	}
	if z, l := values.Get("ZONE"), values.Get("LEVEL"); z != "" && l != "" {
		id, err := strconv.Atoi(z)
		if err != nil || id < 1 || id > len(d.zones) {
			return fmt.Errorf("invalid ZONE %q", z)
		}
		level, err := strconv.Atoi(l)
		if err != nil {
			return fmt.Errorf("invalid LEVEL %q", l)
		}
		d.zones[id-1] = level
	}
	return nil
}

func (d *Device) status() statusDoc {
	d.mu.Lock()
	defer d.mu.Unlock()

	// drift a little so repeated reads show movement
	d.temp += (d.rng.Float64() - 0.5) / 10

	doc := statusDoc{
		CDS:  d.cds,
		Temp: strconv.FormatFloat(d.temp, 'f', 1, 64),
	}
	for i, level := range d.zones {
		doc.Zones = append(doc.Zones, zone{ID: i + 1, Level: level})
	}
	return doc
}

func (d *Device) zone(raw string) (zoneDoc, error) {
	id, err := strconv.Atoi(raw)

	d.mu.Lock()
	defer d.mu.Unlock()
	if err != nil || id < 1 || id > len(d.zones) {
		return zoneDoc{}, fmt.Errorf("no zone %q", raw)
	}
	return zoneDoc{ID: id, Level: d.zones[id-1]}, nil
}

func (d *Device) writeXML(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "text/xml; charset=utf-8")
	_, _ = io.WriteString(w, xml.Header)
	if err := xml.NewEncoder(w).Encode(v); err != nil {
		d.opts.Logger.Error("failed to write response", "error", err)
	}
}
