// Command isrsrv exposes the instrument signature removal pipeline over
// HTTP.  Clients POST a raw FITS frame to /process and get the corrected
// frame back; calibration products are loaded once at startup and shared
// read-only across requests.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	"log"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi"
	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	yml "gopkg.in/yaml.v2"

	"github.com/oir-lab/goisr/calib"
	"github.com/oir-lab/goisr/img"
	"github.com/oir-lab/goisr/isr"
	"github.com/oir-lab/goisr/rec"
)

var (
	// Version is the version number.  Typically injected via ldflags with git build
	Version = "1"

	// ConfigFileName is what it sounds like
	ConfigFileName = "isrsrv.yml"
	k              = koanf.New(".")

	exposuresProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "isr_exposures_processed_total",
		Help: "Exposures corrected successfully.",
	})
	exposuresFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "isr_exposures_failed_total",
		Help: "Exposures whose correction failed.",
	})
	processSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "isr_process_seconds",
		Help:    "Wall time of one pipeline run.",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
	})
)

// Box is a half-open pixel rectangle in the configuration file.
type Box struct {
	X0 int `koanf:"x0" yaml:"x0"`
	Y0 int `koanf:"y0" yaml:"y0"`
	X1 int `koanf:"x1" yaml:"x1"`
	Y1 int `koanf:"y1" yaml:"y1"`
}

// Rect converts the box to an image.Rectangle.
func (b Box) Rect() image.Rectangle {
	return image.Rect(b.X0, b.Y0, b.X1, b.Y1)
}

// AmpSetup describes one amplifier of the camera being served.
type AmpSetup struct {
	Name             string  `koanf:"name" yaml:"name"`
	Raw              Box     `koanf:"raw" yaml:"raw"`
	Data             Box     `koanf:"data" yaml:"data"`
	Det              Box     `koanf:"det" yaml:"det"`
	SerialOverscan   Box     `koanf:"serialOverscan" yaml:"serialOverscan"`
	ParallelOverscan Box     `koanf:"parallelOverscan" yaml:"parallelOverscan"`
	Gain             float64 `koanf:"gain" yaml:"gain"`
	ReadNoise        float64 `koanf:"readNoise" yaml:"readNoise"`
	Saturation       float64 `koanf:"saturation" yaml:"saturation"`
}

// CalibSetup locates the calibration products, as in isrproc.
type CalibSetup struct {
	Bias      string `koanf:"bias" yaml:"bias"`
	Dark      string `koanf:"dark" yaml:"dark"`
	Flat      string `koanf:"flat" yaml:"flat"`
	Illum     string `koanf:"illum" yaml:"illum"`
	Defects   string `koanf:"defects" yaml:"defects"`
	Crosstalk string `koanf:"crosstalk" yaml:"crosstalk"`

	FetchTimeoutSec int `koanf:"fetchTimeoutSec" yaml:"fetchTimeoutSec"`
}

// Config is the complete isrsrv configuration.
type Config struct {
	Addr       string     `koanf:"addr" yaml:"addr"`
	Detector   string     `koanf:"detector" yaml:"detector"`
	Amps       []AmpSetup `koanf:"amps" yaml:"amps"`
	Pipeline   isr.Config `koanf:"pipeline" yaml:"pipeline"`
	Calib      CalibSetup `koanf:"calib" yaml:"calib"`
	RateLimit  float64    `koanf:"rateLimit" yaml:"rateLimit"`
	RateBurst  int        `koanf:"rateBurst" yaml:"rateBurst"`
	RecordRoot string     `koanf:"recordRoot" yaml:"recordRoot"`
}

func defaults() Config {
	return Config{
		Addr:      ":8080",
		Detector:  "DET0",
		Pipeline:  isr.DefaultConfig(),
		Calib:     CalibSetup{FetchTimeoutSec: 10},
		RateLimit: 2,
		RateBurst: 4,
	}
}

func setupconfig() {
	k.Load(structs.Provider(defaults(), "koanf"), nil)
	if err := k.Load(file.Provider(ConfigFileName), yaml.Parser()); err != nil {
		errtxt := err.Error()
		if !strings.Contains(errtxt, "no such") { // file missing, who cares
			log.Fatalf("error loading config: %v", err)
		}
	}
}

func root() {
	str := `isrsrv runs the instrument signature removal pipeline behind an HTTP
interface so clients in any language can correct raw frames.

Usage:
	isrsrv <command>

Commands:
	run
	help
	mkconf
	conf
	version`
	fmt.Println(str)
}

func help() {
	str := `isrsrv is amenable to configuration via its .yaml file.  For a primer on
YAML, see https://yaml.org/start.html

Endpoints:
	POST /process     raw FITS body in, corrected FITS out
	GET  /provenance  metadata of the last corrected exposure, as JSON
	GET  /metrics     Prometheus metrics
	POST /autowrite/* recorder controls (root, prefix, enabled)

Requests beyond the configured rate limit receive 429.  The camera geometry
and calibration products are configured exactly as for isrproc; see
"isrproc help".`
	fmt.Println(str)
}

func mkconf() {
	c := Config{}
	err := k.Unmarshal("", &c)
	if err != nil {
		log.Fatal(err)
	}
	f, err := os.Create(ConfigFileName)
	if err != nil {
		log.Fatal(err)
	}
	defer f.Close()
	err = yml.NewEncoder(f).Encode(c)
	if err != nil {
		log.Fatal(err)
	}
}

func printconf() {
	c := Config{}
	k.Unmarshal("", &c)
	err := yml.NewEncoder(os.Stdout).Encode(c)
	if err != nil {
		log.Fatal(err)
	}
}

func pversion() {
	fmt.Printf("isrsrv version %v\n", Version)
}

// server holds the shared, read-only pieces of the service.  Each request
// builds its own exposure, so concurrent processing needs no locking beyond
// the last-provenance record.
type server struct {
	pipeline *isr.Pipeline
	inputs   isr.Inputs
	det      *img.Detector
	recorder *rec.Recorder
	rawRec   *rec.Recorder

	mu       sync.Mutex
	lastMeta img.Metadata
}

func detector(c Config) (*img.Detector, error) {
	det := &img.Detector{Name: c.Detector}
	for _, a := range c.Amps {
		det.Amps = append(det.Amps, img.Amp{
			Name:             a.Name,
			RawBounds:        a.Raw.Rect(),
			DataBounds:       a.Data.Rect(),
			DetBounds:        a.Det.Rect(),
			SerialOverscan:   a.SerialOverscan.Rect(),
			ParallelOverscan: a.ParallelOverscan.Rect(),
			Gain:             a.Gain,
			ReadNoise:        a.ReadNoise,
			Saturation:       a.Saturation,
		})
	}
	return det, det.Validate()
}

func loadFrame(path string, kind calib.Kind, timeout time.Duration) (*calib.Frame, error) {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return calib.Fetch(path, kind, timeout)
	}
	return calib.LoadFrame(path, kind)
}

func loadInputs(c Config) (isr.Inputs, error) {
	var in isr.Inputs
	timeout := time.Duration(c.Calib.FetchTimeoutSec) * time.Second
	specs := []struct {
		path string
		kind calib.Kind
		dst  **calib.Frame
	}{
		{c.Calib.Bias, calib.KindBias, &in.Bias},
		{c.Calib.Dark, calib.KindDark, &in.Dark},
		{c.Calib.Flat, calib.KindFlat, &in.Flat},
		{c.Calib.Illum, calib.KindIllum, &in.Illum},
	}
	for _, s := range specs {
		if s.path == "" {
			continue
		}
		f, err := loadFrame(s.path, s.kind, timeout)
		if err != nil {
			return in, err
		}
		*s.dst = f
	}
	if c.Calib.Defects != "" {
		d, err := calib.LoadDefects(c.Calib.Defects)
		if err != nil {
			return in, err
		}
		in.Defects = d
	}
	if c.Calib.Crosstalk != "" {
		m, err := calib.LoadCrosstalk(c.Calib.Crosstalk)
		if err != nil {
			return in, err
		}
		in.Crosstalk = m
	}
	return in, nil
}

// process corrects one raw frame posted as the request body.
func (s *server) process(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(r.Body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	f, err := calib.ReadFrame(bytes.NewReader(buf.Bytes()), "raw")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	raw := img.NewExposure(f.Image.Rect, s.det)
	if err := raw.Image.CopyFrom(f.Image); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	raw.Meta = f.Meta

	start := time.Now()
	e, err := s.pipeline.Run(raw, s.inputs)
	if err != nil {
		exposuresFailed.Inc()
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	processSeconds.Observe(time.Since(start).Seconds())
	exposuresProcessed.Inc()

	s.mu.Lock()
	s.lastMeta = e.Meta.Clone()
	s.mu.Unlock()

	if s.recorder != nil && s.recorder.Enabled {
		// the request body is already an encoded FITS file, so the raw
		// side goes through the recorder's io.Writer entry point
		if _, err := s.rawRec.Write(buf.Bytes()); err != nil {
			log.Printf("recording raw frame: %v", err)
		} else {
			s.rawRec.Incr()
		}
		if _, err := s.recorder.SaveExposure(e); err != nil {
			log.Printf("recording corrected frame: %v", err)
		} else {
			s.recorder.Incr()
		}
	}

	w.Header().Set("Content-Type", "application/fits")
	if err := calib.WriteImage(w, e.Image, e.Meta); err != nil {
		log.Printf("writing response: %v", err)
	}
}

// provenance returns the metadata of the last corrected exposure.
func (s *server) provenance(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	meta := s.lastMeta
	s.mu.Unlock()
	if meta == nil {
		http.Error(w, "no exposure processed yet", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(meta)
}

// limit rejects requests beyond the configured rate with 429.
func limit(l *rate.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !l.Allow() {
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func run() {
	c := Config{}
	if err := k.Unmarshal("", &c); err != nil {
		log.Fatal(err)
	}
	p, err := isr.New(c.Pipeline, nil)
	if err != nil {
		log.Fatalf("bad pipeline configuration: %v", err)
	}
	det, err := detector(c)
	if err != nil {
		log.Fatalf("bad detector geometry: %v", err)
	}
	in, err := loadInputs(c)
	if err != nil {
		log.Fatalf("loading calibration products: %v", err)
	}

	s := &server{pipeline: p, inputs: in, det: det}
	if c.RecordRoot != "" {
		s.recorder = &rec.Recorder{Root: c.RecordRoot, Prefix: "isr_", Enabled: true}
		s.recorder.Incr()
		s.rawRec = &rec.Recorder{Root: c.RecordRoot, Prefix: "raw_", Enabled: true}
		s.rawRec.Incr()
	}

	rt := chi.NewRouter()
	rt.Use(limit(rate.NewLimiter(rate.Limit(c.RateLimit), c.RateBurst)))
	rt.Post("/process", s.process)
	rt.Get("/provenance", s.provenance)
	rt.Handle("/metrics", promhttp.Handler())
	if s.recorder != nil {
		rec.NewHTTPWrapper(s.recorder).Inject(rt)
	}

	log.Println("now listening for requests at ", c.Addr)
	log.Fatal(http.ListenAndServe(c.Addr, rt))
}

func main() {
	var cmd string
	args := os.Args
	if len(args) == 1 {
		root()
		return
	}
	setupconfig()
	cmd = args[1]
	cmd = strings.ToLower(cmd)
	switch cmd {
	case "help":
		help()
		return
	case "mkconf":
		mkconf()
		return
	case "conf":
		printconf()
		return
	case "run":
		run()
		return
	case "version":
		pversion()
		return
	default:
		log.Fatal("unknown command")
	}
}
