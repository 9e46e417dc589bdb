// Command isrproc removes instrument signatures from raw detector frames.
// It loads calibration products once, then runs the correction pipeline over
// each input file, recording corrected FITS frames (and optional PNG
// quicklooks) into dated folders.
package main

import (
	"fmt"
	"image"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/theckman/yacspin"

	yml "gopkg.in/yaml.v2"

	"github.com/oir-lab/goisr/calib"
	"github.com/oir-lab/goisr/img"
	"github.com/oir-lab/goisr/isr"
	"github.com/oir-lab/goisr/mock"
	"github.com/oir-lab/goisr/rec"
)

var (
	// Version is the version number.  Typically injected via ldflags with git build
	Version = "1"

	// ConfigFileName is what it sounds like
	ConfigFileName = "isrproc.yml"
	k              = koanf.New(".")
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

// AmpSetup describes one amplifier of the camera being processed.
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

// CalibSetup locates the calibration products.  Paths beginning with http://
// or https:// are fetched from a calibration repository, everything else is
// read from disk.  Empty entries disable the matching stage.
type CalibSetup struct {
	Bias      string `koanf:"bias" yaml:"bias"`
	Dark      string `koanf:"dark" yaml:"dark"`
	Flat      string `koanf:"flat" yaml:"flat"`
	Illum     string `koanf:"illum" yaml:"illum"`
	Defects   string `koanf:"defects" yaml:"defects"`
	Crosstalk string `koanf:"crosstalk" yaml:"crosstalk"`

	FetchTimeoutSec int `koanf:"fetchTimeoutSec" yaml:"fetchTimeoutSec"`
}

// OutputSetup controls where corrected frames land.
type OutputSetup struct {
	Root            string `koanf:"root" yaml:"root"`
	Prefix          string `koanf:"prefix" yaml:"prefix"`
	Quicklook       bool   `koanf:"quicklook" yaml:"quicklook"`
	QuicklookMaxDim int    `koanf:"quicklookMaxDim" yaml:"quicklookMaxDim"`
}

// Config is the complete isrproc configuration.
type Config struct {
	Detector string      `koanf:"detector" yaml:"detector"`
	Amps     []AmpSetup  `koanf:"amps" yaml:"amps"`
	Pipeline isr.Config  `koanf:"pipeline" yaml:"pipeline"`
	Calib    CalibSetup  `koanf:"calib" yaml:"calib"`
	Output   OutputSetup `koanf:"output" yaml:"output"`
	Demo     bool        `koanf:"demo" yaml:"demo"`
}

func defaults() Config {
	return Config{
		Detector: "DET0",
		Pipeline: isr.DefaultConfig(),
		Calib:    CalibSetup{FetchTimeoutSec: 10},
		Output:   OutputSetup{Root: "corrected", Prefix: "isr_", QuicklookMaxDim: 1024},
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
	str := `isrproc removes instrument signatures from raw detector readouts:
overscan, trim/assembly, crosstalk, gain, bias, dark, linearity, flat,
defect and saturation masking with interpolation, and variance propagation.

Usage:
	isrproc <command> [raw.fits ...]

Commands:
	run
	help
	mkconf
	conf
	version`
	fmt.Println(str)
}

func help() {
	str := `isrproc is amenable to configuration via its .yaml file.  For a primer on
YAML, see https://yaml.org/start.html

The "amps" list declares the camera geometry: each amplifier's raw section,
data section, assembled detector section, and overscan strips, all as
half-open boxes, plus its gain, read noise, and saturation level.

The "calib" section locates the calibration products.  bias/dark/flat/illum
point at FITS files, defects and crosstalk at YAML files.  http(s) paths are
fetched from a calibration repository with retries.  Empty entries disable
the matching stage.

"pipeline" carries the per-stage knobs: overscan fit (MEAN or MEDIAN), flat
policy (MEAN, MEDIAN, or USER), saturation default level and grow radius,
interpolation PSF width, and the optional cosmic-ray and brighter-fatter
stages.

With demo: true, isrproc processes a synthetic exposure instead of input
files, useful for checking a configuration end to end.`
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
	fmt.Printf("isrproc version %v\n", Version)
}

// detector builds the geometry from the configuration.
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

// loadFrame reads one calibration frame from disk or a repository URL.
func loadFrame(path string, kind calib.Kind, timeout time.Duration) (*calib.Frame, error) {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return calib.Fetch(path, kind, timeout)
	}
	return calib.LoadFrame(path, kind)
}

// loadInputs gathers every configured calibration product.
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

// loadRaw reads a raw frame and binds it to the detector geometry.
func loadRaw(path string, det *img.Detector) (*img.Exposure, error) {
	f, err := calib.LoadFrame(path, "raw")
	if err != nil {
		return nil, err
	}
	e := img.NewExposure(f.Image.Rect, det)
	if err := e.Image.CopyFrom(f.Image); err != nil {
		return nil, err
	}
	e.Meta = f.Meta
	return e, nil
}

func spinner(msg string) (*yacspin.Spinner, error) {
	cfg := yacspin.Config{
		Frequency:       100 * time.Millisecond,
		CharSet:         yacspin.CharSets[59],
		Suffix:          " " + msg,
		SuffixAutoColon: true,
		StopCharacter:   "✓",
		StopColors:      []string{"fgGreen"},
	}
	s, err := yacspin.New(cfg)
	if err != nil {
		return nil, err
	}
	s.Start()
	return s, nil
}

func run(files []string) {
	c := Config{}
	if err := k.Unmarshal("", &c); err != nil {
		log.Fatal(err)
	}
	p, err := isr.New(c.Pipeline, nil)
	if err != nil {
		log.Fatalf("bad pipeline configuration: %v", err)
	}

	runID := uuid.New().String()
	log.Printf("run %s", runID)

	var in isr.Inputs
	var det *img.Detector
	if c.Demo {
		mcfg := mock.DefaultConfig()
		det = mock.Detector(mcfg)
		in = isr.Inputs{
			Bias: mock.BiasFrame(mcfg, 2),
			Dark: mock.DarkFrame(mcfg, mcfg.ExpTime/2),
			Flat: mock.FlatFrame(mcfg, 0.05),
		}
	} else {
		if len(files) == 0 {
			log.Fatal("no input files; pass raw FITS paths after run, or set demo: true")
		}
		det, err = detector(c)
		if err != nil {
			log.Fatalf("bad detector geometry: %v", err)
		}
		in, err = loadInputs(c)
		if err != nil {
			log.Fatalf("loading calibration products: %v", err)
		}
	}

	recorder := &rec.Recorder{Root: c.Output.Root, Prefix: c.Output.Prefix}
	recorder.Incr()

	if c.Demo {
		mcfg := mock.DefaultConfig()
		process(p, mock.RawExposure(mcfg), in, runID, recorder, c.Output, "demo exposure")
		return
	}
	for _, path := range files {
		raw, err := loadRaw(path, det)
		if err != nil {
			log.Fatalf("%s: %v", path, err)
		}
		process(p, raw, in, runID, recorder, c.Output, filepath.Base(path))
	}
}

func process(p *isr.Pipeline, raw *img.Exposure, in isr.Inputs, runID string, recorder *rec.Recorder, out OutputSetup, label string) {
	spin, err := spinner(label)
	if err != nil {
		log.Fatal(err)
	}
	e, err := p.Run(raw, in)
	if err != nil {
		spin.StopFail()
		log.Fatalf("%s: %v", label, err)
	}
	e.Meta.SetString("ISR_RUN", runID)

	fn, err := recorder.SaveExposure(e)
	if err != nil {
		spin.StopFail()
		log.Fatalf("%s: writing output: %v", label, err)
	}
	if out.Quicklook {
		png := strings.TrimSuffix(fn, ".fits") + ".png"
		fid, err := os.Create(png)
		if err != nil {
			spin.StopFail()
			log.Fatal(err)
		}
		if err := calib.Quicklook(fid, e.Image, out.QuicklookMaxDim); err != nil {
			fid.Close()
			spin.StopFail()
			log.Fatal(err)
		}
		fid.Close()
	}
	recorder.Incr()
	spin.Stop()
	log.Printf("%s -> %s", label, fn)
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
		run(args[2:])
		return
	case "version":
		pversion()
		return
	default:
		log.Fatal("unknown command")
	}
}
