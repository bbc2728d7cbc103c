// logicsrv exposes attached FX2 logic analyzers over HTTP so clients in
// any language can configure and capture with plain JSON requests.
package main

import (
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/sirupsen/logrus"

	yml "gopkg.in/yaml.v2"

	"github.com/izzy84075/sigrok/saleae"
)

var (
	// Version is typically injected via ldflags with git build
	Version = "1"

	// ConfigFileName is what it sounds like
	ConfigFileName = "logicsrv.yml"

	k = koanf.New(".")
)

// Config holds the server address and the driver tunables.
type Config struct {
	// Addr is the address to listen at
	Addr string `koanf:"addr" yaml:"addr"`

	// Firmware is the Intel-HEX image uploaded to blank FX2 boards
	Firmware string `koanf:"firmware" yaml:"firmware"`

	// NumTransfers is the in-flight USB transfer pool size
	NumTransfers int `koanf:"numtransfers" yaml:"numtransfers"`

	// MaxEmptyTransfers tolerated before a capture auto-stops
	MaxEmptyTransfers int `koanf:"maxemptytransfers" yaml:"maxemptytransfers"`

	// RenumDelayMS bounds the wait for post-firmware renumeration
	RenumDelayMS int `koanf:"renumdelayms" yaml:"renumdelayms"`

	// Debug turns on per-transfer logging
	Debug bool `koanf:"debug" yaml:"debug"`
}

func (c Config) driverConfig() saleae.Config {
	cfg := saleae.DefaultConfig()
	if c.Firmware != "" {
		cfg.Firmware = c.Firmware
	}
	if c.NumTransfers > 0 {
		cfg.NumSimulTransfers = c.NumTransfers
	}
	if c.MaxEmptyTransfers > 0 {
		cfg.MaxEmptyTransfers = c.MaxEmptyTransfers
	}
	if c.RenumDelayMS > 0 {
		cfg.RenumDelay = time.Duration(c.RenumDelayMS) * time.Millisecond
	}
	return cfg
}

func setupconfig() {
	k.Load(structs.Provider(Config{Addr: ":8080"}, "koanf"), nil)
	if err := k.Load(file.Provider(ConfigFileName), yaml.Parser()); err != nil {
		if !strings.Contains(err.Error(), "no such") { // file missing, who cares
			logrus.Fatalf("error loading config: %v", err)
		}
	}
}

func root() {
	str := `logicsrv scans the USB bus for Saleae Logic / Cypress FX2 logic analyzers
and exposes each one under /logic/<index>.

Usage:
	logicsrv <command>

Commands:
	run
	help
	mkconf
	conf
	version`
	fmt.Println(str)
}

func help() {
	str := `logicsrv is configured via its .yml file; run "logicsrv mkconf" to write
one with the defaults.

Routes are bound per discovered device:
	GET  /logic/0/            device summary and route list
	POST /logic/0/open        open (waits out firmware renumeration)
	POST /logic/0/samplerate  {"u64": 1000000}
	POST /logic/0/probes      [{"index":1,"enabled":true,"trigger":"01"}, ...]
	POST /logic/0/limit-samples {"u64": 4096}
	POST /logic/0/acquire/start
	POST /logic/0/acquire/stop
	GET  /logic/0/capture     raw captured bytes, one sample per byte

A device without firmware gets the image named in the config uploaded at
scan time and takes a few hundred milliseconds to come back.`
	fmt.Println(str)
}

func mkconf() {
	c := Config{}
	if err := k.Unmarshal("", &c); err != nil {
		logrus.Fatal(err)
	}
	f, err := os.Create(ConfigFileName)
	if err != nil {
		logrus.Fatal(err)
	}
	defer f.Close()
	if err := yml.NewEncoder(f).Encode(c); err != nil {
		logrus.Fatal(err)
	}
}

func printconf() {
	c := Config{}
	k.Unmarshal("", &c)
	if err := yml.NewEncoder(os.Stdout).Encode(c); err != nil {
		logrus.Fatal(err)
	}
}

func pversion() {
	fmt.Printf("logicsrv version %v\n", Version)
}

func run() {
	c := Config{}
	if err := k.Unmarshal("", &c); err != nil {
		logrus.Fatal(err)
	}
	if c.Debug {
		logrus.SetLevel(logrus.DebugLevel)
	}

	drv := saleae.New(c.driverConfig())
	n, err := drv.Init()
	if err != nil {
		logrus.WithError(err).Error("device scan had errors")
	}
	defer drv.Cleanup()
	if n == 0 {
		logrus.Fatal("no supported logic analyzers found")
	}
	logrus.Infof("found %d device(s)", n)

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	for i := 0; i < n; i++ {
		wrapper := saleae.NewHTTPWrapper(drv, i)
		r.Route(fmt.Sprintf("/logic/%d", i), func(sub chi.Router) {
			wrapper.RT().Bind(sub)
		})
	}

	logrus.Infof("now listening for requests at %s", c.Addr)
	logrus.Fatal(http.ListenAndServe(c.Addr, r))
}

func main() {
	args := os.Args
	if len(args) == 1 {
		root()
		return
	}
	setupconfig()
	switch strings.ToLower(args[1]) {
	case "help":
		help()
	case "mkconf":
		mkconf()
	case "conf":
		printconf()
	case "run":
		run()
	case "version":
		pversion()
	default:
		logrus.Fatal("unknown command")
	}
}
