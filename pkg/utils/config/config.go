package config

import (
	"flag"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"

	log "github.com/nstackx/coap-engine/pkg/utils/logger"
	"gopkg.in/yaml.v2"
)

var (
	APPNAME    string = "coap-engine"
	VERSION    string = "undefined"
	BUILD_TIME string = "undefined"
	GO_VERSION string = "undefined"
)

// Config is the endpoint's on-disk configuration: Listen/Port for the UDP
// transport and a Coap block of protocol timing values. Parse only loads
// them; no code in this repository applies them to a coap.Context, whose
// timing fields keep the defaults NewContext sets.
type Config struct {
	Listen string
	Port   int
	Coap   struct {
		AckTimeoutMillis   int
		AckRandomFactor    float64
		MaxRetransmit      int
		ExchangeLifetimeMs int
		ObsMaxFail         int
		ObsMaxNonCon       int
	}
	Logger struct {
		Dir         string
		Level       string
		Rotate      bool
		RotateBytes int
	}
}

func init() {
	flag.Usage = func() {
		fmt.Fprintln(os.Stdout, APPNAME+", version: "+VERSION+" (built at "+BUILD_TIME+") "+GO_VERSION)
		flag.PrintDefaults()
	}
	flag.Parse()
}

func Parse() *Config {
	ex, e := os.Executable()
	if e != nil {
		panic(e)
	}

	cfile := filepath.Dir(ex) + "/" + APPNAME + ".yml"
	if _, err := os.Stat(cfile); os.IsNotExist(err) {
		cfile = "/etc/" + APPNAME + ".yml"
	}

	conf := new(Config)
	data, err := ioutil.ReadFile(cfile)
	if err != nil {
		panic(err)
	}
	yaml.Unmarshal(data, &conf)

	defer log.Sync()
	if conf.Logger.Rotate {
		if len(conf.Logger.Dir) == 0 {
			conf.Logger.Dir = filepath.Dir(ex)
		}
		path := conf.Logger.Dir + "/" + APPNAME + ".log"
		var out = log.NewProductionRotateByTime(path)
		if conf.Logger.RotateBytes > 0 {
			out = log.NewProductionRotateBySize(path, conf.Logger.RotateBytes/(1<<20), 10)
		}
		logger := log.New(out, log.InfoLevel)
		log.ReplaceDefault(logger)
	}
	switch conf.Logger.Level {
	case "debug":
		log.SetLevel(log.DebugLevel)
	case "info":
		log.SetLevel(log.InfoLevel)
	case "warn":
		log.SetLevel(log.WarnLevel)
	case "error":
		log.SetLevel(log.ErrorLevel)
	default:
		log.SetLevel(log.InfoLevel)
	}

	return conf
}
