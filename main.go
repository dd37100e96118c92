package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"log/syslog"
	"os"
	"os/signal"
	"syscall"
)

type options struct {
	mode       string
	cfgFn      string
	device     string
	baud       int
	slave      uint
	start      uint
	count      uint
	iterations int
	format     string
	sim        bool
	useSyslog  bool
	verbose    bool

	set map[string]bool
}

func parseArgs(args []string) (options, error) {
	var opts options
	fs := flag.NewFlagSet("regprobe", flag.ContinueOnError)
	fs.StringVar(&opts.mode, "mode", "read", "Mode to run: read, probe, serve or ports")
	fs.StringVar(&opts.cfgFn, "cfg", defaultConfigFile, "Configuration file")
	fs.StringVar(&opts.device, "device", "", "Serial device, overrides bus.devicename")
	fs.IntVar(&opts.baud, "baud", 0, "Baud rate, overrides bus.baudrate")
	fs.UintVar(&opts.slave, "slave", 0, "Slave address, overrides slave")
	fs.UintVar(&opts.start, "start", 0, "First register to read, overrides read.start")
	fs.UintVar(&opts.count, "count", 0, "Number of registers to read, overrides read.count")
	fs.IntVar(&opts.iterations, "iterations", 0, "Probe iterations, overrides probe.iterations")
	fs.StringVar(&opts.format, "format", "", "Output format: uint16, hex or ieee32")
	fs.BoolVar(&opts.sim, "sim", false, "Talk to an in-process simulated slave instead of the serial port")
	fs.BoolVar(&opts.useSyslog, "syslog", false, "Send log output to syslog")
	fs.BoolVar(&opts.verbose, "verbose", false, "Trace modbus frames")
	if err := fs.Parse(args); err != nil {
		return opts, err
	}

	opts.set = make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { opts.set[f.Name] = true })

	if opts.slave > 0xff {
		return opts, fmt.Errorf("slave address %d out of range", opts.slave)
	}
	if opts.start > 0xffff || opts.count > 0xffff {
		return opts, fmt.Errorf("register range %d+%d out of range", opts.start, opts.count)
	}
	return opts, nil
}

// apply overrides cfg with every flag given on the command line.
func (opts options) apply(cfg *configData) {
	if opts.set["device"] {
		cfg.Bus.Devicename = opts.device
	}
	if opts.set["baud"] {
		cfg.Bus.Baudrate = opts.baud
	}
	if opts.set["slave"] {
		cfg.Slave = byte(opts.slave)
		cfg.Server.ID = byte(opts.slave)
	}
	if opts.set["start"] {
		cfg.Read.Start = uint16(opts.start)
	}
	if opts.set["count"] {
		cfg.Read.Count = uint16(opts.count)
	}
	if opts.set["iterations"] {
		cfg.Probe.Iterations = opts.iterations
	}
	if opts.set["format"] {
		cfg.Read.Format = opts.format
	}
}

func simulatedDevice(cfg configData) *simDevice {
	bank := newRegisterBank(cfg.Server.Registers, maxValuePolicy(cfg.Server.MaxValue))
	return newSimDevice(cfg.Server.ID, bank)
}

func main() {
	opts, err := parseArgs(os.Args[1:])
	if err != nil {
		if err == flag.ErrHelp {
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	if opts.useSyslog {
		logwriter, e := syslog.New(syslog.LOG_DEBUG|syslog.LOG_DAEMON, "regprobe")
		if e == nil {
			log.SetOutput(logwriter)
		}
	}

	cfg, err := parseConfiguration(opts.cfgFn, opts.set["cfg"])
	if err != nil {
		log.Fatal(err)
	}
	opts.apply(&cfg)

	quitChannel := make(chan struct{})
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		log.Print("Quit signal received, exiting...")
		close(quitChannel)
	}()

	switch opts.mode {
	case "ports":
		for _, p := range listSerialPorts() {
			fmt.Println(p)
		}
	case "serve":
		if err := cfg.validateServer(); err != nil {
			log.Fatal(err)
		}
		serve(cfg, quitChannel)
	case "read", "probe":
		if err := cfg.validate(); err != nil {
			log.Fatal(err)
		}
		if err := runClient(opts, cfg, os.Stdout, quitChannel); err != nil {
			log.Fatal(err)
		}
	default:
		log.Fatalf("unknown mode %q (should be one of read, probe, serve or ports)", opts.mode)
	}
}

func runClient(opts options, cfg configData, out io.Writer, quit <-chan struct{}) error {
	var (
		open  linkOpener
		trace *log.Logger
	)
	if opts.sim {
		open = simulatedDevice(cfg).open
	}
	if opts.verbose {
		trace = log.New(log.Writer(), "", log.LstdFlags)
	}

	s, err := openSession(cfg.Bus, cfg.Slave, open, trace)
	if err != nil {
		if open == nil {
			return fmt.Errorf("%w (serial ports found: %s)", err, portNames(listSerialPorts()))
		}
		return err
	}
	defer s.Close()

	pub := newPublisher(cfg)
	defer pub.Close()
	pub.registerHA(cfg.Read.Start, cfg.Read.Count)

	if opts.mode == "probe" {
		_, err = runProbe(s, cfg, out, log.Default(), quit, pub)
		return err
	}
	_, err = runRead(s, cfg.Read, out, pub)
	return err
}

func serve(cfg configData, quit <-chan struct{}) {
	dev := simulatedDevice(cfg)

	done := make(chan bool, 1)
	port, err := startServer(cfg.Server, dev, quit, done)
	if err != nil {
		log.Fatal(err)
	}

	select {
	case <-quit:
		// the loop notices quit once the current read times out
		<-done
		port.Close()
	case <-done:
		port.Close()
	}
	log.Printf("Server: handled %d requests", dev.requestCount())
}
