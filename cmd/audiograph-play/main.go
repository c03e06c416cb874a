package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"time"

	gomidi "gitlab.com/gomidi/midi/v2"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/vsariola/audiograph"
	"github.com/vsariola/audiograph/engine"
	"github.com/vsariola/audiograph/internal/telemetry"
	"github.com/vsariola/audiograph/midi"
	"github.com/vsariola/audiograph/nodes"
	"github.com/vsariola/audiograph/offline"
	"github.com/vsariola/audiograph/oto"
	"github.com/vsariola/audiograph/version"
	"github.com/vsariola/audiograph/vm"
)

type options struct {
	output   string
	duration float64
	dump     bool
	config   string
	verbose  bool
	stats    bool
	sample   string
	sampler  string
	midiIn   string
	voice    string
}

func main() {
	var o options
	flag.StringVar(&o.output, "o", "", "Render offline into the given .wav file instead of playing.")
	flag.Float64Var(&o.duration, "d", 5, "Duration in seconds to play or render.")
	flag.BoolVar(&o.dump, "dump", false, "Print the compiled schedule and exit.")
	flag.StringVar(&o.config, "config", "", "Engine configuration .yml file. AUDIOGRAPH_* environment variables override it.")
	flag.BoolVar(&o.verbose, "verbose", false, "Log engine lifecycle and recompiles to standard error.")
	flag.BoolVar(&o.stats, "stats", false, "Print processor statistics at the end.")
	flag.StringVar(&o.sample, "sample", "", "Load a .wav file into the sampler node and start it.")
	flag.StringVar(&o.sampler, "sampler", "sampler", "Name of the patch node that -sample loads into.")
	flag.StringVar(&o.midiIn, "midi", "", "Play notes from the first MIDI input whose name starts with the given prefix. Use \"-\" to list inputs.")
	flag.StringVar(&o.voice, "voice", "sine", "Name of the sine node that MIDI notes play.")
	help := flag.Bool("h", false, "Show help.")
	versionFlag := flag.Bool("v", false, "Print version.")
	flag.Usage = printUsage
	flag.Parse()
	if *versionFlag {
		fmt.Println(version.String("audiograph-play"))
		os.Exit(0)
	}
	if o.midiIn == "-" {
		names, err := midi.InputNames()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		for _, n := range names {
			fmt.Println(n)
		}
		os.Exit(0)
	}
	if flag.NArg() != 1 || *help {
		flag.Usage()
		os.Exit(0)
	}
	shutdown, err := telemetry.Setup(context.Background(), "audiograph-play")
	if err != nil {
		fmt.Fprintf(os.Stderr, "could not set up tracing: %v\n", err)
	}
	err = run(flag.Arg(0), o)
	shutdown(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func run(patchFile string, o options) error {
	cfg, err := engine.LoadConfig(o.config)
	if err != nil {
		return err
	}
	logger := log.New(io.Discard, "", 0)
	if o.verbose {
		logger = log.New(os.Stderr, "audiograph: ", log.Ltime|log.Lmicroseconds)
	}
	ctx, err := engine.New(cfg, engine.WithLogger(logger))
	if err != nil {
		return err
	}
	defer ctx.Close()
	data, err := os.ReadFile(patchFile)
	if err != nil {
		return fmt.Errorf("could not read file %v: %w", patchFile, err)
	}
	patch, err := audiograph.ParsePatch(data)
	if err != nil {
		return err
	}
	reg := audiograph.NewRegistry()
	nodes.Register(reg)
	ids, err := patch.Build(ctx.Graph(), reg)
	if err != nil {
		return fmt.Errorf("could not build patch %v: %w", patchFile, err)
	}
	if o.dump {
		return ctx.Describe(os.Stdout)
	}
	if o.sample != "" {
		if err := loadSample(ctx, ids, o); err != nil {
			return err
		}
	}
	var status vm.Status
	if o.output != "" {
		status, err = render(ctx, o)
	} else {
		status, err = play(ctx, ids, o)
	}
	if o.stats {
		printStats(status, ctx.CompileStats())
	}
	return err
}

func loadSample(ctx *engine.Context, ids map[string]audiograph.NodeID, o options) error {
	id, ok := ids[o.sampler]
	if !ok {
		return fmt.Errorf("patch has no node named %q: %w", o.sampler, audiograph.ErrUnknownNode)
	}
	f, err := os.Open(o.sample)
	if err != nil {
		return fmt.Errorf("could not open sample: %w", err)
	}
	defer f.Close()
	res, rate, err := offline.ReadWAV(f)
	if err != nil {
		return fmt.Errorf("could not load sample %v: %w", o.sample, err)
	}
	if rate != ctx.SampleRate() {
		fmt.Fprintf(os.Stderr, "warning: sample is %d Hz, engine runs at %d Hz\n", rate, ctx.SampleRate())
	}
	load := audiograph.NewEvent(id, nodes.SamplerResource, 0, audiograph.Immediate())
	load.Data = res
	if err := ctx.QueueEvent(load); err != nil {
		return err
	}
	return ctx.QueueEvent(audiograph.NewEvent(id, nodes.SamplerPlay, 1, audiograph.Immediate()))
}

// render runs the engine on the offline backend as fast as possible, one
// block per Update, and writes the result to o.output.
func render(ctx *engine.Context, o options) (vm.Status, error) {
	backend := &offline.Backend{}
	if err := ctx.Activate(backend); err != nil {
		return vm.Status{}, err
	}
	stream := backend.Stream()
	total := int(o.duration * float64(ctx.SampleRate()))
	block := ctx.Config().MaxBlockFrames
	for done := 0; done < total; done += block {
		if _, err := ctx.Update(); err != nil {
			return ctx.Status(), err
		}
		stream.Render(min(block, total-done))
	}
	status := ctx.Status()
	if err := ctx.Deactivate(); err != nil {
		return status, err
	}
	f, err := os.Create(o.output)
	if err != nil {
		return status, fmt.Errorf("could not create %v: %w", o.output, err)
	}
	defer f.Close()
	if err := stream.WriteWAV(f); err != nil {
		return status, fmt.Errorf("could not write %v: %w", o.output, err)
	}
	return status, nil
}

// play runs the engine on the sound card until the duration has passed or
// the user interrupts.
func play(ctx *engine.Context, ids map[string]audiograph.NodeID, o options) (vm.Status, error) {
	var translator *midi.Translator
	var input *midi.Input
	if o.midiIn != "" {
		id, ok := ids[o.voice]
		if !ok {
			return vm.Status{}, fmt.Errorf("patch has no node named %q: %w", o.voice, audiograph.ErrUnknownNode)
		}
		var err error
		if input, err = midi.OpenInput(o.midiIn); err != nil {
			return vm.Status{}, err
		}
		defer input.Close()
		translator = midi.NewTranslator(midi.SineVoice(id))
		// the voice stays silent until the first note
		if err := ctx.QueueEvent(audiograph.NewEvent(id, nodes.SineGate, 0, audiograph.Immediate())); err != nil {
			return vm.Status{}, err
		}
	}
	if err := ctx.Activate(&oto.Backend{}); err != nil {
		return vm.Status{}, err
	}
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	defer signal.Stop(interrupt)
	timeout := time.After(time.Duration(o.duration * float64(time.Second)))
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	var events []audiograph.Event
	var errs []error
loop:
	for {
		select {
		case <-ticker.C:
			if input != nil {
				input.Poll(func(msg gomidi.Message) {
					events = queueMessage(ctx, translator, msg, events, os.Stderr)
				})
			}
			if _, err := ctx.Update(); err != nil {
				if errors.Is(err, audiograph.ErrStreamInterrupted) {
					errs = append(errs, err)
					break loop
				}
				fmt.Fprintf(os.Stderr, "%v\n", err)
			}
		case <-timeout:
			break loop
		case <-interrupt:
			break loop
		}
	}
	status := ctx.Status()
	errs = append(errs, ctx.Deactivate())
	return status, errors.Join(errs...)
}

// queueMessage queues the events msg translates to, reporting the ones the
// context rejects to w. It returns buf for reuse.
func queueMessage(ctx *engine.Context, tr *midi.Translator, msg gomidi.Message, buf []audiograph.Event, w io.Writer) []audiograph.Event {
	buf = tr.Translate(buf[:0], msg, audiograph.Immediate())
	for _, ev := range buf {
		if err := ctx.QueueEvent(ev); err != nil {
			fmt.Fprintf(w, "%v\n", err)
		}
	}
	return buf
}

func printStats(s vm.Status, c engine.CompileStats) {
	p := message.NewPrinter(language.English)
	p.Fprintf(os.Stderr, "schedule: generation %d, %d nodes, %d buffers\n", c.Generation, c.Nodes, c.Buffers)
	p.Fprintf(os.Stderr, "clock: %d samples, %.3f s, %.2f beats\n", s.Clock.Samples, s.Clock.Seconds, s.Clock.Beats)
	p.Fprintf(os.Stderr, "callbacks: %d, schedule swaps: %d, skipped nodes: %d\n", s.Callbacks, s.ScheduleSwaps, s.SkippedNodes)
	p.Fprintf(os.Stderr, "events: %d applied, %d dropped, %d canceled, %d pending, %d overflows\n", s.EventsApplied, s.EventsDropped, s.EventsCanceled, s.PendingEvents, s.PendingOverflows)
	p.Fprintf(os.Stderr, "underflows: %d, interruptions: %d\n", s.Underflows, s.Interruptions)
}

func printUsage() {
	fmt.Fprintf(os.Stderr, "Command line utility for playing and rendering audio graph patches (.yml or .json).\nUsage: %s [flags] patch\n", os.Args[0])
	flag.PrintDefaults()
}
