package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"syscall"

	"github.com/creachadair/command"
	"github.com/creachadair/flax"
	"github.com/creachadair/mds/slice"
	"github.com/danderson/dbuswire"
	"github.com/danderson/dbuswire/capture"
	"github.com/kr/pretty"
)

var globalArgs struct {
	Hex     bool `flag:"hex,Read and write encoded messages as hex text"`
	FDs     bool `flag:"fds,Enable the file descriptor passing capability"`
	Verbose bool `flag:"v,Log debug information"`
}

func caps() dbus.Capabilities {
	if globalArgs.FDs {
		return dbus.CapUnixFDPassing
	}
	return 0
}

func logger() *slog.Logger {
	lvl := slog.LevelInfo
	if globalArgs.Verbose {
		lvl = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

func main() {
	root := &command.C{
		Name:     "dbusmsg",
		Usage:    "command args...",
		Help:     "Encode, decode and record DBus messages.",
		SetFlags: command.Flags(flax.MustBind, &globalArgs),
		Commands: []*command.C{
			{
				Name:  "encode",
				Usage: "encode [desc.yaml]",
				Help: `Encode a message from a YAML description.

The description is read from the named file, or stdin. It looks like:

  type: method_call
  path: /org/example/Obj
  interface: org.example.Iface
  member: Ping
  destination: org.example
  flags: [no-auto-start]
  signature: sa{sv}
  body:
    - hello
    - {answer: {type: u, value: 42}}

If the input holds several YAML documents, only the first is encoded.`,
				SetFlags: command.Flags(flax.MustBind, &encodeArgs),
				Run:      runEncode,
			},
			{
				Name:     "decode",
				Usage:    "decode [file]",
				Help:     "Decode an encoded message and print it.",
				SetFlags: command.Flags(flax.MustBind, &decodeArgs),
				Run:      runDecode,
			},
			{
				Name:  "needed",
				Usage: "needed [file]",
				Help:  "Print the total length of the message that begins the input.",
				Run:   runNeeded,
			},
			{
				Name:  "record",
				Usage: "record -out capture desc.yaml...",
				Help: `Encode message descriptions into a capture file.

Every YAML document in every input file is encoded and appended to
the capture, in order.`,
				SetFlags: command.Flags(flax.MustBind, &recordArgs),
				Run:      runRecord,
			},
			{
				Name:  "dump",
				Usage: "dump capture",
				Help: `Print the messages in a capture file.

Records that fail to decode are reported and skipped. With -match,
only messages that match the given DBus match rule are printed.`,
				SetFlags: command.Flags(flax.MustBind, &dumpArgs),
				Run:      command.Adapt(runDump),
			},
			command.HelpCommand(nil),
			command.VersionCommand(),
		},
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	env := root.NewEnv(nil).SetContext(ctx)
	command.RunOrFail(env, os.Args[1:])
}

// singleArg returns the optional single file argument of a command.
func singleArg(env *command.Env) (string, error) {
	switch len(env.Args) {
	case 0:
		return "", nil
	case 1:
		return env.Args[0], nil
	default:
		return "", env.Usagef("at most one file argument is allowed")
	}
}

var encodeArgs struct {
	Out string `flag:"out,Output file path (default stdout)"`
	Big bool   `flag:"big,Encode big-endian unless the description sets an order"`
}

func runEncode(env *command.Env) error {
	path, err := singleArg(env)
	if err != nil {
		return err
	}
	in, err := openInput(path)
	if err != nil {
		return err
	}
	defer in.Close()

	order := dbus.LittleEndian
	if encodeArgs.Big {
		order = dbus.BigEndian
	}
	msgs, err := loadMessages(in, order)
	if err != nil {
		return fmt.Errorf("reading description: %w", err)
	}
	if len(msgs) == 0 {
		return fmt.Errorf("no message description in input")
	}
	blob, err := msgs[0].Marshal(caps())
	if err != nil {
		return fmt.Errorf("encoding message: %w", err)
	}
	logger().Debug("encoded message", "type", msgs[0].Type(), "size", len(blob))

	if encodeArgs.Out == "" {
		return writeBlob(os.Stdout, blob, globalArgs.Hex)
	}
	f, err := os.Create(encodeArgs.Out)
	if err != nil {
		return err
	}
	if err := writeBlob(f, blob, globalArgs.Hex); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", encodeArgs.Out, err)
	}
	return f.Close()
}

var decodeArgs struct {
	Go bool `flag:"go,Dump the decoded body as Go values"`
}

func runDecode(env *command.Env) error {
	path, err := singleArg(env)
	if err != nil {
		return err
	}
	blob, err := readBlob(path, globalArgs.Hex)
	if err != nil {
		return err
	}
	m, err := dbus.Unmarshal(blob, caps())
	if err != nil {
		return fmt.Errorf("decoding message: %w", err)
	}
	if decodeArgs.Go {
		fmt.Printf("%# v\n", pretty.Formatter(m.Body()))
		return nil
	}
	fmt.Print(m.Print(0))
	return nil
}

func runNeeded(env *command.Env) error {
	path, err := singleArg(env)
	if err != nil {
		return err
	}
	blob, err := readBlob(path, globalArgs.Hex)
	if err != nil {
		return err
	}
	n, err := dbus.BytesNeeded(blob)
	if err != nil {
		return err
	}
	fmt.Println(n)
	return nil
}

var recordArgs struct {
	Out   string `flag:"out,Capture file to write"`
	Zstd  bool   `flag:"zstd,Compress the capture with zstd"`
	Match string `flag:"match,Only record messages matching this DBus match rule"`
}

func runRecord(env *command.Env) error {
	if recordArgs.Out == "" {
		return env.Usagef("-out is required")
	}
	if len(env.Args) == 0 {
		return env.Usagef("no message descriptions given")
	}
	match, err := dbus.ParseMatch(recordArgs.Match)
	if err != nil {
		return err
	}
	log := logger()

	var msgs []*dbus.Message
	for _, path := range env.Args {
		in, err := openInput(path)
		if err != nil {
			return err
		}
		ms, err := loadMessages(in, dbus.LittleEndian)
		in.Close()
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		log.Debug("loaded descriptions", "file", path, "messages", len(ms))
		msgs = append(msgs, ms...)
	}
	msgs = slices.Collect(slice.Select(msgs, match.Matches))

	f, err := os.Create(recordArgs.Out)
	if err != nil {
		return err
	}
	defer f.Close()
	comp := capture.CompressionNone
	if recordArgs.Zstd {
		comp = capture.CompressionZstd
	}
	w, err := capture.NewWriter(f, comp)
	if err != nil {
		return err
	}
	for _, m := range msgs {
		if err := w.WriteMessage(m, caps()); err != nil {
			return fmt.Errorf("recording message %d: %w", m.Serial(), err)
		}
	}
	if err := w.Close(); err != nil {
		return err
	}
	log.Info("wrote capture", "file", recordArgs.Out, "messages", w.Count(), "compression", comp)
	return f.Close()
}

var dumpArgs struct {
	Match string `flag:"match,Only print messages matching this DBus match rule"`
}

func runDump(env *command.Env, path string) error {
	match, err := dbus.ParseMatch(dumpArgs.Match)
	if err != nil {
		return err
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	log := logger()
	out := indenter{out: os.Stdout}
	n := 0
	stats, err := capture.Replay(f, caps(), log, func(m *dbus.Message) error {
		n++
		if !match.Matches(m) {
			return nil
		}
		out.indent(0)
		out.f("message %d: %s serial %d", n, m.Type(), m.Serial())
		out.indent(1)
		out.s(m.String())
		return nil
	})
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	log.Info("dumped capture", "records", stats.Records, "skipped", stats.Skipped)
	return nil
}
