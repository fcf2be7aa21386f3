package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"xdao.co/oeuvre/config"
	"xdao.co/oeuvre/keys"
	"xdao.co/oeuvre/registry"
	"xdao.co/oeuvre/renderer"
	"xdao.co/oeuvre/rpc"
)

// clientFlags are shared by every command that talks to a running registry.
type clientFlags struct {
	target  string
	as      string
	key     string
	timeout time.Duration
}

func (c *clientFlags) register(fs *flag.FlagSet) {
	target := os.Getenv("OEUVRE_TARGET")
	if target == "" {
		target = config.DefaultListen
	}
	fs.StringVar(&c.target, "target", target, "Registry address")
	fs.StringVar(&c.as, "as", os.Getenv("OEUVRE_AS"), "Acting principal")
	fs.StringVar(&c.key, "key", "", "Act as the principal of this stored key")
	fs.DurationVar(&c.timeout, "timeout", 10*time.Second, "Per-command timeout")
}

func (c *clientFlags) dial() (*rpc.Client, context.Context, context.CancelFunc, error) {
	as := c.as
	if c.key != "" {
		ks, err := keys.OpenKeyStore(os.Getenv("OEUVRE_KEYS"))
		if err != nil {
			return nil, nil, nil, err
		}
		seed, err := ks.Seed(c.key)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("key %s: %w", c.key, err)
		}
		if as, err = keys.PrincipalFromSeed(seed); err != nil {
			return nil, nil, nil, err
		}
	}
	client, err := rpc.Dial(c.target, as)
	if err != nil {
		return nil, nil, nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	return client, ctx, func() {
		cancel()
		_ = client.Close()
	}, nil
}

// parseClient parses args and checks the positional count.
func parseClient(name, usage string, nargs int, args []string, errOut io.Writer, setup func(*flag.FlagSet)) (*flag.FlagSet, *clientFlags, bool) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(errOut)
	cf := &clientFlags{}
	cf.register(fs)
	if setup != nil {
		setup(fs)
	}
	if err := fs.Parse(interleave(fs, args)); err != nil {
		return nil, nil, false
	}
	if fs.NArg() != nargs {
		fmt.Fprintln(errOut, "usage: oeuvre "+usage)
		return nil, nil, false
	}
	return fs, cf, true
}

// interleave moves positional arguments after the flags so both
// "get 3 --as x" and "get --as x 3" parse.
func interleave(fs *flag.FlagSet, args []string) []string {
	var flags, pos []string
	for i := 0; i < len(args); i++ {
		a := args[i]
		if a == "--" {
			pos = append(pos, args[i+1:]...)
			break
		}
		if len(a) > 1 && a[0] == '-' {
			flags = append(flags, a)
			name := a[1:]
			if name != "" && name[0] == '-' {
				name = name[1:]
			}
			if f := fs.Lookup(name); f != nil && !isBool(f) && i+1 < len(args) {
				i++
				flags = append(flags, args[i])
			}
			continue
		}
		pos = append(pos, a)
	}
	return append(flags, pos...)
}

func isBool(f *flag.Flag) bool {
	b, ok := f.Value.(interface{ IsBoolFlag() bool })
	return ok && b.IsBoolFlag()
}

// fail reports err; registry error kinds are printed with their stable code.
func fail(errOut io.Writer, err error) int {
	if registry.KindOf(err) != "" {
		fmt.Fprintln(errOut, registry.Coded(err))
		return 1
	}
	fmt.Fprintln(errOut, err)
	return 1
}

func entryArg(errOut io.Writer, s string) (uint64, bool) {
	id, err := rpc.ParseID(s)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 0, false
	}
	return id, true
}

func cmdMint(args []string, out io.Writer, errOut io.Writer) int {
	var payload, payloadFile, owner string
	var royalty uint
	_, cf, ok := parseClient("mint", "mint (--payload <text> | --payload-file <file>) [--owner <p>] [--royalty <bps>]", 0, args, errOut, func(fs *flag.FlagSet) {
		fs.StringVar(&payload, "payload", "", "Finalized metadata pointer")
		fs.StringVar(&payloadFile, "payload-file", "", "Read the payload from a file")
		fs.StringVar(&owner, "owner", "", "Initial owner (defaults to the creator)")
		fs.UintVar(&royalty, "royalty", 0, "Royalty in basis points (0..10000)")
	})
	if !ok {
		return 2
	}
	if (payload == "") == (payloadFile == "") {
		fmt.Fprintln(errOut, "exactly one of --payload or --payload-file is required")
		return 2
	}
	if payloadFile != "" {
		b, err := os.ReadFile(payloadFile)
		if err != nil {
			fmt.Fprintf(errOut, "read --payload-file: %v\n", err)
			return 1
		}
		payload = string(b)
	}
	if royalty > registry.MaxRoyaltyBasisPoints {
		fmt.Fprintf(errOut, "invalid --royalty: %d exceeds %d\n", royalty, registry.MaxRoyaltyBasisPoints)
		return 2
	}

	c, ctx, done, err := cf.dial()
	if err != nil {
		return fail(errOut, err)
	}
	defer done()
	reply, err := c.Mint(ctx, owner, payload, uint16(royalty))
	if err != nil {
		return fail(errOut, err)
	}
	if reply.Archived != nil && !*reply.Archived {
		fmt.Fprintln(errOut, "warning: payload was not archived")
	}
	_ = printJSON(out, reply)
	return 0
}

func cmdGet(args []string, out io.Writer, errOut io.Writer) int {
	fs, cf, ok := parseClient("get", "get <id>", 1, args, errOut, nil)
	if !ok {
		return 2
	}
	id, ok := entryArg(errOut, fs.Arg(0))
	if !ok {
		return 2
	}
	c, ctx, done, err := cf.dial()
	if err != nil {
		return fail(errOut, err)
	}
	defer done()
	v, err := c.Get(ctx, id)
	if err != nil {
		return fail(errOut, err)
	}
	_ = printJSON(out, v)
	return 0
}

func cmdList(args []string, out io.Writer, errOut io.Writer) int {
	fs, cf, ok := parseClient("list", "list <owner>", 1, args, errOut, nil)
	if !ok {
		return 2
	}
	c, ctx, done, err := cf.dial()
	if err != nil {
		return fail(errOut, err)
	}
	defer done()
	ids, err := c.List(ctx, fs.Arg(0))
	if err != nil {
		return fail(errOut, err)
	}
	for _, id := range ids {
		fmt.Fprintln(out, id)
	}
	return 0
}

func cmdOwner(args []string, out io.Writer, errOut io.Writer) int {
	fs, cf, ok := parseClient("owner", "owner <id>", 1, args, errOut, nil)
	if !ok {
		return 2
	}
	id, ok := entryArg(errOut, fs.Arg(0))
	if !ok {
		return 2
	}
	c, ctx, done, err := cf.dial()
	if err != nil {
		return fail(errOut, err)
	}
	defer done()
	owner, err := c.OwnerOf(ctx, id)
	if err != nil {
		return fail(errOut, err)
	}
	fmt.Fprintln(out, owner)
	return 0
}

func cmdUpdate(args []string, out io.Writer, errOut io.Writer) int {
	fs, cf, ok := parseClient("update", "update <id> <pointer>", 2, args, errOut, nil)
	if !ok {
		return 2
	}
	id, ok := entryArg(errOut, fs.Arg(0))
	if !ok {
		return 2
	}
	c, ctx, done, err := cf.dial()
	if err != nil {
		return fail(errOut, err)
	}
	defer done()
	v, err := c.UpdateMetadata(ctx, id, fs.Arg(1))
	if err != nil {
		return fail(errOut, err)
	}
	_ = printJSON(out, v)
	return 0
}

func cmdRenderer(args []string, out io.Writer, errOut io.Writer) int {
	var disable bool
	fs, cf, ok := parseClient("renderer", "renderer <id> <ref> [--disable]", 2, args, errOut, func(fs *flag.FlagSet) {
		fs.BoolVar(&disable, "disable", false, "Record the delegate but leave it disabled")
	})
	if !ok {
		return 2
	}
	id, ok := entryArg(errOut, fs.Arg(0))
	if !ok {
		return 2
	}
	c, ctx, done, err := cf.dial()
	if err != nil {
		return fail(errOut, err)
	}
	defer done()
	v, err := c.SetRenderer(ctx, id, fs.Arg(1), !disable)
	if err != nil {
		return fail(errOut, err)
	}
	_ = printJSON(out, v)
	return 0
}

func cmdTransfer(args []string, out io.Writer, errOut io.Writer) int {
	var to string
	fs, cf, ok := parseClient("transfer", "transfer <id> --to <principal>", 1, args, errOut, func(fs *flag.FlagSet) {
		fs.StringVar(&to, "to", "", "Recipient principal")
	})
	if !ok {
		return 2
	}
	if to == "" {
		fmt.Fprintln(errOut, "missing --to")
		return 2
	}
	id, ok := entryArg(errOut, fs.Arg(0))
	if !ok {
		return 2
	}
	c, ctx, done, err := cf.dial()
	if err != nil {
		return fail(errOut, err)
	}
	defer done()
	v, err := c.Transfer(ctx, id, to)
	if err != nil {
		return fail(errOut, err)
	}
	_ = printJSON(out, v)
	return 0
}

type resolveOutput struct {
	EntryID   uint64 `json:"entryId"`
	Pointer   string `json:"pointer"`
	Delegated bool   `json:"delegated"`
	Delegate  string `json:"delegate,omitempty"`
	Rendered  string `json:"rendered,omitempty"`
	Fallback  bool   `json:"fallback,omitempty"`
	Effective string `json:"effective"`
}

func cmdResolve(args []string, out io.Writer, errOut io.Writer) int {
	var follow, fallback bool
	fs, cf, ok := parseClient("resolve", "resolve <id> [--follow] [--fallback]", 1, args, errOut, func(fs *flag.FlagSet) {
		fs.BoolVar(&follow, "follow", false, "Ask an http(s) renderer delegate for the pointer")
		fs.BoolVar(&fallback, "fallback", false, "With --follow, use the stored pointer if the renderer fails")
	})
	if !ok {
		return 2
	}
	id, ok := entryArg(errOut, fs.Arg(0))
	if !ok {
		return 2
	}
	c, ctx, done, err := cf.dial()
	if err != nil {
		return fail(errOut, err)
	}
	defer done()

	var res renderer.Result
	if follow {
		var opts []renderer.ResolverOption
		if fallback {
			opts = append(opts, renderer.FallbackOnError())
		}
		res, err = renderer.NewResolver(c, renderer.NewHTTPDirectory(renderer.HTTPRenderer{}), opts...).Resolve(ctx, id)
	} else {
		res.Resolution, err = c.Resolve(ctx, id)
	}
	if err != nil {
		return fail(errOut, err)
	}
	o := resolveOutput{
		EntryID:   res.EntryID,
		Pointer:   res.Pointer,
		Delegated: res.Delegated,
		Delegate:  res.Delegate,
		Rendered:  res.Rendered,
		Fallback:  res.Fallback,
		Effective: res.Pointer,
	}
	if follow {
		o.Effective = res.Effective()
	}
	if res.Err != nil {
		fmt.Fprintf(errOut, "warning: %v\n", res.Err)
	}
	_ = printJSON(out, o)
	return 0
}

func cmdHistory(args []string, out io.Writer, errOut io.Writer) int {
	var after uint64
	var limit int
	_, cf, ok := parseClient("history", "history [--after <seq>] [--limit <n>]", 0, args, errOut, func(fs *flag.FlagSet) {
		fs.Uint64Var(&after, "after", 0, "Only records with a higher seq")
		fs.IntVar(&limit, "limit", 0, "Maximum number of records (server caps at 1000)")
	})
	if !ok {
		return 2
	}
	c, ctx, done, err := cf.dial()
	if err != nil {
		return fail(errOut, err)
	}
	defer done()
	recs, height, err := c.History(ctx, after, limit)
	if err != nil {
		return fail(errOut, err)
	}
	for _, rec := range recs {
		fmt.Fprintf(out, "%d\t%s\t%d\t%s\t%s\n", rec.Seq, rec.Kind, rec.EntryID, rec.Caller, rec.Timestamp.UTC().Format(time.RFC3339))
	}
	fmt.Fprintf(errOut, "height %d\n", height)
	return 0
}
