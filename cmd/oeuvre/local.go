package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"xdao.co/oeuvre/cidutil"
	"xdao.co/oeuvre/journal"
	"xdao.co/oeuvre/keys"
	"xdao.co/oeuvre/registry"
)

type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }
func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

func cmdCommit(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("commit", flag.ContinueOnError)
	fs.SetOutput(errOut)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(errOut, "usage: oeuvre commit <file>")
		return 2
	}
	b, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(errOut, "read payload: %v\n", err)
		return 1
	}
	if len(b) == 0 || len(b) > registry.MaxPayloadBytes {
		fmt.Fprintf(errOut, "payload must be 1..%d bytes, got %d\n", registry.MaxPayloadBytes, len(b))
		return 1
	}
	id, err := cidutil.Commit(string(b))
	if err != nil {
		fmt.Fprintf(errOut, "commit: %v\n", err)
		return 1
	}
	fmt.Fprintln(out, id)
	return 0
}

type replaySummary struct {
	Height  uint64 `json:"height"`
	Entries int    `json:"entries"`
	Owners  int    `json:"owners"`
	Signed  bool   `json:"signed"`
}

func cmdReplay(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("replay", flag.ContinueOnError)
	fs.SetOutput(errOut)

	var spec string
	var trusted stringList
	var records bool

	fs.StringVar(&spec, "journal", "", "Journal as kind:path (jsonl, sqlite, cas)")
	fs.Var(&trusted, "trust", "Require every record to be signed by this principal (repeatable)")
	fs.BoolVar(&records, "records", false, "Print every record as JSON lines")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if spec == "" {
		fmt.Fprintln(errOut, "missing --journal")
		return 2
	}
	kind, path, err := journal.ParseSpec(spec)
	if err != nil {
		fmt.Fprintf(errOut, "invalid --journal: %v\n", err)
		return 2
	}
	if kind == journal.KindMemory {
		fmt.Fprintln(errOut, "invalid --journal: a memory journal has nothing to replay")
		return 2
	}
	j, err := journal.Open(kind, path)
	if err != nil {
		fmt.Fprintf(errOut, "open journal: %v\n", err)
		return 1
	}
	defer j.Close()

	reg, err := journal.Replay(j)
	if err != nil {
		return fail(errOut, err)
	}
	recs := reg.Records(0)
	if len(trusted) > 0 {
		if err := journal.VerifyAll(recs, trusted...); err != nil {
			fmt.Fprintf(errOut, "signatures: %v\n", err)
			return 1
		}
	}

	if records {
		for _, rec := range recs {
			b, err := journal.Encode(rec)
			if err != nil {
				fmt.Fprintln(errOut, err)
				return 1
			}
			fmt.Fprintln(out, string(b))
		}
		return 0
	}
	st := reg.Stats()
	_ = printJSON(out, replaySummary{
		Height:  st.Height,
		Entries: st.Entries,
		Owners:  st.Owners,
		Signed:  len(trusted) > 0,
	})
	return 0
}

func cmdKey(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		printKeyUsage(errOut)
		return 2
	}
	switch args[0] {
	case "init":
		return cmdKeyInit(args[1:], out, errOut)
	case "show":
		return cmdKeyShow(args[1:], out, errOut)
	case "list":
		return cmdKeyList(args[1:], out, errOut)
	case "help", "-h", "--help":
		printKeyUsage(out)
		return 0
	default:
		fmt.Fprintf(errOut, "unknown key subcommand: %s\n\n", args[0])
		printKeyUsage(errOut)
		return 2
	}
}

func printKeyUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  oeuvre key init --name <name> [--seed-hex <64hex>] [--force]")
	fmt.Fprintln(w, "  oeuvre key show --name <name> [--purpose <p> --alg ed25519|dilithium3]")
	fmt.Fprintln(w, "  oeuvre key list")
}

func keyStore(errOut io.Writer) (*keys.KeyStore, bool) {
	ks, err := keys.OpenKeyStore(os.Getenv("OEUVRE_KEYS"))
	if err != nil {
		fmt.Fprintf(errOut, "keys: %v\n", err)
		return nil, false
	}
	return ks, true
}

func cmdKeyInit(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("key init", flag.ContinueOnError)
	fs.SetOutput(errOut)

	var name string
	var seedHex string
	var force bool

	fs.StringVar(&name, "name", "", "Key name")
	fs.StringVar(&seedHex, "seed-hex", "", "Optional ed25519 seed as 64 hex chars (for reproducible setups)")
	fs.BoolVar(&force, "force", false, "Overwrite an existing key")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if name == "" {
		fmt.Fprintln(errOut, "missing --name")
		return 2
	}
	if err := keys.CheckName(name); err != nil {
		fmt.Fprintf(errOut, "invalid --name: %v\n", err)
		return 2
	}
	var seed []byte
	if seedHex != "" {
		var err error
		if seed, err = keys.ParseSeedHex(seedHex); err != nil {
			fmt.Fprintf(errOut, "invalid --seed-hex: %v\n", err)
			return 2
		}
	}
	ks, ok := keyStore(errOut)
	if !ok {
		return 1
	}
	principal, path, err := ks.Init(name, seed, force)
	if err != nil {
		fmt.Fprintf(errOut, "write key: %v\n", err)
		return 1
	}
	fmt.Fprintf(out, "Created key: %s\n", principal)
	fmt.Fprintf(out, "Stored at: %s\n", path)
	return 0
}

func cmdKeyShow(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("key show", flag.ContinueOnError)
	fs.SetOutput(errOut)

	var name string
	var purpose string
	var alg string

	fs.StringVar(&name, "name", "", "Key name")
	fs.StringVar(&purpose, "purpose", "", "Show the derived signing key for this purpose (e.g. journal)")
	fs.StringVar(&alg, "alg", keys.AlgEd25519, "Algorithm of the derived key")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if name == "" {
		fmt.Fprintln(errOut, "missing --name")
		return 2
	}
	ks, ok := keyStore(errOut)
	if !ok {
		return 1
	}
	if purpose == "" {
		seed, err := ks.Seed(name)
		if err != nil {
			fmt.Fprintf(errOut, "read key: %v\n", err)
			return 1
		}
		principal, err := keys.PrincipalFromSeed(seed)
		if err != nil {
			fmt.Fprintf(errOut, "key: %v\n", err)
			return 1
		}
		fmt.Fprintln(out, principal)
		return 0
	}
	signer, err := ks.Signer(name, purpose, alg)
	if err != nil {
		fmt.Fprintf(errOut, "derive key: %v\n", err)
		return 1
	}
	fmt.Fprintln(out, signer.KeyID())
	return 0
}

func cmdKeyList(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("key list", flag.ContinueOnError)
	fs.SetOutput(errOut)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	ks, ok := keyStore(errOut)
	if !ok {
		return 1
	}
	names, err := ks.Names()
	if err != nil {
		fmt.Fprintf(errOut, "list keys: %v\n", err)
		return 1
	}
	for _, n := range names {
		fmt.Fprintln(out, n)
	}
	return 0
}
