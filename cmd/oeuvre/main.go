package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		printUsage(errOut)
		return 2
	}

	switch args[0] {
	case "serve":
		return cmdServe(args[1:], out, errOut)
	case "mint":
		return cmdMint(args[1:], out, errOut)
	case "get":
		return cmdGet(args[1:], out, errOut)
	case "list":
		return cmdList(args[1:], out, errOut)
	case "owner":
		return cmdOwner(args[1:], out, errOut)
	case "update":
		return cmdUpdate(args[1:], out, errOut)
	case "renderer":
		return cmdRenderer(args[1:], out, errOut)
	case "transfer":
		return cmdTransfer(args[1:], out, errOut)
	case "resolve":
		return cmdResolve(args[1:], out, errOut)
	case "history":
		return cmdHistory(args[1:], out, errOut)
	case "commit":
		return cmdCommit(args[1:], out, errOut)
	case "replay":
		return cmdReplay(args[1:], out, errOut)
	case "key":
		return cmdKey(args[1:], out, errOut)
	case "help", "-h", "--help":
		printUsage(out)
		return 0
	default:
		fmt.Fprintf(errOut, "unknown command: %s\n\n", args[0])
		printUsage(errOut)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "oeuvre: permanent registry of creative works")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  oeuvre serve [--config <file>] [--listen <addr>]")
	fmt.Fprintln(w, "  oeuvre mint (--payload <text> | --payload-file <file>) [--owner <p>] [--royalty <bps>]")
	fmt.Fprintln(w, "  oeuvre get <id>")
	fmt.Fprintln(w, "  oeuvre list <owner>")
	fmt.Fprintln(w, "  oeuvre owner <id>")
	fmt.Fprintln(w, "  oeuvre update <id> <pointer>")
	fmt.Fprintln(w, "  oeuvre renderer <id> <ref> [--disable]")
	fmt.Fprintln(w, "  oeuvre transfer <id> --to <principal>")
	fmt.Fprintln(w, "  oeuvre resolve <id> [--follow] [--fallback]")
	fmt.Fprintln(w, "  oeuvre history [--after <seq>] [--limit <n>]")
	fmt.Fprintln(w, "  oeuvre commit <file>")
	fmt.Fprintln(w, "  oeuvre replay --journal <kind:path> [--trust <principal> ...] [--records]")
	fmt.Fprintln(w, "  oeuvre key init --name <name> [--seed-hex <64hex>] [--force]")
	fmt.Fprintln(w, "  oeuvre key show --name <name> [--purpose <p> --alg ed25519|dilithium3]")
	fmt.Fprintln(w, "  oeuvre key list")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Client flags (every command from mint to history):")
	fmt.Fprintln(w, "  --target <addr>   registry address (default $OEUVRE_TARGET or 127.0.0.1:7420)")
	fmt.Fprintln(w, "  --as <principal>  acting principal (default $OEUVRE_AS)")
	fmt.Fprintln(w, "  --key <name>      act as the ed25519 principal of a stored key")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Notes:")
	fmt.Fprintln(w, "  - metadata and renderer edits are accepted from the creator for 24h after mint")
	fmt.Fprintln(w, "  - commit prints the content commitment a mint of the file would record")
	fmt.Fprintln(w, "  - keys live under ~/.oeuvre/keys/<name>.seed (0600), or $OEUVRE_KEYS")
	fmt.Fprintln(w, "  - journal kinds: memory, jsonl:<file>, sqlite:<file>, cas:<dir>")
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
