// bitpystore-cli is an interactive REPL client for a running bitpystored
// instance: it speaks the §6.3 line protocol over a single TCP
// connection, the same way cmd/sloty drives a slotcache file directly.
//
// Usage:
//
//	bitpystore-cli [-addr host:port]
//
// Commands (in REPL):
//
//	put <key> <value> [ttl <n>]   Store a value, optionally with a TTL
//	get <key>                      Retrieve a value
//	del <key>                      Delete a value
//	ttl <key> <seconds>            Rewrite a key's expiry
//	stats                          Show engine statistics
//	compact                        Trigger compaction
//	help                           Show this help
//	exit / quit / q                Close the connection and exit
package main

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/peterh/liner"
	flag "github.com/spf13/pflag"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	fs := flag.NewFlagSet("bitpystore-cli", flag.ExitOnError)
	addr := fs.StringP("addr", "a", "127.0.0.1:8711", "address of a running bitpystored")

	if err := fs.Parse(os.Args[1:]); err != nil {
		return err
	}

	conn, err := net.Dial("tcp", *addr)
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", *addr, err)
	}
	defer conn.Close()

	reader := bufio.NewReader(conn)

	greeting, err := reader.ReadString('\n')
	if err != nil {
		return fmt.Errorf("reading greeting: %w", err)
	}

	fmt.Print(greeting)

	repl := &REPL{addr: *addr, conn: conn, reader: reader}

	return repl.Run()
}

// REPL is the interactive command loop, driven by liner the same way
// cmd/sloty drives its own prompt.
type REPL struct {
	addr   string
	conn   net.Conn
	reader *bufio.Reader
	liner  *liner.State
}

func historyFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	return filepath.Join(home, ".bitpystore_history")
}

// Run starts the REPL loop.
func (r *REPL) Run() error {
	r.liner = liner.NewLiner()
	defer r.liner.Close()

	r.liner.SetCtrlCAborts(true)
	r.liner.SetCompleter(r.completer)

	if f, err := os.Open(historyFile()); err == nil {
		r.liner.ReadHistory(f)
		f.Close()
	}

	fmt.Printf("bitpystore-cli connected to %s\n", r.addr)
	fmt.Println("Type 'help' for available commands.")
	fmt.Println()

	for {
		line, err := r.liner.Prompt("bitpystore> ")
		if err != nil {
			if err == liner.ErrPromptAborted || err == io.EOF {
				fmt.Println("\nBye!")
				break
			}

			return fmt.Errorf("reading input: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		r.liner.AppendHistory(line)

		fields := strings.Fields(line)
		cmd := strings.ToLower(fields[0])
		args := fields[1:]

		switch cmd {
		case "exit", "quit", "q":
			fmt.Println("Bye!")
			r.saveHistory()
			r.sendLine("EXIT")

			return nil

		case "help", "?":
			r.printHelp()

		case "put":
			r.cmdPut(args)

		case "get":
			r.cmdGet(args)

		case "del", "delete":
			r.cmdDel(args)

		case "ttl":
			r.cmdTTL(args)

		case "stats":
			r.cmdStats()

		case "compact":
			r.cmdCompact()

		case "clear", "cls":
			fmt.Print("\033[H\033[2J")

		default:
			fmt.Printf("Unknown command: %s (type 'help' for commands)\n", cmd)
		}
	}

	r.saveHistory()

	return nil
}

func (r *REPL) saveHistory() {
	if path := historyFile(); path != "" {
		if f, err := os.Create(path); err == nil {
			r.liner.WriteHistory(f)
			f.Close()
		}
	}
}

func (r *REPL) completer(line string) []string {
	commands := []string{
		"put", "get", "del", "delete", "ttl",
		"stats", "compact", "clear", "cls",
		"help", "exit", "quit", "q",
	}

	var matches []string

	for _, c := range commands {
		if strings.HasPrefix(c, line) {
			matches = append(matches, c)
		}
	}

	return matches
}

// sendLine writes a raw protocol line and returns the single response line
// that follows, without its trailing newline. STATS, whose response spans
// several "k: v" lines, is read by cmdStats instead.
func (r *REPL) sendLine(line string) string {
	if err := r.conn.SetDeadline(time.Now().Add(5 * time.Second)); err != nil {
		return fmt.Sprintf("connection error: %v", err)
	}

	if _, err := fmt.Fprintf(r.conn, "%s\n", line); err != nil {
		return fmt.Sprintf("write error: %v", err)
	}

	resp, err := r.reader.ReadString('\n')
	if err != nil {
		return fmt.Sprintf("read error: %v", err)
	}

	return strings.TrimRight(resp, "\n")
}

func (r *REPL) cmdPut(args []string) {
	if len(args) < 2 {
		fmt.Println("usage: put <key> <value> [ttl <n>]")
		return
	}

	key := args[0]
	rest := args[1:]

	var ttlClause string

	if len(rest) >= 2 && strings.EqualFold(rest[len(rest)-2], "ttl") {
		ttlClause = " TTL " + rest[len(rest)-1]
		rest = rest[:len(rest)-2]
	}

	value := strings.Join(rest, " ")

	fmt.Println(r.sendLine(fmt.Sprintf("PUT %s %s%s", key, value, ttlClause)))
}

func (r *REPL) cmdGet(args []string) {
	if len(args) < 1 {
		fmt.Println("usage: get <key>")
		return
	}

	fmt.Println(r.sendLine("GET " + args[0]))
}

func (r *REPL) cmdDel(args []string) {
	if len(args) < 1 {
		fmt.Println("usage: del <key>")
		return
	}

	fmt.Println(r.sendLine("DEL " + args[0]))
}

func (r *REPL) cmdTTL(args []string) {
	if len(args) != 2 {
		fmt.Println("usage: ttl <key> <seconds>")
		return
	}

	fmt.Println(r.sendLine("TTL " + strings.Join(args, " ")))
}

func (r *REPL) cmdStats() {
	if err := r.conn.SetDeadline(time.Now().Add(5 * time.Second)); err != nil {
		fmt.Printf("connection error: %v\n", err)
		return
	}

	if _, err := fmt.Fprintln(r.conn, "STATS"); err != nil {
		fmt.Printf("write error: %v\n", err)
		return
	}

	for i := 0; i < 6; i++ {
		line, err := r.reader.ReadString('\n')
		if err != nil {
			fmt.Printf("read error: %v\n", err)
			return
		}

		fmt.Print(line)
	}
}

func (r *REPL) cmdCompact() {
	fmt.Println(r.sendLine("COMPACT"))
}

func (r *REPL) printHelp() {
	fmt.Println(`Commands:
  put <key> <value> [ttl <n>]   Store a value, optionally with a TTL
  get <key>                      Retrieve a value
  del <key>                      Delete a value
  ttl <key> <seconds>            Rewrite a key's expiry
  stats                          Show engine statistics
  compact                        Trigger compaction
  clear                          Clear the screen
  help                           Show this help
  exit / quit / q                Close the connection and exit`)
}
