// Command taskmasterctl is the control client: it dials the daemon's TCP
// control port, forwards whatever the operator types as one command per
// line, and prints the pipe-delimited response segments one per line.
//
// The interactive line editor with history and tab completion named in
// spec.md §6.3 is an external collaborator and is not implemented here;
// this is a bare bufio.Scanner REPL, following the teacher's minimal
// main.go -> package Run() wrapper pattern.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"net"
	"os"
	"strings"
	"time"
)

var (
	host  = flag.String("h", "127.0.0.1", "Daemon host")
	port  = flag.Int("p", 9001, "Daemon control port")
	debug = flag.Bool("d", false, "Print the raw command before sending it")
)

func init() {
	flag.BoolVar(debug, "debug", false, "Long form of -d")
}

func main() {
	flag.Parse()

	addr := fmt.Sprintf("%s:%d", *host, *port)
	conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		fmt.Fprintf(os.Stderr, "taskmasterctl: could not connect to %s: %v\n", addr, err)
		os.Exit(1)
	}
	defer conn.Close()

	repl(conn, os.Stdin, os.Stdout)
}

func repl(conn net.Conn, in *os.File, out *os.File) {
	stdin := bufio.NewScanner(in)
	reader := bufio.NewReader(conn)

	fmt.Fprint(out, "taskmaster> ")
	for stdin.Scan() {
		cmd := strings.TrimSpace(stdin.Text())
		if cmd == "" {
			fmt.Fprint(out, "taskmaster> ")
			continue
		}
		if *debug {
			fmt.Fprintf(out, "-> %s\n", cmd)
		}

		if _, err := fmt.Fprintf(conn, "%s\n", cmd); err != nil {
			fmt.Fprintf(os.Stderr, "taskmasterctl: write failed: %v\n", err)
			return
		}

		line, err := reader.ReadString('\n')
		if err != nil {
			fmt.Fprintf(os.Stderr, "taskmasterctl: connection closed: %v\n", err)
			return
		}
		printResponse(out, line)

		if strings.EqualFold(cmd, "shutdown") {
			return
		}
		fmt.Fprint(out, "taskmaster> ")
	}
}

// printResponse splits the daemon's pipe-delimited response into one
// line of output per record (spec.md §6.2).
func printResponse(out *os.File, line string) {
	line = strings.TrimRight(line, "\n")
	for _, segment := range strings.Split(line, "|") {
		if segment == "" {
			continue
		}
		fmt.Fprintln(out, segment)
	}
}
