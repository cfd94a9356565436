// streamctl submits records to and retrieves them from streamd
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/kjk/airsense/client"
)

const usage = `usage: streamctl [--server URL] <command>

commands:
  submit <path> <payload>  add a record, payload "-" reads from stdin
  get <path>               print all records
  ping                     check that the server is up
`

func run(ctx context.Context, args []string, stdin io.Reader, stdout io.Writer, stderr io.Writer) error {
	flagSet := pflag.NewFlagSet("streamctl", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	serverURL := flagSet.String("server", "http://localhost:80", "url of streamd server")
	timeout := flagSet.Duration("timeout", 10*time.Second, "request timeout")
	flagSet.Usage = func() {
		fmt.Fprint(stderr, usage)
		flagSet.PrintDefaults()
	}
	if err := flagSet.Parse(args); err != nil {
		return err
	}
	args = flagSet.Args()
	if len(args) == 0 {
		flagSet.Usage()
		return errors.New("missing command")
	}

	c := client.New(*serverURL)
	c.Timeout = *timeout
	cmd, args := args[0], args[1:]
	switch cmd {
	case "submit":
		if len(args) != 2 {
			return errors.New("submit needs <path> and <payload>")
		}
		payload := []byte(args[1])
		if args[1] == "-" {
			d, err := io.ReadAll(stdin)
			if err != nil {
				return err
			}
			payload = d
		}
		return c.Submit(ctx, args[0], payload)
	case "get":
		if len(args) != 1 {
			return errors.New("get needs <path>")
		}
		d, err := c.Retrieve(ctx, args[0])
		if err != nil {
			return err
		}
		_, err = stdout.Write(d)
		return err
	case "ping":
		if err := c.Ping(ctx); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "%s is up\n", strings.TrimSuffix(*serverURL, "/"))
		return nil
	}
	flagSet.Usage()
	return fmt.Errorf("unknown command '%s'", cmd)
}

func main() {
	err := run(context.Background(), os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	if errors.Is(err, pflag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "streamctl: %s\n", err)
		if errors.Is(err, client.ErrNotFound) {
			os.Exit(3)
		}
		os.Exit(1)
	}
}
