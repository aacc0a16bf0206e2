// Command shmctl talks to a running arbiter.
//
//	shmctl [-address @shm_man] create NAME SIZE
//	shmctl get NAME
//	shmctl remove NAME
//	shmctl quit
//	shmctl wait
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dustin/go-humanize"

	"github.com/srediag/shm-arbiter/pkg/health"
	"github.com/srediag/shm-arbiter/pkg/shm"
)

var (
	address = flag.String("address", "@shm_man", "arbiter socket, '@name' for the abstract namespace")
	timeout = flag.Duration("timeout", 5*time.Second, "overall deadline")
	hexdump = flag.Int("dump", 0, "after create or get, print this many leading bytes of the segment")
)

var errUsage = errors.New("usage: shmctl [flags] create NAME SIZE | get NAME | remove NAME | quit | wait")

func main() {
	flag.Usage = func() {
		fmt.Fprintln(flag.CommandLine.Output(), errUsage)
		flag.PrintDefaults()
	}
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	if err := run(ctx, flag.Args(), os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "shmctl: %v\n", err)
		if errors.Is(err, errUsage) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}
	if args[0] == "wait" {
		if len(args) != 1 {
			return errUsage
		}
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = 10 * time.Millisecond
		b.MaxElapsedTime = 0
		if err := health.WaitForArbiterContext(ctx, *address, b); err != nil {
			return err
		}
		fmt.Fprintf(out, "arbiter at %s is accepting connections\n", *address)
		return nil
	}

	conf := shm.DefaultClientConfig()
	conf.Address = *address
	conf.LogOutput = os.Stderr
	client, err := shm.NewClient(conf)
	if err != nil {
		return err
	}

	switch {
	case args[0] == "create" && len(args) == 3:
		size, err := humanize.ParseBytes(args[2])
		if err != nil {
			return fmt.Errorf("size %q: %w", args[2], err)
		}
		h, err := client.Create(ctx, args[1], int(size))
		if err != nil {
			return err
		}
		defer h.Close()
		fmt.Fprintf(out, "created %q: %s\n", args[1], humanize.IBytes(uint64(h.Size())))
		return dump(out, h)
	case args[0] == "get" && len(args) == 2:
		h, err := client.Get(ctx, args[1])
		if err != nil {
			return err
		}
		defer h.Close()
		fmt.Fprintf(out, "%q: %s\n", args[1], humanize.IBytes(uint64(h.Size())))
		return dump(out, h)
	case args[0] == "remove" && len(args) == 2:
		if err := client.Remove(ctx, args[1]); err != nil {
			return err
		}
		fmt.Fprintf(out, "removed %q\n", args[1])
		return nil
	case args[0] == "quit" && len(args) == 1:
		return client.Quit(ctx)
	}
	return errUsage
}

func dump(out io.Writer, h *shm.Handle) error {
	if *hexdump <= 0 {
		return nil
	}
	if err := h.Map(0); err != nil {
		return err
	}
	n := min(*hexdump, h.Size())
	fmt.Fprintf(out, "% x\n", h.Bytes()[:n])
	return nil
}
