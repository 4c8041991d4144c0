// Command httpc-get fetches a target over HTTP/1.1 and streams the body
// to stdout.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/askngan/redpanda/httpc"
	"github.com/askngan/redpanda/httpc/http1"
	"github.com/askngan/redpanda/internal/obs"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:8080", "host:port to connect to")
	target := flag.String("target", "/", "request target")
	timeout := flag.Duration("timeout", 30*time.Second, "overall deadline")
	verbose := flag.Bool("v", false, "log client internals")
	flag.Parse()

	cfg := httpc.Config{Addr: *addr, DialTimeout: 5 * time.Second}
	if *verbose {
		cfg.Logger = obs.StdLogger{L: log.New(os.Stderr, "httpc ", log.LstdFlags)}
	}
	c := httpc.NewClient(cfg)
	defer c.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	hdr := &http1.RequestHeader{
		Method: "GET",
		Target: *target,
		Fields: http1.Header{},
	}
	hdr.Fields.Set("Host", *addr)

	res, err := c.RequestNoBody(ctx, hdr)
	if err != nil {
		log.Fatal(err)
	}
	if err := res.PrefetchHeaders(ctx); err != nil {
		log.Fatal(err)
	}
	fmt.Fprintf(os.Stderr, "%s %d %s\n", res.Headers().Proto, res.Headers().Status, res.Headers().Reason)
	if _, err := io.Copy(os.Stdout, res.Reader(ctx)); err != nil {
		log.Fatal(err)
	}
}
