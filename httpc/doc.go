// Package httpc provides a streaming HTTP/1.1 client built around a pair
// of cooperating state machines: a RequestStream that writes a request
// body out and a ResponseStream that pulls a response body in, over a
// single reused connection with strictly one exchange in flight.
//
// Highlights
//   - Streaming both ways: body fragments go out via SendSome/SendEOF
//     (chunked transfer coding when requested) and come back via
//     RecvSome, without buffering whole messages.
//   - Header prefetch: PrefetchHeaders parses the response header while
//     preserving any body bytes read past the header/body boundary.
//   - Cooperative cancellation: a shared abort signal plus Shutdown make
//     pending and future operations fail fast with ErrAborted instead of
//     hanging.
//   - Observability: plug-in Logger and Meter interfaces.
//
// Quick start:
//
//	c := httpc.NewClient(httpc.Config{Addr: "127.0.0.1:8080"})
//	defer c.Shutdown()
//	hdr := &http1.RequestHeader{Method: "GET", Target: "/ping",
//	    Fields: http1.Header{"Host": {"127.0.0.1"}}}
//	res, err := c.RequestNoBody(ctx, hdr)
//	if err != nil { log.Fatal(err) }
//	if err := res.PrefetchHeaders(ctx); err != nil { log.Fatal(err) }
//	b, _ := io.ReadAll(res.Reader(ctx))
//	fmt.Println(res.Headers().Status, string(b))
package httpc
