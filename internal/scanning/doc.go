// Package scanning provides the concurrent TCP scanning engine for bannerscan.
//
// # Overview
//
// A scan is built from three pieces:
//
//   - ServiceName: static port to service-name table, "Unknown" otherwise.
//   - Prober: one timeout-bounded TCP connect, an optional HTTP nudge on
//     port 80, and a single bounded banner read.
//   - HostScanner: launches one probe per port of a PortRange, bounded by a
//     weighted semaphore, and streams results back over a channel as each
//     probe completes.
//
// # Classification
//
// Every probe ends in exactly one of three states:
//
//   - open: the connection succeeded. Service and Banner are set; the banner
//     may be empty when the peer sent nothing before the deadline.
//   - closed: the connection was refused, the host or network was
//     unreachable, or the connect timed out.
//   - error: anything else (name resolution failure, local socket errors,
//     resets while reading, cancellation). ErrorDetail describes it.
//
// Errors never escape a probe and never affect sibling probes.
//
// # Usage
//
//	prober := scanning.NewProber(scanning.WithBannerSize(100))
//	scanner := scanning.NewHostScanner(prober, scanning.WithConcurrency(500))
//
//	rng, _ := scanning.ParsePortRange("20-8080")
//	result, err := scanner.Scan(ctx, "127.0.0.1", rng, 2*time.Second,
//		func(p scanning.Progress) {
//			fmt.Printf("[%d/%d] %s %s\n", p.Completed, p.Total, p.Result.Address(), p.Result.Status)
//		})
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	for _, open := range result.Open() {
//		fmt.Println(open.Port, open.Service, open.Banner)
//	}
//
// # Concurrency
//
// Probes share no mutable state. The only synchronization point is the
// results channel, which is buffered to the size of the range so a slow
// progress consumer never delays probe completion. The number of sockets
// open at once is capped by the scanner's concurrency setting.
package scanning
