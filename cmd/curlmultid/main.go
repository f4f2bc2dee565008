// Command curlmultid is a minimal example host for the agent: it wires an
// in-process transport double (good enough for a smoke test without a
// native multi-interface binding) to the Agent facade, submits one GET,
// and prints the result. Grounded on the teacher's cmd/* daemons, which
// follow the same shape — parse flags, build the daemon's collaborators,
// run one representative operation, exit.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/NVIDIA/curlmulti/agent"
	"github.com/NVIDIA/curlmulti/agent/reqctx"
	"github.com/NVIDIA/curlmulti/cos"
	"github.com/NVIDIA/curlmulti/nlog"
	"github.com/NVIDIA/curlmulti/transport"
	"github.com/NVIDIA/curlmulti/transport/transporttest"
)

func main() {
	verbose := flag.Bool("verbose", false, "enable debug-callback logging")
	metricsAddr := flag.String("metrics-addr", "", "if set, serve Prometheus metrics on this address under /metrics")
	flag.Parse()

	if *verbose {
		nlog.SetDebug(true)
	}
	cos.InitIDGen(uint64(time.Now().UnixNano()))

	multi := transporttest.NewMulti()
	a := agent.New(multi, transporttest.Factory{})
	defer a.Dispose()

	if *metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", a.StatsHandler())
		srv := &http.Server{Addr: *metricsAddr, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				nlog.Errorf("metrics server: %v", err)
			}
		}()
		defer srv.Close()
	}

	easy, err := a.NewEasy()
	if err != nil {
		fmt.Fprintln(os.Stderr, "new easy:", err)
		os.Exit(1)
	}
	easy.(*transporttest.ScriptedEasy).SetScript(&transporttest.Script{
		StatusLine: "HTTP/1.1 200 OK",
		Headers:    []string{"Content-Type: text/plain"},
		Body:       []byte("hello from curlmulti\n"),
	})

	out := &collectSink{}
	_, future := a.Submit(context.Background(), "https://example.com/hello", easy, nil, out, nil)

	resp, err := future.Result()
	if err != nil {
		fmt.Fprintln(os.Stderr, "transfer failed:", err)
		os.Exit(1)
	}
	fmt.Printf("status=%d headers=%v\nbody=%s", resp.Status, resp.Headers, out.data)
}

// collectSink accumulates the response body in memory; real callers stream
// to whatever destination they have (spec §6 ResponseSink contract).
type collectSink struct{ data []byte }

func (s *collectSink) TransferDataToStream(data []byte) (transport.Disposition, error) {
	s.data = append(s.data, data...)
	return transport.Accepted, nil
}

var _ reqctx.ResponseSink = (*collectSink)(nil)
