package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

func main() {
	var model, host, port, device, prefix string
	var fail bool
	flag.StringVar(&model, "m", "", "model path")
	flag.StringVar(&device, "d", "CPU", "device")
	flag.StringVar(&host, "host", "127.0.0.1", "host")
	flag.StringVar(&port, "port", "0", "port")
	flag.StringVar(&prefix, "prefix", "/v1", "api path prefix")
	flag.BoolVar(&fail, "fail", false, "exit before serving")
	flag.Parse()

	if fail {
		fmt.Fprintln(os.Stderr, "cannot load model", model)
		os.Exit(3)
	}

	mux := http.NewServeMux()
	mux.HandleFunc(prefix+"/models", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[{"id":"test","object":"model"}]}`))
	})
	mux.HandleFunc(prefix+"/completions", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, tok := range []string{"on ", device} {
			fmt.Fprintf(w, "data: {\"choices\":[{\"text\":%q}]}\n\n", tok)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	})

	srv := &http.Server{Addr: host + ":" + port, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	<-sigCh
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
}
