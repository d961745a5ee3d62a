package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/sirupsen/logrus"

	"cinegate/pkg/logging"
	"cinegate/pkg/utils"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:7070", "TCP sync server address")
	pretty := flag.Bool("pretty", true, "pretty print JSON events")
	only := flag.String("type", "", "only print events of this type (e.g. settings.ads)")
	flag.Parse()

	log := logging.NewLogger("sync-client", utils.LoadLogConfig())
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// reconnect forever with capped backoff until interrupted
	err := retry.Do(
		func() error { return run(ctx, *addr, *pretty, *only, log, os.Stdout) },
		retry.Context(ctx),
		retry.Attempts(0),
		retry.Delay(500*time.Millisecond),
		retry.MaxDelay(10*time.Second),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			log.WithError(err).WithField("attempt", n+1).Warn("disconnected, reconnecting")
		}),
	)
	if err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("sync client stopped")
	}
}

func run(ctx context.Context, addr string, pretty bool, only string, log *logrus.Entry, out io.Writer) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	defer conn.Close()
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	log.WithField("addr", addr).Info("connected")

	sc := bufio.NewScanner(conn)
	for sc.Scan() {
		printEvent(out, sc.Bytes(), pretty, only)
	}
	if ctx.Err() != nil {
		return retry.Unrecoverable(ctx.Err())
	}
	if err := sc.Err(); err != nil {
		return err
	}
	return io.EOF
}

func printEvent(out io.Writer, line []byte, pretty bool, only string) {
	var obj map[string]any
	if err := json.Unmarshal(line, &obj); err != nil {
		if only == "" {
			fmt.Fprintln(out, string(line))
		}
		return
	}
	if only != "" && obj["type"] != only {
		return
	}
	if !pretty {
		fmt.Fprintln(out, string(line))
		return
	}
	b, _ := json.MarshalIndent(obj, "", "  ")
	fmt.Fprintln(out, string(b))
}
