package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/eringen/folio"
	"github.com/eringen/folio/session"
)

const shutdownTimeout = 10 * time.Second

func runServe() error {
	cfg, err := folio.LoadConfig()
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := folio.New(cfg)
	defer app.Close()
	if err := app.Init(ctx); err != nil {
		return err
	}
	log.Printf("folio %s: %s mode, listening on %s", version, cfg.Env, cfg.Addr)

	errc := make(chan error, 1)
	go func() {
		errc <- app.Start(ctx)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := app.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return <-errc
}

func runHashAnswer(args []string, stdin io.Reader, stdout io.Writer) error {
	var answer string
	switch len(args) {
	case 0:
		line, err := bufio.NewReader(stdin).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("read answer: %w", err)
		}
		answer = line
	case 1:
		answer = args[0]
	default:
		return errors.New("usage: folio hash-answer [answer]")
	}
	hash, err := session.HashAnswer(strings.TrimSpace(answer))
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(stdout, hash)
	return err
}
