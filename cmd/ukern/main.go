package main

import "context"
import "flag"
import "fmt"
import "io"
import "log/slog"
import "os"
import "path/filepath"

import "github.com/canliroc/CS371/kernel"
import "github.com/canliroc/CS371/stats"
import "github.com/canliroc/CS371/tracing"
import "github.com/canliroc/CS371/ucpu"

import "github.com/viant/afs"

func main() {
	cfgurl := flag.String("config", "", "afs URL of a YAML boot configuration")
	loglevel := flag.String("loglevel", "", "override the configured log level")
	showstats := flag.Bool("stats", false, "print kernel counters at halt")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: ukern [flags] [hostfile ...]\n")
		fmt.Fprintf(os.Stderr, "Boots the kernel; host files are copied into the file store first\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if err := run(*cfgurl, *loglevel, *showstats, flag.Args()); err != nil {
		fmt.Fprintf(os.Stderr, "ukern: %v\n", err)
		os.Exit(1)
	}
}

func run(cfgurl, loglevel string, showstats bool, hostfiles []string) error {
	ctx := context.Background()
	store := afs.New()

	cfg := kernel.DefaultConfig()
	if cfgurl != "" {
		var err error
		if cfg, err = kernel.LoadConfig(ctx, store, cfgurl); err != nil {
			return err
		}
	}
	if loglevel != "" {
		cfg.Loglevel = loglevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	kernel.Loginit(os.Stderr, cfg.Loglevel, "ukern")

	cpu := ucpu.MkCpu()
	k, err := kernel.MkKernel(ctx, cfg, store, os.Stdin, os.Stdout, cpu)
	if err != nil {
		return err
	}

	if cfg.Trace != "" {
		if err := starttrace(cfg.Trace, k.Id, os.Stderr); err != nil {
			return fmt.Errorf("failed to start tracing: %w", err)
		}
		defer func() {
			if err := tracing.Shutdown(ctx); err != nil {
				slog.Warn("tracing shutdown", "err", err)
			}
		}()
	}

	if err := cpu.Install(ctx, k.Fs); err != nil {
		return err
	}
	for _, hf := range hostfiles {
		if err := install(ctx, store, k, hf); err != nil {
			return err
		}
	}

	if err := k.Boot(); err != nil {
		return err
	}
	<-k.Halted()
	if showstats {
		fmt.Fprint(os.Stderr, stats.Stats2String(k.Stats()))
	}
	return nil
}

// "-" sends spans to errw; stdout carries the console
func starttrace(trace, id string, errw io.Writer) error {
	if trace == "-" {
		return tracing.InitWriter("ukern", id, errw)
	}
	return tracing.Init("ukern", id, trace)
}

// copies a host file into the kernel's store under its base name
func install(ctx context.Context, store afs.Service, k *kernel.Kernel_t, path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	data, err := store.DownloadWithURL(ctx, "file://"+abs)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	name := filepath.Base(path)
	if err := k.Fs.Fs_install(ctx, name, data); err != nil {
		return err
	}
	slog.Debug("installed host file", "name", name, "bytes", len(data))
	return nil
}
