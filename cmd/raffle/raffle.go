/*
Raffle runs a self-operating raffle: players enter with a fee, a keeper starts a draw once
the interval has passed, and the winner picked from verifiable randomness takes the pool.
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/golang/glog"
	"github.com/livepeer/go-raffle/cmd/raffle/starter"
	"github.com/peterbourgon/ff/v3"
)

func main() {
	// Override the default flag set since there are dependencies that
	// incorrectly add their own flags (specifically, due to the 'testing'
	// package being linked)
	flag.Set("logtostderr", "true")
	vFlag := flag.Lookup("v")
	flag.CommandLine = flag.NewFlagSet(os.Args[0], flag.ExitOnError)

	flag.CommandLine.SetOutput(os.Stdout)

	// Help & Log
	version := flag.Bool("version", false, "Print out the version")
	verbosity := flag.String("v", "", "Log verbosity.  {4|5|6}")

	cfg := starter.NewRaffleConfig(flag.CommandLine)

	// Config file
	_ = flag.String("config", "", "Config file in the format 'key value', flags and env vars take precedence over the config file")
	err := ff.Parse(flag.CommandLine, os.Args[1:],
		ff.WithConfigFileFlag("config"),
		ff.WithEnvVarPrefix("RAFFLE"),
		ff.WithConfigFileParser(ff.PlainParser),
	)
	if err != nil {
		glog.Exit("Error parsing config: ", err)
	}

	vFlag.Value.Set(*verbosity)

	cfg = starter.UpdateNilsForUnsetFlags(flag.CommandLine, cfg)

	if *version {
		fmt.Println("Raffle Node Version: " + starter.Version)
		fmt.Printf("Golang runtime version: %s %s\n", runtime.Compiler, runtime.Version())
		fmt.Printf("Architecture: %s\n", runtime.GOARCH)
		fmt.Printf("Operating system: %s\n", runtime.GOOS)
		return
	}

	glog.Infof("Raffle node version: %v", starter.Version)
	cfg.PrintConfig(os.Stdout)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		starter.StartRaffle(ctx, cfg)
		close(done)
	}()

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	select {
	case sig := <-c:
		glog.Infof("Exiting raffle node: %v", sig)
		cancel()
		<-done
	case <-done:
		cancel()
	}
	glog.Flush()
}
