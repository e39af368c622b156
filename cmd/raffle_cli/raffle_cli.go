package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/golang/glog"
	"github.com/livepeer/go-raffle/cmd/raffle/starter"
	"github.com/urfave/cli"
)

func main() {
	// Set glog flag values
	flag.Set("logtostderr", "true")
	flag.CommandLine.Parse([]string{})

	app := cli.NewApp()
	app.Name = "raffle-cli"
	app.Usage = "interact with a local raffle node"
	app.Version = starter.Version
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "http",
			Usage: "local cli port",
			Value: starter.RaffleCliPort,
		},
		cli.StringFlag{
			Name:  "host",
			Usage: "host for the raffle node",
			Value: "localhost",
		},
		cli.IntFlag{
			Name:  "loglevel",
			Value: 3,
			Usage: "log level to emit to the screen",
		},
	}
	app.Action = func(c *cli.Context) error {
		// Set up the logger to print everything
		flag.Set("v", fmt.Sprint(c.Int("loglevel")))

		// Start the wizard and relinquish control
		w := newWizard(c.String("host"), c.String("http"), os.Stdin, os.Stdout)
		w.run()

		return nil
	}
	app.Run(os.Args)
}

type wizard struct {
	endpoint string // Local raffle node
	httpPort string
	host     string
	in       *bufio.Reader // Wrapper around stdin to allow reading user input
	out      io.Writer
}

func newWizard(host, httpPort string, in io.Reader, out io.Writer) *wizard {
	return &wizard{
		endpoint: fmt.Sprintf("http://%v:%v/status", host, httpPort),
		httpPort: httpPort,
		host:     host,
		in:       bufio.NewReader(in),
		out:      out,
	}
}

type wizardOpt struct {
	desc   string
	invoke func()
}

func (w *wizard) initializeOptions() []wizardOpt {
	return []wizardOpt{
		{desc: "Get raffle status", invoke: func() { w.stats() }},
		{desc: "List players in the current cycle", invoke: w.showPlayers},
		{desc: "Enter the raffle", invoke: w.enter},
		{desc: "Check whether upkeep is needed", invoke: w.checkUpkeep},
		{desc: "Start a raffle cycle (perform upkeep)", invoke: w.performUpkeep},
		{desc: "Fulfill a pending randomness request", invoke: w.fulfillRandomWords},
		{desc: "Retry a failed payout", invoke: w.retryPayout},
		{desc: "List recent winners", invoke: w.showWinners},
		{desc: "Show deployment info", invoke: w.showInfo},
	}
}

func (w *wizard) run() {
	// Make sure there is a local node running
	resp, err := http.Get(w.endpoint)
	if err != nil {
		glog.Errorf("Cannot find local node. Is your node running on http:%v?", w.httpPort)
		return
	}
	resp.Body.Close()

	fmt.Fprintln(w.out, "+-----------------------------------------------------------+")
	fmt.Fprintln(w.out, "| Welcome to raffle-cli, your raffle command line tool      |")
	fmt.Fprintln(w.out, "|                                                           |")
	fmt.Fprintln(w.out, "| This tool lets you enter and operate a local raffle node  |")
	fmt.Fprintln(w.out, "+-----------------------------------------------------------+")
	fmt.Fprintln(w.out)

	w.stats()

	options := w.initializeOptions()
	// Basics done, loop ad infinitum about what to do
	for {
		fmt.Fprintln(w.out)
		fmt.Fprintln(w.out, "What would you like to do? (default = stats)")
		for i, opt := range options {
			fmt.Fprintf(w.out, "%d. %s\n", i+1, opt.desc)
		}

		choice, ok := w.readChoice(len(options))
		if !ok {
			return
		}
		if choice == 0 {
			w.stats()
			continue
		}
		options[choice-1].invoke()
	}
}
