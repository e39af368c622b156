package main

import (
	"fmt"
	"strconv"

	humanize "github.com/dustin/go-humanize"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/golang/glog"
	"github.com/livepeer/go-raffle/common"
	"github.com/olekukonko/tablewriter"
)

func (w *wizard) stats() {
	s, err := w.getStatus()
	if err != nil {
		glog.Errorf("Error getting raffle status err=%q", err)
		return
	}

	fmt.Fprintln(w.out, "+------------+")
	fmt.Fprintln(w.out, "|RAFFLE STATS|")
	fmt.Fprintln(w.out, "+------------+")

	table := tablewriter.NewWriter(w.out)
	data := [][]string{
		{"Raffle Address", s.Address.Hex()},
		{"State", s.State},
		{"Entrance Fee", common.FormatWei(s.EntranceFee)},
		{"Interval", s.Interval},
		{"Players", strconv.Itoa(s.NumPlayers)},
		{"Balance", common.FormatWei(s.Balance)},
		{"Cycle Started", humanize.Time(unixTime(s.LatestTimestamp))},
		{"Recent Winner", formatWinner(s.RecentWinner)},
	}
	if s.Pending != nil {
		data = append(data,
			[]string{"Pending Request", s.Pending.ID.String()},
			[]string{"Requested", humanize.Time(unixTime(s.Pending.RequestedAt))},
			[]string{"Randomness Delivered", strconv.FormatBool(s.Pending.Fulfilled)},
		)
	}
	for _, v := range data {
		table.Append(v)
	}

	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("*")
	table.SetColumnSeparator("|")
	table.Render()
}

func formatWinner(addr ethcommon.Address) string {
	if (addr == ethcommon.Address{}) {
		return "None"
	}
	return addr.Hex()
}

func (w *wizard) showPlayers() {
	var players []ethcommon.Address
	if err := w.getJSON("/players", &players); err != nil {
		glog.Errorf("Error getting players err=%q", err)
		return
	}
	if len(players) == 0 {
		fmt.Fprintln(w.out, "No players have entered the current cycle")
		return
	}

	table := tablewriter.NewWriter(w.out)
	table.SetHeader([]string{"Index", "Player"})
	for i, p := range players {
		table.Append([]string{strconv.Itoa(i), p.Hex()})
	}
	table.Render()
}

func (w *wizard) showWinners() {
	var winners []winner
	if err := w.getJSON("/winners", &winners); err != nil {
		glog.Errorf("Error getting winners err=%q", err)
		return
	}
	if len(winners) == 0 {
		fmt.Fprintln(w.out, "No raffle cycle has completed yet")
		return
	}

	table := tablewriter.NewWriter(w.out)
	table.SetHeader([]string{"Request ID", "Winner", "Amount", "Picked"})
	for _, wp := range winners {
		table.Append([]string{
			wp.RequestID.String(),
			wp.Winner.Hex(),
			common.FormatWei(wp.Amount),
			humanize.Time(unixTime(wp.Timestamp)),
		})
	}
	table.Render()
}

func (w *wizard) showInfo() {
	var i info
	if err := w.getJSON("/info", &i); err != nil {
		glog.Errorf("Error getting deployment info err=%q", err)
		return
	}

	coordinator := i.VRFCoordinator
	if coordinator == "" {
		coordinator = "in-process mock"
	}

	table := tablewriter.NewWriter(w.out)
	data := [][]string{
		{"Network", i.Network},
		{"Chain ID", i.ChainID.String()},
		{"Raffle Address", i.Address.Hex()},
		{"Entrance Fee", common.FormatWei(i.EntranceFee)},
		{"Interval", i.Interval},
		{"Gas Lane", i.GasLane.Hex()},
		{"VRF Coordinator", coordinator},
		{"Subscription ID", strconv.FormatUint(i.SubscriptionID, 10)},
		{"Callback Gas Limit", humanize.Comma(int64(i.CallbackGasLimit))},
		{"Payer", i.Payer},
		{"Node Version", i.Version},
	}
	for _, v := range data {
		table.Append(v)
	}
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("*")
	table.SetColumnSeparator("|")
	table.Render()
}
