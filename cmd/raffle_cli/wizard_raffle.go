package main

import (
	"fmt"
	"math/big"
	"net/url"
	"strings"

	"github.com/golang/glog"
	"github.com/livepeer/go-raffle/common"
)

func (w *wizard) enter() {
	s, err := w.getStatus()
	if err != nil {
		glog.Errorf("Error getting raffle status err=%q", err)
		return
	}

	fmt.Fprintf(w.out, "Enter the player address - ")
	player, ok := w.readAddress()
	if !ok {
		return
	}

	fmt.Fprintf(w.out, "Enter the amount in ETH, or with a wei suffix (default: %v) - ", common.FormatWei(s.EntranceFee))
	amount, ok := w.readDefaultEther(s.EntranceFee)
	if !ok {
		return
	}

	val := url.Values{
		"player": {player.Hex()},
		"amount": {amount.String()},
	}
	if _, err := w.post("/enter", val); err != nil {
		glog.Errorf("Error entering raffle err=%q", err)
		return
	}
	fmt.Fprintf(w.out, "Entered %v with %v\n", player.Hex(), common.FormatWei(amount))
}

func (w *wizard) checkUpkeep() {
	var u upkeep
	if err := w.getJSON("/checkUpkeep", &u); err != nil {
		glog.Errorf("Error checking upkeep err=%q", err)
		return
	}

	if u.UpkeepNeeded {
		fmt.Fprintln(w.out, "Upkeep is needed, a new raffle cycle can start")
		return
	}
	fmt.Fprintf(w.out, "Upkeep not needed: %v (state=%v players=%v balance=%v elapsed=%v interval=%v)\n",
		u.Reason, u.State, u.NumPlayers, common.FormatWei(u.Balance), u.Elapsed, u.Interval)
}

func (w *wizard) performUpkeep() {
	body, err := w.post("/performUpkeep", url.Values{})
	if err != nil {
		glog.Errorf("Error performing upkeep err=%q", err)
		return
	}
	requestID, err := parseRequestID(body)
	if err != nil {
		glog.Errorf("Error reading request id err=%q", err)
		return
	}
	fmt.Fprintf(w.out, "Raffle cycle started, randomness requestId=%v\n", requestID)
}

func (w *wizard) fulfillRandomWords() {
	s, err := w.getStatus()
	if err != nil {
		glog.Errorf("Error getting raffle status err=%q", err)
		return
	}

	var requestID *big.Int
	if s.Pending != nil && !s.Pending.Fulfilled {
		fmt.Fprintf(w.out, "Fulfill pending request %v? (y/n) - ", s.Pending.ID)
		yes, ok := w.readLine()
		if !ok {
			return
		}
		if yes == "y" {
			requestID = s.Pending.ID
		}
	}
	if requestID == nil {
		fmt.Fprintf(w.out, "Enter the request id - ")
		var ok bool
		if requestID, ok = w.readBigInt(); !ok {
			return
		}
	}

	fmt.Fprintf(w.out, "Enter comma separated random words, or leave empty to derive them - ")
	words, ok := w.readLine()
	if !ok {
		return
	}

	val := url.Values{"requestId": {requestID.String()}}
	if words != "" {
		val.Set("words", strings.ReplaceAll(words, " ", ""))
	}
	if _, err := w.post("/fulfillRandomWords", val); err != nil {
		glog.Errorf("Error fulfilling randomness request err=%q", err)
		return
	}
	fmt.Fprintf(w.out, "Fulfilled randomness request %v\n", requestID)
	w.stats()
}

func (w *wizard) retryPayout() {
	if _, err := w.post("/retryPayout", url.Values{}); err != nil {
		glog.Errorf("Error retrying payout err=%q", err)
		return
	}
	fmt.Fprintln(w.out, "Payout retried successfully")
	w.stats()
}
