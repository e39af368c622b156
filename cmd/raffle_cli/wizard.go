package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/golang/glog"
	"github.com/livepeer/go-raffle/common"
)

var httpClient = &http.Client{Timeout: common.HTTPTimeout}

// readLine reads a single line from the input, trimming it from spaces. ok is
// false once the input is exhausted
func (w *wizard) readLine() (string, bool) {
	fmt.Fprintf(w.out, "> ")
	text, err := w.in.ReadString('\n')
	if err != nil && (err != io.EOF || text == "") {
		return "", false
	}
	return strings.TrimSpace(text), true
}

// readChoice reads a menu option between 1 and n. An empty line selects 0
func (w *wizard) readChoice(n int) (int, bool) {
	for {
		text, ok := w.readLine()
		if !ok {
			return 0, false
		}
		if text == "" {
			return 0, true
		}
		choice, err := strconv.Atoi(text)
		if err != nil || choice < 1 || choice > n {
			glog.Errorf("That's not something I can do")
			continue
		}
		return choice, true
	}
}

// readStringAndValidate reads lines until one passes validate
func (w *wizard) readStringAndValidate(validate func(in string) (string, error)) (string, bool) {
	for {
		text, ok := w.readLine()
		if !ok {
			return "", false
		}
		validText, err := validate(text)
		if err != nil {
			glog.Errorf("Failed to validate input err=%q", err)
			continue
		}
		return validText, true
	}
}

func (w *wizard) readAddress() (ethcommon.Address, bool) {
	text, ok := w.readStringAndValidate(func(in string) (string, error) {
		if !ethcommon.IsHexAddress(in) {
			return "", errors.New("enter a 0x prefixed hex address")
		}
		return in, nil
	})
	if !ok {
		return ethcommon.Address{}, false
	}
	return ethcommon.HexToAddress(text), true
}

// readDefaultEther reads an amount in ETH, or in wei with a wei suffix. An empty line
// returns def
func (w *wizard) readDefaultEther(def *big.Int) (*big.Int, bool) {
	var amount *big.Int
	_, ok := w.readStringAndValidate(func(in string) (string, error) {
		if in == "" {
			amount = def
			return in, nil
		}
		val, err := common.ParseEther(in)
		if err != nil {
			return "", err
		}
		amount = val
		return in, nil
	})
	return amount, ok
}

func (w *wizard) readBigInt() (*big.Int, bool) {
	var val *big.Int
	_, ok := w.readStringAndValidate(func(in string) (string, error) {
		v, err := common.ParseBigInt(in)
		if err != nil {
			return "", err
		}
		val = v
		return in, nil
	})
	return val, ok
}

func (w *wizard) url(path string) string {
	return fmt.Sprintf("http://%v:%v%v", w.host, w.httpPort, path)
}

// getJSON decodes the response of a GET request into v
func (w *wizard) getJSON(path string, v interface{}) error {
	resp, err := httpClient.Get(w.url(path))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%v %v", resp.Status, strings.TrimSpace(string(body)))
	}
	return json.Unmarshal(body, v)
}

// post sends a form to the node and returns the response body
func (w *wizard) post(path string, val url.Values) (string, error) {
	resp, err := httpClient.PostForm(w.url(path), val)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%v %v", resp.Status, strings.TrimSpace(string(body)))
	}
	return string(body), nil
}

type pending struct {
	ID          *big.Int `json:"id"`
	RequestedAt int64    `json:"requestedAt"`
	Fulfilled   bool     `json:"fulfilled"`
}

type status struct {
	Address         ethcommon.Address `json:"address"`
	State           string            `json:"state"`
	EntranceFee     *big.Int          `json:"entranceFee"`
	Interval        string            `json:"interval"`
	NumPlayers      int               `json:"numPlayers"`
	Balance         *big.Int          `json:"balance"`
	LatestTimestamp int64             `json:"latestTimestamp"`
	RecentWinner    ethcommon.Address `json:"recentWinner"`
	Pending         *pending          `json:"pending"`
}

type upkeep struct {
	UpkeepNeeded bool     `json:"upkeepNeeded"`
	Reason       string   `json:"reason"`
	State        string   `json:"state"`
	Balance      *big.Int `json:"balance"`
	NumPlayers   int      `json:"numPlayers"`
	Elapsed      string   `json:"elapsed"`
	Interval     string   `json:"interval"`
}

type winner struct {
	RequestID *big.Int          `json:"requestId"`
	Winner    ethcommon.Address `json:"winner"`
	Amount    *big.Int          `json:"amount"`
	Timestamp int64             `json:"timestamp"`
}

type info struct {
	Network          string            `json:"network"`
	ChainID          *big.Int          `json:"chainId"`
	Address          ethcommon.Address `json:"address"`
	EntranceFee      *big.Int          `json:"entranceFee"`
	Interval         string            `json:"interval"`
	GasLane          ethcommon.Hash    `json:"gasLane"`
	VRFCoordinator   string            `json:"vrfCoordinator"`
	SubscriptionID   uint64            `json:"subscriptionId"`
	CallbackGasLimit uint32            `json:"callbackGasLimit"`
	Payer            string            `json:"payer"`
	Version          string            `json:"version"`
}

func (w *wizard) getStatus() (*status, error) {
	var s status
	if err := w.getJSON("/status", &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func unixTime(ts int64) time.Time {
	return time.Unix(ts, 0)
}

func parseRequestID(body string) (*big.Int, error) {
	var resp struct {
		RequestID *big.Int `json:"requestId"`
	}
	if err := json.Unmarshal([]byte(body), &resp); err != nil {
		return nil, err
	}
	if resp.RequestID == nil {
		return nil, errors.New("missing requestId")
	}
	return resp.RequestID, nil
}
