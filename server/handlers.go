package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/golang/glog"
	"github.com/livepeer/go-raffle/clog"
	"github.com/livepeer/go-raffle/common"
	"github.com/livepeer/go-raffle/raffle"
	"github.com/livepeer/go-raffle/vrf"
)

const defaultWinnersLimit = 10

// Fulfiller delivers random words for a pending request. The mock VRF coordinator implements it
type Fulfiller interface {
	FulfillRandomWords(ctx context.Context, requestID *big.Int) error
	FulfillRandomWordsWithOverride(ctx context.Context, requestID *big.Int, words []*big.Int) error
}

// WinnerHistory lists completed cycles, most recent first
type WinnerHistory interface {
	Winners(limit int) ([]*raffle.WinnerPicked, error)
}

// InstanceInfo describes the deployment a client is talking to
type InstanceInfo struct {
	Network          string            `json:"network"`
	ChainID          *big.Int          `json:"chainId"`
	Address          ethcommon.Address `json:"address"`
	EntranceFee      *big.Int          `json:"entranceFee"`
	Interval         string            `json:"interval"`
	KeyHash          ethcommon.Hash    `json:"gasLane"`
	VRFCoordinator   string            `json:"vrfCoordinator,omitempty"`
	SubscriptionID   uint64            `json:"subscriptionId"`
	CallbackGasLimit uint32            `json:"callbackGasLimit"`
	Payer            string            `json:"payer"`
	Version          string            `json:"version"`
}

type pendingResponse struct {
	ID          *big.Int `json:"id"`
	RequestedAt int64    `json:"requestedAt"`
	Fulfilled   bool     `json:"fulfilled"`
}

type statusResponse struct {
	Address         ethcommon.Address `json:"address"`
	State           string            `json:"state"`
	EntranceFee     *big.Int          `json:"entranceFee"`
	Interval        string            `json:"interval"`
	NumPlayers      int               `json:"numPlayers"`
	Balance         *big.Int          `json:"balance"`
	LatestTimestamp int64             `json:"latestTimestamp"`
	RecentWinner    ethcommon.Address `json:"recentWinner"`
	Pending         *pendingResponse  `json:"pending,omitempty"`
}

type upkeepResponse struct {
	UpkeepNeeded bool     `json:"upkeepNeeded"`
	Reason       string   `json:"reason"`
	State        string   `json:"state"`
	Balance      *big.Int `json:"balance"`
	NumPlayers   int      `json:"numPlayers"`
	Elapsed      string   `json:"elapsed"`
	Interval     string   `json:"interval"`
}

type winnerResponse struct {
	RequestID *big.Int          `json:"requestId"`
	Winner    ethcommon.Address `json:"winner"`
	Amount    *big.Int          `json:"amount"`
	Timestamp int64             `json:"timestamp"`
}

func logAndRespondWithError(w http.ResponseWriter, errMsg string, code int) {
	glog.Error(errMsg)
	http.Error(w, errMsg, code)
}

// respondWithRaffleError maps the class of a raffle error onto an HTTP status
func respondWithRaffleError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch raffle.Classify(err) {
	case raffle.ClassValidation:
		code = http.StatusBadRequest
	case raffle.ClassEligibility, raffle.ClassProtocol:
		code = http.StatusConflict
	case raffle.ClassTransfer, raffle.ClassProvider:
		code = http.StatusBadGateway
	}
	logAndRespondWithError(w, err.Error(), code)
}

func respondJson(w http.ResponseWriter, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		glog.Error(err)
		logAndRespondWithError(w, "could not encode response", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func mustHaveFormParams(h http.Handler, params ...string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			glog.Error(err)
			logAndRespondWithError(w, "parse form error", http.StatusInternalServerError)
			return
		}

		for _, param := range params {
			if r.FormValue(param) == "" {
				logAndRespondWithError(w, fmt.Sprintf("missing form param: %s", param), http.StatusBadRequest)
				return
			}
		}

		h.ServeHTTP(w, r)
	})
}

func mustHaveMethod(h http.Handler, method string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			w.Header().Set("Allow", method)
			logAndRespondWithError(w, fmt.Sprintf("method %s not allowed", r.Method), http.StatusMethodNotAllowed)
			return
		}

		h.ServeHTTP(w, r)
	})
}

func statusHandler(rf *raffle.Raffle) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		snap := rf.Snapshot()

		resp := statusResponse{
			Address:         snap.Address,
			State:           snap.State.String(),
			EntranceFee:     snap.EntranceFee,
			Interval:        snap.Interval.String(),
			NumPlayers:      len(snap.Players),
			Balance:         snap.Balance,
			LatestTimestamp: snap.LastTimestamp.Unix(),
			RecentWinner:    snap.RecentWinner,
		}
		if snap.Pending != nil {
			resp.Pending = &pendingResponse{
				ID:          snap.Pending.ID,
				RequestedAt: snap.Pending.RequestedAt.Unix(),
				Fulfilled:   snap.Pending.Randomness != nil,
			}
		}

		respondJson(w, resp)
	})
}

func playersHandler(rf *raffle.Raffle) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		players := rf.Players()
		if players == nil {
			players = []ethcommon.Address{}
		}
		respondJson(w, players)
	})
}

func playerHandler(rf *raffle.Raffle) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		idx, err := strconv.Atoi(r.FormValue("index"))
		if err != nil {
			logAndRespondWithError(w, "invalid index", http.StatusBadRequest)
			return
		}

		player, err := rf.Player(idx)
		if err != nil {
			respondWithRaffleError(w, err)
			return
		}

		respondJson(w, player)
	})
}

func enterHandler(rf *raffle.Raffle) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		player, err := common.ParseAddress(r.FormValue("player"))
		if err != nil {
			glog.Error(err)
			logAndRespondWithError(w, "invalid player address", http.StatusBadRequest)
			return
		}

		amount, err := common.ParseBigInt(r.FormValue("amount"))
		if err != nil {
			glog.Error(err)
			logAndRespondWithError(w, "invalid amount", http.StatusBadRequest)
			return
		}

		ctx := clog.AddPlayer(r.Context(), player.Hex())
		if err := rf.Enter(ctx, player, amount); err != nil {
			respondWithRaffleError(w, err)
			return
		}

		w.WriteHeader(http.StatusOK)
		w.Write([]byte("enter success"))
	})
}

func checkUpkeepHandler(rf *raffle.Raffle) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		check := rf.CheckUpkeep()

		respondJson(w, upkeepResponse{
			UpkeepNeeded: check.Needed,
			Reason:       check.Reason.String(),
			State:        check.State.String(),
			Balance:      check.Balance,
			NumPlayers:   check.NumPlayers,
			Elapsed:      check.Elapsed.Truncate(time.Millisecond).String(),
			Interval:     check.Interval.String(),
		})
	})
}

func performUpkeepHandler(rf *raffle.Raffle) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID, err := rf.PerformUpkeep(r.Context())
		if err != nil {
			respondWithRaffleError(w, err)
			return
		}

		respondJson(w, map[string]*big.Int{"requestId": requestID})
	})
}

func fulfillRandomWordsHandler(f Fulfiller) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if f == nil {
			logAndRespondWithError(w, "missing randomness coordinator", http.StatusInternalServerError)
			return
		}

		requestID, err := common.ParseBigInt(r.FormValue("requestId"))
		if err != nil {
			glog.Error(err)
			logAndRespondWithError(w, "invalid requestId", http.StatusBadRequest)
			return
		}

		ctx := clog.AddRequestID(r.Context(), requestID.String())

		if words := r.FormValue("words"); words != "" {
			parsed, err := parseWords(words)
			if err != nil {
				logAndRespondWithError(w, "invalid words", http.StatusBadRequest)
				return
			}
			err = f.FulfillRandomWordsWithOverride(ctx, requestID, parsed)
		} else {
			err = f.FulfillRandomWords(ctx, requestID)
		}
		switch {
		case errors.Is(err, vrf.ErrNonexistentRequest):
			logAndRespondWithError(w, err.Error(), http.StatusConflict)
			return
		case errors.Is(err, vrf.ErrInsufficientBalance), errors.Is(err, vrf.ErrInvalidSubscription):
			logAndRespondWithError(w, err.Error(), http.StatusBadGateway)
			return
		case err != nil:
			respondWithRaffleError(w, err)
			return
		}

		w.WriteHeader(http.StatusOK)
		w.Write([]byte("fulfillRandomWords success"))
	})
}

func retryPayoutHandler(rf *raffle.Raffle) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := rf.RetryPayout(r.Context()); err != nil {
			respondWithRaffleError(w, err)
			return
		}

		w.WriteHeader(http.StatusOK)
		w.Write([]byte("retryPayout success"))
	})
}

func recentWinnerHandler(rf *raffle.Raffle) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		respondJson(w, rf.RecentWinner())
	})
}

func infoHandler(info *InstanceInfo) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if info == nil {
			logAndRespondWithError(w, "missing instance info", http.StatusInternalServerError)
			return
		}
		respondJson(w, info)
	})
}

func winnersHandler(history WinnerHistory) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		limit := defaultWinnersLimit
		if l := r.FormValue("limit"); l != "" {
			n, err := strconv.Atoi(l)
			if err != nil || n <= 0 {
				logAndRespondWithError(w, "invalid limit", http.StatusBadRequest)
				return
			}
			limit = n
		}

		resp := []winnerResponse{}
		if history != nil {
			winners, err := history.Winners(limit)
			if err != nil {
				glog.Error(err)
				logAndRespondWithError(w, "could not query winners", http.StatusInternalServerError)
				return
			}
			for _, wp := range winners {
				resp = append(resp, winnerResponse{
					RequestID: wp.RequestID,
					Winner:    wp.Winner,
					Amount:    wp.Amount,
					Timestamp: wp.Timestamp.Unix(),
				})
			}
		}

		respondJson(w, resp)
	})
}

// parseWords parses a comma separated list of decimal words
func parseWords(s string) ([]*big.Int, error) {
	var words []*big.Int
	for _, part := range strings.Split(s, ",") {
		word, err := common.ParseBigInt(strings.TrimSpace(part))
		if err != nil {
			return nil, err
		}
		words = append(words, word)
	}
	return words, nil
}
