package server

import (
	"errors"
	"net/http"

	"github.com/golang/glog"
	"github.com/livepeer/go-raffle/clog"
	"github.com/livepeer/go-raffle/monitor"
	"github.com/livepeer/go-raffle/raffle"
)

var errMissingRaffle = errors.New("missing raffle")

// RaffleServer exposes a raffle to operators and participants over HTTP
type RaffleServer struct {
	Raffle    *raffle.Raffle
	Fulfiller Fulfiller
	History   WinnerHistory
	Info      *InstanceInfo
}

func NewRaffleServer(rf *raffle.Raffle, f Fulfiller, history WinnerHistory, info *InstanceInfo) (*RaffleServer, error) {
	if rf == nil {
		return nil, errMissingRaffle
	}
	return &RaffleServer{
		Raffle:    rf,
		Fulfiller: f,
		History:   history,
		Info:      info,
	}, nil
}

func (s *RaffleServer) cliWebServerHandlers() *http.ServeMux {
	mux := http.NewServeMux()

	mux.Handle("/status", statusHandler(s.Raffle))
	mux.Handle("/players", playersHandler(s.Raffle))
	mux.Handle("/player", mustHaveFormParams(playerHandler(s.Raffle), "index"))
	mux.Handle("/enter", mustHaveMethod(mustHaveFormParams(enterHandler(s.Raffle), "player", "amount"), http.MethodPost))
	mux.Handle("/checkUpkeep", checkUpkeepHandler(s.Raffle))
	mux.Handle("/performUpkeep", mustHaveMethod(performUpkeepHandler(s.Raffle), http.MethodPost))
	mux.Handle("/fulfillRandomWords", mustHaveMethod(mustHaveFormParams(fulfillRandomWordsHandler(s.Fulfiller), "requestId"), http.MethodPost))
	mux.Handle("/retryPayout", mustHaveMethod(retryPayoutHandler(s.Raffle), http.MethodPost))
	mux.Handle("/recentWinner", recentWinnerHandler(s.Raffle))
	mux.Handle("/info", infoHandler(s.Info))
	mux.Handle("/winners", winnersHandler(s.History))

	if monitor.Enabled && monitor.Exporter != nil {
		mux.Handle("/metrics", monitor.Exporter)
	}

	return mux
}

// withSender tags the request context with the caller address for clog
func withSender(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := clog.AddSender(r.Context(), r.RemoteAddr)
		h.ServeHTTP(w, r.WithContext(ctx))
	})
}

// StartCliWebserver serves the raffle API on srv until it is shut down
func (s *RaffleServer) StartCliWebserver(srv *http.Server) error {
	srv.Handler = withSender(s.cliWebServerHandlers())

	glog.Info("CLI server listening on ", srv.Addr)
	err := srv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	glog.Error(err)
	return err
}
