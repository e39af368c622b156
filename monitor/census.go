package monitor

import (
	"context"
	"math/big"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/golang/glog"

	"contrib.go.opencensus.io/exporter/prometheus"
	rprom "github.com/prometheus/client_golang/prometheus"
	"go.opencensus.io/stats"
	"go.opencensus.io/stats/view"
	"go.opencensus.io/tag"
)

const maxErrorCodeLen = 64

// Enabled true if metrics was enabled in command line
var Enabled bool

var weiPerEther = new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))

type censusMetricsCounter struct {
	nodeType             string
	nodeID               string
	ctx                  context.Context
	kNodeType            tag.Key
	kNodeID              tag.Key
	kErrorCode           tag.Key
	kReason              tag.Key
	kResult              tag.Key
	mEntries             *stats.Int64Measure
	mPlayers             *stats.Int64Measure
	mBalance             *stats.Float64Measure
	mUpkeepChecks        *stats.Int64Measure
	mUpkeepPerformed     *stats.Int64Measure
	mUpkeepRetried       *stats.Int64Measure
	mRandomnessErrors    *stats.Int64Measure
	mRandomnessFulfilled *stats.Int64Measure
	mPayoutFailed        *stats.Int64Measure
	mWinners             *stats.Int64Measure
	mPrize               *stats.Float64Measure
	mCycleLatency        *stats.Float64Measure
	mState               *stats.Int64Measure
	mCalculatingDuration *stats.Float64Measure
	mSnapshotErrors      *stats.Int64Measure
	lock                 sync.Mutex
}

// Exporter Prometheus exporter that handles `/metrics` endpoint
var Exporter *prometheus.Exporter

var census censusMetricsCounter

func InitCensus(nodeType, nodeID, version string) {
	census = censusMetricsCounter{
		nodeID:   nodeID,
		nodeType: nodeType,
	}
	var err error
	census.kNodeType, _ = tag.NewKey("node_type")
	census.kNodeID, _ = tag.NewKey("node_id")
	census.kErrorCode, _ = tag.NewKey("error_code")
	census.kReason, _ = tag.NewKey("reason")
	census.kResult, _ = tag.NewKey("result")
	census.ctx, err = tag.New(context.Background(), tag.Insert(census.kNodeType, nodeType), tag.Insert(census.kNodeID, nodeID))
	if err != nil {
		glog.Fatal("Error creating context", err)
	}
	census.mEntries = stats.Int64("raffle_entries_total", "RaffleEntered", "tot")
	census.mPlayers = stats.Int64("raffle_players", "Number of players in the current cycle", "tot")
	census.mBalance = stats.Float64("raffle_balance_eth", "Prize pool of the current cycle", "eth")
	census.mUpkeepChecks = stats.Int64("upkeep_checks_total", "UpkeepChecked", "tot")
	census.mUpkeepPerformed = stats.Int64("upkeep_performed_total", "UpkeepPerformed", "tot")
	census.mUpkeepRetried = stats.Int64("upkeep_retried_total", "Number of times the keeper retried performing upkeep", "tot")
	census.mRandomnessErrors = stats.Int64("randomness_request_errors_total", "RandomnessRequestError", "tot")
	census.mRandomnessFulfilled = stats.Int64("randomness_fulfilled_total", "RandomnessFulfilled", "tot")
	census.mPayoutFailed = stats.Int64("payout_failed_total", "PayoutFailed", "tot")
	census.mWinners = stats.Int64("winners_total", "WinnerPicked", "tot")
	census.mPrize = stats.Float64("winner_prize_eth", "Amount paid to the most recent winner", "eth")
	census.mCycleLatency = stats.Float64("cycle_latency_seconds",
		"Time from the randomness request until the winner was paid", "sec")
	census.mState = stats.Int64("raffle_state", "Current raffle state, 0 open and 1 calculating", "state")
	census.mCalculatingDuration = stats.Float64("calculating_duration_seconds",
		"Time the raffle has been waiting for randomness", "sec")
	census.mSnapshotErrors = stats.Int64("snapshot_save_errors_total", "SnapshotSaveFailed", "tot")

	glog.Infof("Compiler: %s Arch %s OS %s Go version %s", runtime.Compiler, runtime.GOARCH, runtime.GOOS, runtime.Version())
	glog.Infof("Raffle version: %s", version)
	glog.Infof("Node type %s node ID %s", nodeType, nodeID)
	mVersions := stats.Int64("versions", "Version information.", "Num")
	compiler, _ := tag.NewKey("compiler")
	goarch, _ := tag.NewKey("goarch")
	goos, _ := tag.NewKey("goos")
	goversion, _ := tag.NewKey("goversion")
	raffleversion, _ := tag.NewKey("raffleversion")
	ctx, err := tag.New(context.Background(), tag.Insert(census.kNodeType, nodeType), tag.Insert(census.kNodeID, nodeID),
		tag.Insert(compiler, runtime.Compiler), tag.Insert(goarch, runtime.GOARCH), tag.Insert(goos, runtime.GOOS),
		tag.Insert(goversion, runtime.Version()), tag.Insert(raffleversion, version))
	if err != nil {
		glog.Fatal("Error creating tagged context", err)
	}
	baseTags := []tag.Key{census.kNodeID, census.kNodeType}
	views := []*view.View{
		{
			Name:        "versions",
			Measure:     mVersions,
			Description: "Versions used by the raffle node.",
			TagKeys:     []tag.Key{census.kNodeType, compiler, goos, goversion, raffleversion},
			Aggregation: view.LastValue(),
		},
		{
			Name:        "raffle_entries_total",
			Measure:     census.mEntries,
			Description: "Number of accepted raffle entries",
			TagKeys:     baseTags,
			Aggregation: view.Count(),
		},
		{
			Name:        "raffle_players",
			Measure:     census.mPlayers,
			Description: "Number of players in the current cycle",
			TagKeys:     baseTags,
			Aggregation: view.LastValue(),
		},
		{
			Name:        "raffle_balance_eth",
			Measure:     census.mBalance,
			Description: "Prize pool of the current cycle, in ETH",
			TagKeys:     baseTags,
			Aggregation: view.LastValue(),
		},
		{
			Name:        "upkeep_checks_total",
			Measure:     census.mUpkeepChecks,
			Description: "Number of upkeep checks, by outcome",
			TagKeys:     append([]tag.Key{census.kReason}, baseTags...),
			Aggregation: view.Count(),
		},
		{
			Name:        "upkeep_performed_total",
			Measure:     census.mUpkeepPerformed,
			Description: "Number of cycles started",
			TagKeys:     baseTags,
			Aggregation: view.Count(),
		},
		{
			Name:        "upkeep_retried_total",
			Measure:     census.mUpkeepRetried,
			Description: "Number of times the keeper retried performing upkeep",
			TagKeys:     baseTags,
			Aggregation: view.Count(),
		},
		{
			Name:        "randomness_request_errors_total",
			Measure:     census.mRandomnessErrors,
			Description: "Number of rejected randomness requests",
			TagKeys:     append([]tag.Key{census.kErrorCode}, baseTags...),
			Aggregation: view.Count(),
		},
		{
			Name:        "randomness_fulfilled_total",
			Measure:     census.mRandomnessFulfilled,
			Description: "Number of randomness deliveries, by result",
			TagKeys:     append([]tag.Key{census.kResult}, baseTags...),
			Aggregation: view.Count(),
		},
		{
			Name:        "payout_failed_total",
			Measure:     census.mPayoutFailed,
			Description: "Number of failed winner payouts",
			TagKeys:     append([]tag.Key{census.kErrorCode}, baseTags...),
			Aggregation: view.Count(),
		},
		{
			Name:        "winners_total",
			Measure:     census.mWinners,
			Description: "Number of completed cycles",
			TagKeys:     baseTags,
			Aggregation: view.Count(),
		},
		{
			Name:        "winner_prize_eth",
			Measure:     census.mPrize,
			Description: "Amount paid to the most recent winner, in ETH",
			TagKeys:     baseTags,
			Aggregation: view.LastValue(),
		},
		{
			Name:        "cycle_latency_seconds",
			Measure:     census.mCycleLatency,
			Description: "Time from the randomness request until the winner was paid",
			TagKeys:     baseTags,
			Aggregation: view.Distribution(0, 1, 2, 5, 10, 30, 60, 120, 300, 600, 1800, 3600),
		},
		{
			Name:        "raffle_state",
			Measure:     census.mState,
			Description: "Current raffle state, 0 open and 1 calculating",
			TagKeys:     baseTags,
			Aggregation: view.LastValue(),
		},
		{
			Name:        "calculating_duration_seconds",
			Measure:     census.mCalculatingDuration,
			Description: "Time the raffle has been waiting for randomness",
			TagKeys:     baseTags,
			Aggregation: view.LastValue(),
		},
		{
			Name:        "snapshot_save_errors_total",
			Measure:     census.mSnapshotErrors,
			Description: "Number of raffle snapshots that could not be saved",
			TagKeys:     append([]tag.Key{census.kErrorCode}, baseTags...),
			Aggregation: view.Count(),
		},
	}
	// Register the views
	if err := view.Register(views...); err != nil {
		glog.Fatalf("Failed to register views: %v", err)
	}
	registry := rprom.NewRegistry()
	registry.MustRegister(rprom.NewProcessCollector(rprom.ProcessCollectorOpts{}))
	registry.MustRegister(rprom.NewGoCollector())
	pe, err := prometheus.NewExporter(prometheus.Options{
		Namespace: "raffle",
		Registry:  registry,
	})
	if err != nil {
		glog.Fatalf("Failed to create the Prometheus stats exporter: %v", err)
	}

	// Register the Prometheus exporters as a stats exporter.
	view.RegisterExporter(pe)
	stats.Record(ctx, mVersions.M(1))
	Exporter = pe
}

// errorCode keeps tag values bounded by cutting an error message at its first detail
func errorCode(msg string) string {
	if i := strings.IndexAny(msg, ":="); i > 0 {
		msg = msg[:i]
	}
	msg = strings.TrimSpace(msg)
	if len(msg) > maxErrorCodeLen {
		msg = msg[:maxErrorCodeLen]
	}
	if msg == "" {
		return "Unknown"
	}
	return msg
}

func toEther(wei *big.Int) float64 {
	if wei == nil {
		return 0
	}
	eth, _ := new(big.Float).Quo(new(big.Float).SetInt(wei), weiPerEther).Float64()
	return eth
}

func (cen *censusMetricsCounter) recordWithTag(key tag.Key, value string, m stats.Measurement) {
	ctx, err := tag.New(cen.ctx, tag.Insert(key, value))
	if err != nil {
		glog.Error("Error creating context", err)
		return
	}
	stats.Record(ctx, m)
}

// RaffleEntered records an accepted entry together with the resulting pool
func RaffleEntered(numPlayers int, balance *big.Int) {
	census.lock.Lock()
	defer census.lock.Unlock()
	stats.Record(census.ctx, census.mEntries.M(1), census.mPlayers.M(int64(numPlayers)), census.mBalance.M(toEther(balance)))
}

func UpkeepChecked(reason string) {
	census.lock.Lock()
	defer census.lock.Unlock()
	census.recordWithTag(census.kReason, reason, census.mUpkeepChecks.M(1))
}

func UpkeepPerformed() {
	census.lock.Lock()
	defer census.lock.Unlock()
	stats.Record(census.ctx, census.mUpkeepPerformed.M(1))
}

func UpkeepRetried() {
	census.lock.Lock()
	defer census.lock.Unlock()
	stats.Record(census.ctx, census.mUpkeepRetried.M(1))
}

func RandomnessRequestError(msg string) {
	census.lock.Lock()
	defer census.lock.Unlock()
	census.recordWithTag(census.kErrorCode, errorCode(msg), census.mRandomnessErrors.M(1))
}

// RandomnessFulfilled records a randomness delivery; result is "accepted" or "rejected"
func RandomnessFulfilled(result string) {
	census.lock.Lock()
	defer census.lock.Unlock()
	census.recordWithTag(census.kResult, result, census.mRandomnessFulfilled.M(1))
}

func PayoutFailed(msg string) {
	census.lock.Lock()
	defer census.lock.Unlock()
	census.recordWithTag(census.kErrorCode, errorCode(msg), census.mPayoutFailed.M(1))
}

// WinnerPicked records a completed cycle. The pool is emptied at this point.
func WinnerPicked(prize *big.Int, latency time.Duration) {
	census.lock.Lock()
	defer census.lock.Unlock()
	stats.Record(census.ctx, census.mWinners.M(1), census.mPrize.M(toEther(prize)),
		census.mCycleLatency.M(latency.Seconds()), census.mPlayers.M(0), census.mBalance.M(0))
}

func RaffleStateChanged(state int) {
	census.lock.Lock()
	defer census.lock.Unlock()
	stats.Record(census.ctx, census.mState.M(int64(state)))
}

// CalculatingDuration reports how long the raffle has been waiting for randomness.
// Zero is reported while the raffle is open.
func CalculatingDuration(d time.Duration) {
	census.lock.Lock()
	defer census.lock.Unlock()
	stats.Record(census.ctx, census.mCalculatingDuration.M(d.Seconds()))
}

func SnapshotSaveFailed(msg string) {
	census.lock.Lock()
	defer census.lock.Unlock()
	census.recordWithTag(census.kErrorCode, errorCode(msg), census.mSnapshotErrors.M(1))
}
