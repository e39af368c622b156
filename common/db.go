package common

import (
	"database/sql"
	"encoding/json"
	"math/big"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/golang/glog"
	"github.com/livepeer/go-raffle/raffle"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

const (
	snapshotKey = "snapshot"
	chainIDKey  = "chainID"
)

// DB is the sqlite backed raffle.Store
type DB struct {
	dbh *sql.DB

	// prepared statements
	updateKV     *sql.Stmt
	selectKV     *sql.Stmt
	insertWinner *sql.Stmt
	selectWinner *sql.Stmt
}

var schema = `
	CREATE TABLE IF NOT EXISTS kv (
		key STRING PRIMARY KEY,
		value STRING,
		updatedAt STRING DEFAULT CURRENT_TIMESTAMP
	);
	INSERT OR IGNORE INTO kv(key, value) VALUES('snapshot', '');
	INSERT OR IGNORE INTO kv(key, value) VALUES('chainID', '');

	CREATE TABLE IF NOT EXISTS winners (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		requestID STRING NOT NULL,
		winner STRING NOT NULL,
		amount STRING NOT NULL,
		pickedAt INTEGER NOT NULL
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_winners_requestid ON winners(requestID);
`

func InitDB(dbPath string) (*DB, error) {
	d := DB{}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		glog.Error("Unable to open DB ", dbPath, err)
		return nil, err
	}
	d.dbh = db
	_, err = db.Exec(schema)
	if err != nil {
		glog.Error("Error initializing schema ", err)
		d.Close()
		return nil, err
	}

	// updateKV prepared statement
	stmt, err := db.Prepare("UPDATE kv SET value=?, updatedAt = datetime() WHERE key=?")
	if err != nil {
		glog.Error("Unable to prepare updatekv stmt ", err)
		d.Close()
		return nil, err
	}
	d.updateKV = stmt

	stmt, err = db.Prepare("SELECT value FROM kv WHERE key=?")
	if err != nil {
		glog.Error("Unable to prepare selectkv stmt ", err)
		d.Close()
		return nil, err
	}
	d.selectKV = stmt

	// Re-delivered fulfillments must not duplicate a history row
	stmt, err = db.Prepare(`
	INSERT OR IGNORE INTO winners(requestID, winner, amount, pickedAt)
	VALUES(?, ?, ?, ?)
	`)
	if err != nil {
		glog.Error("Unable to prepare insertWinner stmt ", err)
		d.Close()
		return nil, err
	}
	d.insertWinner = stmt

	stmt, err = db.Prepare(`
	SELECT requestID, winner, amount, pickedAt FROM winners
	ORDER BY id DESC LIMIT ?
	`)
	if err != nil {
		glog.Error("Unable to prepare selectWinner stmt ", err)
		d.Close()
		return nil, err
	}
	d.selectWinner = stmt

	glog.V(DEBUG).Info("Initialized DB node")
	return &d, nil
}

func (db *DB) Close() {
	glog.V(DEBUG).Info("Closing DB")
	for _, stmt := range []*sql.Stmt{db.updateKV, db.selectKV, db.insertWinner, db.selectWinner} {
		if stmt != nil {
			stmt.Close()
		}
	}
	if db.dbh != nil {
		db.dbh.Close()
	}
}

// ChainID returns the chain id the data directory was first used with, or nil
func (db *DB) ChainID() (*big.Int, error) {
	if db == nil {
		return nil, nil
	}
	var value string
	if err := db.selectKV.QueryRow(chainIDKey).Scan(&value); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		glog.Error("db: Unable to read chainID ", err)
		return nil, err
	}
	if value == "" {
		return nil, nil
	}
	id, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return nil, errors.Wrapf(ErrParseBigInt, "db: chainID=%v", value)
	}
	return id, nil
}

func (db *DB) SetChainID(id *big.Int) error {
	if db == nil {
		return nil
	}
	if _, err := db.updateKV.Exec(id.String(), chainIDKey); err != nil {
		glog.Error("db: Unable to set chainID ", err)
		return err
	}
	return nil
}

// LoadSnapshot returns the saved raffle snapshot or nil if nothing was saved yet
func (db *DB) LoadSnapshot() (*raffle.Snapshot, error) {
	if db == nil {
		return nil, nil
	}
	var value string
	if err := db.selectKV.QueryRow(snapshotKey).Scan(&value); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		glog.Error("db: Unable to read snapshot ", err)
		return nil, err
	}
	if value == "" {
		return nil, nil
	}
	var s raffle.Snapshot
	if err := json.Unmarshal([]byte(value), &s); err != nil {
		return nil, errors.Wrap(err, "db: corrupt snapshot")
	}
	return &s, nil
}

// SaveSnapshot replaces the saved raffle snapshot
func (db *DB) SaveSnapshot(s *raffle.Snapshot) error {
	if db == nil {
		return nil
	}
	value, err := json.Marshal(s)
	if err != nil {
		return errors.Wrap(err, "db: unable to encode snapshot")
	}
	glog.V(VERBOSE).Infof("db: Saving snapshot state=%v players=%v", s.State, len(s.Players))
	if _, err := db.updateKV.Exec(string(value), snapshotKey); err != nil {
		glog.Error("db: Got err in updating snapshot ", err)
		return err
	}
	return nil
}

// RecordWinner appends a completed cycle to the winner history
func (db *DB) RecordWinner(w *raffle.WinnerPicked) error {
	if db == nil {
		return nil
	}
	if w == nil || w.RequestID == nil || w.Amount == nil {
		return errors.New("db: incomplete winner record")
	}
	glog.V(DEBUG).Infof("db: Recording winner requestID=%v winner=%v amount=%v", w.RequestID, w.Winner.Hex(), w.Amount)
	_, err := db.insertWinner.Exec(w.RequestID.String(), w.Winner.Hex(), w.Amount.String(), w.Timestamp.UnixNano())
	if err != nil {
		glog.Error("db: Unable to record winner ", err)
		return err
	}
	return nil
}

// Winners returns up to limit completed cycles, most recent first
func (db *DB) Winners(limit int) ([]*raffle.WinnerPicked, error) {
	if db == nil {
		return nil, nil
	}
	rows, err := db.selectWinner.Query(limit)
	if err != nil {
		glog.Error("db: Unable to select winners ", err)
		return nil, err
	}
	defer rows.Close()

	var winners []*raffle.WinnerPicked
	for rows.Next() {
		var (
			requestID, winner, amount string
			pickedAt                  int64
		)
		if err := rows.Scan(&requestID, &winner, &amount, &pickedAt); err != nil {
			glog.Error("db: Unable to fetch winner ", err)
			return nil, err
		}
		id, ok := new(big.Int).SetString(requestID, 10)
		if !ok {
			return nil, errors.Wrapf(ErrParseBigInt, "db: requestID=%v", requestID)
		}
		amt, ok := new(big.Int).SetString(amount, 10)
		if !ok {
			return nil, errors.Wrapf(ErrParseBigInt, "db: amount=%v", amount)
		}
		winners = append(winners, &raffle.WinnerPicked{
			RequestID: id,
			Winner:    ethcommon.HexToAddress(winner),
			Amount:    amt,
			Timestamp: time.Unix(0, pickedAt),
		})
	}
	return winners, rows.Err()
}
