package common

import (
	"database/sql"
	"fmt"
	"testing"

	"go.uber.org/goleak"
)

func dbPath(t *testing.T) string {
	return fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
}

func TempDB(t *testing.T) (*DB, *sql.DB, error) {
	dbpath := dbPath(t)
	dbh, err := InitDB(dbpath)
	if err != nil {
		t.Error("Unable to initialize DB ", err)
		return nil, nil, err
	}
	raw, err := sql.Open("sqlite3", dbpath)
	if err != nil {
		t.Error("Unable to open raw sqlite db ", err)
		return nil, nil, err
	}
	return dbh, raw, nil
}

// IgnoreRoutines goroutines to ignore in tests
func IgnoreRoutines() []goleak.Option {
	// goleak works by making list of all running goroutines and reporting error if it finds any
	// this list tells goleak to ignore these goroutines - we're not interested in these particular goroutines
	funcs2ignore := []string{"github.com/golang/glog.(*loggingT).flushDaemon", "go.opencensus.io/stats/view.(*worker).start",
		"github.com/golang/glog.(*fileSink).flushDaemon", "github.com/patrickmn/go-cache.(*janitor).Run",
		"internal/poll.runtime_pollWait", "database/sql.(*DB).connectionOpener",
	}

	res := make([]goleak.Option, 0, len(funcs2ignore))
	for _, f := range funcs2ignore {
		res = append(res, goleak.IgnoreTopFunction(f))
	}
	return res
}
