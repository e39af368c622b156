/*
Package clog logs with fields carried on a context.Context, such as the randomness request
id or the player a log line is about.
*/
package clog

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/golang/glog"
)

type clogContextKeyT struct{}

var clogContextKey = clogContextKeyT{}

const (
	requestID = "requestID"
	player    = "player"
	sender    = "sender"
)

// standard keys are printed first and in this order, others follow sorted by name
var stdKeysOrder = []string{requestID, player, sender}

// Verbose is a boolean type that implements Infof (like Printf) etc.
// See the documentation of V for more information.
type Verbose bool

func V(level glog.Level) Verbose {
	return Verbose(bool(glog.V(level)))
}

// fields are never mutated once stored on a context
type fields map[string]string

// AddRequestID adds the randomness request id
func AddRequestID(ctx context.Context, val string) context.Context {
	return AddVal(ctx, requestID, val)
}

// AddPlayer adds the address of the entering or winning player
func AddPlayer(ctx context.Context, val string) context.Context {
	return AddVal(ctx, player, val)
}

// AddSender adds the address of the remote caller
func AddSender(ctx context.Context, val string) context.Context {
	return AddVal(ctx, sender, val)
}

// AddVal returns a child of ctx carrying key=val next to the fields of ctx.
// ctx itself is left unchanged
func AddVal(ctx context.Context, key, val string) context.Context {
	parent, _ := ctx.Value(clogContextKey).(fields)
	child := make(fields, len(parent)+1)
	for k, v := range parent {
		child[k] = v
	}
	child[key] = val
	return context.WithValue(ctx, clogContextKey, child)
}

func Warningf(ctx context.Context, format string, args ...interface{}) {
	glog.WarningDepth(1, formatMessage(ctx, format, args...))
}

func Errorf(ctx context.Context, format string, args ...interface{}) {
	glog.ErrorDepth(1, formatMessage(ctx, format, args...))
}

func Infof(ctx context.Context, format string, args ...interface{}) {
	infof(ctx, format, args...)
}

func infof(ctx context.Context, format string, args ...interface{}) {
	glog.InfoDepth(2, formatMessage(ctx, format, args...))
}

// Infof is equivalent to the global Infof function, guarded by the value of v.
// See the documentation of V for usage.
func (v Verbose) Infof(ctx context.Context, format string, args ...interface{}) {
	if v {
		infof(ctx, format, args...)
	}
}

func messageFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	f, _ := ctx.Value(clogContextKey).(fields)
	if len(f) == 0 {
		return ""
	}

	var sb strings.Builder
	for _, key := range stdKeysOrder {
		if val, ok := f[key]; ok {
			writeKV(&sb, key, val)
		}
	}

	var custom []string
	for key := range f {
		if !isStdKey(key) {
			custom = append(custom, key)
		}
	}
	sort.Strings(custom)
	for _, key := range custom {
		writeKV(&sb, key, f[key])
	}
	return sb.String()
}

func isStdKey(key string) bool {
	for _, k := range stdKeysOrder {
		if k == key {
			return true
		}
	}
	return false
}

func writeKV(sb *strings.Builder, key, val string) {
	if sb.Len() > 0 {
		sb.WriteString(" ")
	}
	sb.WriteString(key)
	sb.WriteString("=")
	sb.WriteString(val)
}

func formatMessage(ctx context.Context, format string, args ...interface{}) string {
	msg := fmt.Sprintf(format, args...)
	if mfc := messageFromContext(ctx); mfc != "" {
		msg = mfc + " " + msg
	}
	return msg
}
