// Package predicate turns a CEL expression into a feedstore.Predicate,
// grounded on the teacher's internal/services/streams/celfilter.go: the same
// compile-once/eval-many shape, retargeted from that package's Kafka-style
// partition/sequence/header view onto a feed message's path/seq/key/codec
// view.
package predicate

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/cel-go/cel"

	"github.com/dxos-deprecated/feed-store/internal/codec"
	"github.com/dxos-deprecated/feed-store/internal/feedstore"
)

// CEL compiles expr against a fixed variable set describing one candidate
// message:
//
//	path      string  the feed's path
//	key       string  hex(feed public key)
//	seq       int     the message's sequence number
//	size      int     len(data)
//	sync      bool    the message's Sync flag (set on the message at the
//	                  head its batch stream recorded, spec §4.5)
//	metadata  dyn     the message's Metadata if set, else the feed
//	                  descriptor's metadata
//	json      dyn     data decoded as JSON (null if it doesn't parse)
//
// An empty expr compiles to an always-true predicate.
func CEL(expr string) (feedstore.Predicate, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return func(context.Context, *feedstore.FeedDescriptor, feedstore.Message) (bool, error) {
			return true, nil
		}, nil
	}

	env, err := cel.NewEnv(
		cel.Variable("path", cel.StringType),
		cel.Variable("key", cel.StringType),
		cel.Variable("seq", cel.IntType),
		cel.Variable("size", cel.IntType),
		cel.Variable("sync", cel.BoolType),
		cel.Variable("metadata", cel.DynType),
		cel.Variable("json", cel.DynType),
	)
	if err != nil {
		return nil, fmt.Errorf("predicate: new env: %w", err)
	}
	ast, iss := env.Parse(expr)
	if iss != nil && iss.Err() != nil {
		return nil, fmt.Errorf("predicate: parse %q: %w", expr, iss.Err())
	}
	checked, iss2 := env.Check(ast)
	if iss2 != nil && iss2.Err() != nil {
		return nil, fmt.Errorf("predicate: check %q: %w", expr, iss2.Err())
	}
	prog, err := env.Program(checked)
	if err != nil {
		return nil, fmt.Errorf("predicate: program %q: %w", expr, err)
	}

	jsonCodec := codec.NewRegistry().Resolve("json")

	return func(ctx context.Context, d *feedstore.FeedDescriptor, msg feedstore.Message) (bool, error) {
		var jsonVal interface{}
		if v, err := jsonCodec.Decode(msg.Data); err == nil {
			jsonVal = v
		}
		metadata := msg.Metadata
		if metadata == nil && d != nil {
			metadata = d.Snapshot().Metadata
		}
		out, _, err := prog.Eval(map[string]interface{}{
			"path":     msg.Path,
			"key":      feedstore.HexKey(msg.Key),
			"seq":      int64(msg.Seq),
			"size":     int64(len(msg.Data)),
			"sync":     msg.Sync,
			"metadata": metadata,
			"json":     jsonVal,
		})
		if err != nil {
			return false, fmt.Errorf("predicate: eval: %w", err)
		}
		b, ok := out.Value().(bool)
		return ok && b, nil
	}, nil
}
