// Package state persists connection cursors and group sets so a restarted
// client resumes where it left off.
package state

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/mithrel/pushline/pkg/api"
)

// Store persists api.State by connection id.
type Store interface {
	Load(ctx context.Context, connectionID string) (api.State, error)
	Save(ctx context.Context, st api.State) error
	Delete(ctx context.Context, connectionID string) error
	List(ctx context.Context) ([]api.State, error)
	io.Closer
}

// Open returns a Store for dsn: "sqlite://<path>" or "mem://".
func Open(ctx context.Context, dsn string) (Store, error) {
	switch {
	case strings.HasPrefix(dsn, "sqlite://"):
		return openSQLite(ctx, dsn)
	case dsn == "mem://" || dsn == "":
		return newMemStore(), nil
	default:
		return nil, fmt.Errorf("state: unsupported dsn %q", dsn)
	}
}
