package presence

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/vovakirdan/tweetchat-server/internal/core"
	"github.com/vovakirdan/tweetchat-server/internal/store/sqlite"
)

type tracker interface {
	core.PresenceTracker
	core.IdentityRecorder
}

func backends(t *testing.T) map[string]func(t *testing.T) tracker {
	t.Helper()

	b := map[string]func(t *testing.T) tracker{
		"memory": func(*testing.T) tracker { return NewMemory() },
		"directory": func(t *testing.T) tracker {
			s, err := sqlite.New(":memory:")
			if err != nil {
				t.Fatalf("open sqlite: %v", err)
			}
			t.Cleanup(func() { _ = s.Close() })
			return NewDirectory(s)
		},
	}

	if addr := os.Getenv("TWEETCHAT_TEST_REDIS_ADDR"); addr != "" {
		b["redis"] = func(t *testing.T) tracker {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			client, err := DialRedis(ctx, addr, "", 0)
			if err != nil {
				t.Fatalf("dial redis: %v", err)
			}
			prefix := "tweetchat-test:" + uuid.NewString() + ":"
			r := NewRedis(client, prefix)
			t.Cleanup(func() {
				client.Del(context.Background(), r.onlineKey, r.namesKey)
				client.Close()
			})
			return r
		}
	}
	return b
}

func TestTransitionsReportChange(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			p := open(t)
			ctx := context.Background()

			steps := []struct {
				online bool
				want   bool
			}{
				{online: false, want: false}, // unknown users are offline
				{online: true, want: true},
				{online: true, want: false},
				{online: false, want: true},
				{online: false, want: false},
			}
			for i, step := range steps {
				var (
					changed bool
					err     error
				)
				if step.online {
					changed, err = p.SetOnline(ctx, "u1")
				} else {
					changed, err = p.SetOffline(ctx, "u1")
				}
				if err != nil {
					t.Fatalf("step %d: %v", i, err)
				}
				if changed != step.want {
					t.Fatalf("step %d: changed = %v, want %v", i, changed, step.want)
				}
			}
		})
	}
}

func TestListOnlineCarriesNames(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			p := open(t)
			ctx := context.Background()

			for _, u := range []struct{ id, name string }{{"b", "bob"}, {"a", "alice"}, {"c", "carol"}} {
				if err := p.RecordIdentity(ctx, u.id, u.name); err != nil {
					t.Fatalf("record %s: %v", u.id, err)
				}
				if _, err := p.SetOnline(ctx, u.id); err != nil {
					t.Fatalf("online %s: %v", u.id, err)
				}
			}
			if _, err := p.SetOffline(ctx, "c"); err != nil {
				t.Fatalf("offline: %v", err)
			}

			list, err := p.ListOnline(ctx)
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			got := fmt.Sprint(list)
			want := fmt.Sprint([]core.Presence{
				{UserID: "a", Name: "alice", Status: core.StatusOnline},
				{UserID: "b", Name: "bob", Status: core.StatusOnline},
			})
			if got != want {
				t.Fatalf("online = %s, want %s", got, want)
			}
		})
	}
}

func TestRecordIdentityEmptyNameKeepsExisting(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			p := open(t)
			ctx := context.Background()

			if err := p.RecordIdentity(ctx, "a", "alice"); err != nil {
				t.Fatalf("record: %v", err)
			}
			if err := p.RecordIdentity(ctx, "a", ""); err != nil {
				t.Fatalf("record empty: %v", err)
			}
			if _, err := p.SetOnline(ctx, "a"); err != nil {
				t.Fatalf("online: %v", err)
			}
			list, err := p.ListOnline(ctx)
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if len(list) != 1 || list[0].Name != "alice" {
				t.Fatalf("unexpected list: %+v", list)
			}
		})
	}
}
