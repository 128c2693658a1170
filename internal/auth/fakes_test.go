package auth

import (
	"context"
	"time"

	"github.com/jobboard/apiserver/internal/auth/authtest"
	"github.com/jobboard/apiserver/internal/backend"
	"github.com/jobboard/apiserver/internal/localstate"
	"github.com/jobboard/apiserver/internal/mq"
	"github.com/jobboard/apiserver/internal/retry"
)

type harness struct {
	auth   *authtest.Auth
	dir    *authtest.Directory
	local  *localstate.MemoryStore
	holder *Holder
	delays []time.Duration
	now    time.Time
}

func newHarness(auth *authtest.Auth) *harness {
	h := &harness{
		auth:  auth,
		dir:   authtest.NewDirectory(),
		local: localstate.NewMemoryStore(),
		now:   time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	client := &backend.Client{Auth: auth, Events: mq.NewPublisher(nil, nil)}
	h.holder = NewHolder(backend.NewStaticAccessor(client), h.local, Options{
		Directory: func(*backend.Client) Directory { return h.dir },
		Retry: retry.Policy{
			MaxRetries: 3,
			BaseDelay:  2 * time.Second,
			Sleep: func(_ context.Context, d time.Duration) error {
				h.delays = append(h.delays, d)
				return nil
			},
		},
		Now: func() time.Time { return h.now },
	})
	return h
}
